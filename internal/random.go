package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const attemptKeyRawSize = 32

// AttemptKey is the unguessable token identifying one in-flight login
// exchange. 256 bits of crypto randomness, carried as base64url.
type AttemptKey [attemptKeyRawSize]byte

// NewAttemptKey draws a fresh key from crypto/rand.
func NewAttemptKey() (AttemptKey, error) {
	var key AttemptKey
	_, err := rand.Read(key[:])
	return key, err
}

func (k AttemptKey) String() string {
	return base64.RawURLEncoding.EncodeToString(k[:])
}

// ParseAttemptKey rejects anything that is not exactly an encoded key,
// so malformed input never reaches the cache as a lookup.
func ParseAttemptKey(key string) (AttemptKey, error) {
	var out AttemptKey

	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, errors.New("invalid attempt key size")
	}

	copy(out[:], raw)
	return out, nil
}
