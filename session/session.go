// Package session converts a completed key exchange into a platform
// session: a redis-backed session record plus a signed token the client
// presents on later requests. Raw session key material is never stored,
// only its sha256 digest.
package session

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opaquegate/opaquegate/identity"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs tokens with EdDSA (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs tokens with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

const (
	defaultTTL    = 24 * time.Hour
	defaultPrefix = "osn"

	recordVersion1 = 1
)

var (
	// ErrSessionNotFound is returned by Verify and Invalidate when the
	// token's session record no longer exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenInvalid is returned for unparsable or badly signed tokens.
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrRedisUnavailable wraps redis transport failures.
	ErrRedisUnavailable = errors.New("session redis unavailable")
)

// Config configures an Issuer.
type Config struct {
	TTL           time.Duration
	RedisPrefix   string
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// Claims is the token payload: the identity key as subject, the external
// identity value, and the session record ID.
type Claims struct {
	IdentityValue string `json:"idv"`
	SID           string `json:"sid"`
	jwt.RegisteredClaims
}

type record struct {
	IdentityID    string
	IdentityValue string
	KeyDigest     [32]byte
	CreatedAt     int64
}

// Issuer binds identities to sessions and validates the tokens it issued.
// Tokens are only accepted while their redis record exists, so Invalidate
// takes effect immediately across all server instances.
type Issuer struct {
	redis     *redis.Client
	cfg       Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// NewIssuer validates cfg and creates an Issuer.
func NewIssuer(redisClient *redis.Client, cfg Config) (*Issuer, error) {
	if redisClient == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = defaultPrefix
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodEd25519
	}

	issuer := &Issuer{redis: redisClient, cfg: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		issuer.method = jwt.SigningMethodHS256
		issuer.signKey = cfg.PrivateKey
		issuer.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		issuer.method = jwt.SigningMethodEdDSA
		issuer.signKey = priv
		issuer.verifyKey = priv.Public()
	default:
		return nil, errors.New("unsupported signing method")
	}

	return issuer, nil
}

func (i *Issuer) key(sid string) string {
	return i.cfg.RedisPrefix + ":" + sid
}

// Bind creates a session record for the identity and returns the signed
// token. sessionKey is the key material derived by the exchange; only its
// digest is persisted.
func (i *Issuer) Bind(ctx context.Context, id identity.Identity, sessionKey []byte) (string, error) {
	sid := uuid.NewString()
	now := time.Now()

	rec := &record{
		IdentityID:    id.ID,
		IdentityValue: id.Value,
		KeyDigest:     sha256.Sum256(sessionKey),
		CreatedAt:     now.Unix(),
	}

	encoded, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	if err := i.redis.Set(ctx, i.key(sid), encoded, i.cfg.TTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	claims := Claims{
		IdentityValue: id.Value,
		SID:           sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}

	token, err := jwt.NewWithClaims(i.method, claims).SignedString(i.signKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Verify checks the token signature and that its session record still
// exists, returning the bound identity.
func (i *Issuer) Verify(ctx context.Context, token string) (identity.Identity, error) {
	claims, err := i.parse(token)
	if err != nil {
		return identity.Identity{}, err
	}

	data, err := i.redis.Get(ctx, i.key(claims.SID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return identity.Identity{}, ErrSessionNotFound
		}
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return identity.Identity{}, err
	}
	return identity.Identity{ID: rec.IdentityID, Value: rec.IdentityValue}, nil
}

// Invalidate deletes the token's session record. Deleting an already
// absent record returns ErrSessionNotFound.
func (i *Issuer) Invalidate(ctx context.Context, token string) error {
	claims, err := i.parse(token)
	if err != nil {
		return err
	}

	n, err := i.redis.Del(ctx, i.key(claims.SID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (i *Issuer) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != i.method.Alg() {
			return nil, ErrTokenInvalid
		}
		return i.verifyKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.SID == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// parseEdPrivateKey accepts either a 32-byte seed or a full 64-byte
// ed25519 private key.
func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(append([]byte(nil), key...)), nil
	default:
		return nil, errors.New("ed25519 requires a 32-byte seed or 64-byte private key")
	}
}

func encodeRecord(rec *record) ([]byte, error) {
	if len(rec.IdentityID) > 65535 || len(rec.IdentityValue) > 65535 {
		return nil, errors.New("session identity length exceeded")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, rec.CreatedAt); err != nil {
		return nil, err
	}
	buf.Write(rec.KeyDigest[:])
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.IdentityID))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.IdentityID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.IdentityValue))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.IdentityValue)
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordVersion1 {
		return nil, errors.New("invalid session record version")
	}

	rec := &record{}
	if err := binary.Read(reader, binary.BigEndian, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, rec.KeyDigest[:]); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	rec.IdentityID = string(id)

	var valueLen uint16
	if err := binary.Read(reader, binary.BigEndian, &valueLen); err != nil {
		return nil, err
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(reader, value); err != nil {
		return nil, err
	}
	rec.IdentityValue = string(value)

	return rec, nil
}
