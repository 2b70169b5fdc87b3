// Package gopaquengine implements the pake.Engine contract on top of
// github.com/cretz/gopaque with the embedded SIGMA key exchange.
//
// gopaque keeps unserializable kyber state between the two halves of a
// registration or login exchange, so this engine holds that state in a
// process-local session table. Both halves of an exchange must therefore
// reach the same process (single node or sticky routing); the protocol
// core above remains free to keep its own attempt state distributed.
package gopaquengine

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cretz/gopaque/gopaque"
	"go.dedis.ch/kyber/v3"

	"github.com/opaquegate/opaquegate/pake"
)

const (
	defaultSessionTTL = 5 * time.Minute
	envelopeVersion1  = 1
)

// Config tunes the engine. The zero value is usable.
type Config struct {
	// SessionTTL bounds how long a half-open exchange may wait for its
	// second message before the engine forgets it. Defaults to 5 minutes,
	// matching the core's attempt TTL.
	SessionTTL time.Duration
}

type regSession struct {
	server  *gopaque.ServerRegister
	expires time.Time
}

type authSession struct {
	server  *gopaque.ServerAuth
	kex     *gopaque.KeyExchangeSigma
	expires time.Time
}

// Engine is a gopaque-backed pake.Engine. Safe for concurrent use.
type Engine struct {
	crypto gopaque.Crypto
	ttl    time.Duration

	mu   sync.Mutex
	reg  map[string]regSession
	auth map[string]authSession
}

// New creates an Engine with the default crypto suite.
func New(cfg Config) *Engine {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Engine{
		crypto: gopaque.CryptoDefault,
		ttl:    ttl,
		reg:    make(map[string]regSession),
		auth:   make(map[string]authSession),
	}
}

// CreateSetup implements pake.SetupGenerator. The setup secret is a
// freshly picked private scalar in marshalled form.
func (e *Engine) CreateSetup() ([]byte, error) {
	key := e.crypto.NewKey(nil)
	data, err := key.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal setup key: %w", err)
	}
	return data, nil
}

// Register implements pake.Engine.
func (e *Engine) Register(setup, request []byte, identity string) ([]byte, error) {
	key, err := e.parseSetup(setup)
	if err != nil {
		return nil, err
	}

	var userInit gopaque.UserRegisterInit
	if err := userInit.FromBytes(e.crypto, request); err != nil {
		return nil, fmt.Errorf("%w: %v", pake.ErrMalformed, err)
	}
	if !bytes.Equal(userInit.UserID, []byte(identity)) {
		return nil, fmt.Errorf("%w: registration user id mismatch", pake.ErrMalformed)
	}

	server := gopaque.NewServerRegister(e.crypto, key)
	serverInit := server.Init(&userInit)

	out, err := serverInit.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal registration response: %w", err)
	}

	e.mu.Lock()
	e.pruneLocked(time.Now())
	e.reg[identity] = regSession{server: server, expires: time.Now().Add(e.ttl)}
	e.mu.Unlock()

	return out, nil
}

// RegisterFinish implements pake.Engine.
func (e *Engine) RegisterFinish(_ []byte, identity string, record []byte) ([]byte, error) {
	e.mu.Lock()
	e.pruneLocked(time.Now())
	session, ok := e.reg[identity]
	delete(e.reg, identity)
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no registration in progress for identity", pake.ErrMalformed)
	}

	var userComplete gopaque.UserRegisterComplete
	if err := userComplete.FromBytes(e.crypto, record); err != nil {
		return nil, fmt.Errorf("%w: %v", pake.ErrMalformed, err)
	}

	return e.sealEnvelope(session.server.Complete(&userComplete))
}

// Login implements pake.Engine. The returned state is a random handle
// into the engine's session table, not serialized kex state.
func (e *Engine) Login(setup, envelope, request []byte, identity string) ([]byte, []byte, error) {
	if _, err := e.parseSetup(setup); err != nil {
		return nil, nil, err
	}

	rec, err := e.openEnvelope(envelope)
	if err != nil {
		return nil, nil, err
	}

	var userInit gopaque.UserAuthInit
	if err := userInit.FromBytes(e.crypto, request); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", pake.ErrMalformed, err)
	}
	if !bytes.Equal(userInit.UserID, []byte(identity)) || !bytes.Equal(userInit.UserID, rec.UserID) {
		return nil, nil, fmt.Errorf("%w: login user id mismatch", pake.ErrMalformed)
	}

	kex := gopaque.NewKeyExchangeSigma(e.crypto)
	server := gopaque.NewServerAuth(e.crypto, kex)

	complete, err := server.Complete(&userInit, rec)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", pake.ErrMalformed, err)
	}

	out, err := complete.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal login response: %w", err)
	}

	handle, err := newHandle()
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	e.pruneLocked(time.Now())
	e.auth[handle] = authSession{server: server, kex: kex, expires: time.Now().Add(e.ttl)}
	e.mu.Unlock()

	return out, []byte(handle), nil
}

// LoginFinish implements pake.Engine.
func (e *Engine) LoginFinish(finish, state []byte) ([]byte, error) {
	handle := string(state)

	e.mu.Lock()
	e.pruneLocked(time.Now())
	session, ok := e.auth[handle]
	delete(e.auth, handle)
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown login state", pake.ErrMalformed)
	}

	var userComplete gopaque.UserAuthComplete
	if err := userComplete.FromBytes(e.crypto, finish); err != nil {
		return nil, fmt.Errorf("%w: %v", pake.ErrMalformed, err)
	}

	if err := session.server.Finish(&userComplete); err != nil {
		return nil, fmt.Errorf("%w: %v", pake.ErrProofFailed, err)
	}

	shared, err := session.kex.SharedSecret.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal shared secret: %w", err)
	}
	key := sha256.Sum256(shared)
	return key[:], nil
}

func (e *Engine) parseSetup(setup []byte) (kyber.Scalar, error) {
	key := e.crypto.Scalar()
	if err := key.UnmarshalBinary(setup); err != nil {
		return nil, fmt.Errorf("%w: invalid setup secret", pake.ErrMalformed)
	}
	return key, nil
}

// pruneLocked drops half-open exchanges whose second message never came.
func (e *Engine) pruneLocked(now time.Time) {
	for id, s := range e.reg {
		if now.After(s.expires) {
			delete(e.reg, id)
		}
	}
	for h, s := range e.auth {
		if now.After(s.expires) {
			delete(e.auth, h)
		}
	}
}

func newHandle() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// sealEnvelope serializes the completed registration record into the
// envelope bytes the core persists. Layout: version byte, then
// length-prefixed userID, server private scalar, user public point,
// sealed EnvU, and the per-user OPRF scalar.
func (e *Engine) sealEnvelope(rec *gopaque.ServerRegisterComplete) ([]byte, error) {
	priv, err := rec.ServerPrivateKey.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal server key: %w", err)
	}
	userPub, err := rec.UserPublicKey.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal user key: %w", err)
	}
	ku, err := rec.KU.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal oprf key: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte(envelopeVersion1)
	for _, field := range [][]byte{rec.UserID, priv, userPub, rec.EnvU, ku} {
		if len(field) > 65535 {
			return nil, fmt.Errorf("envelope field too large")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.Write(field)
	}
	return buf.Bytes(), nil
}

func (e *Engine) openEnvelope(envelope []byte) (*gopaque.ServerRegisterComplete, error) {
	reader := bytes.NewReader(envelope)

	version, err := reader.ReadByte()
	if err != nil || version != envelopeVersion1 {
		return nil, fmt.Errorf("%w: invalid envelope", pake.ErrMalformed)
	}

	fields := make([][]byte, 5)
	for i := range fields {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("%w: truncated envelope", pake.ErrMalformed)
		}
		field := make([]byte, length)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, fmt.Errorf("%w: truncated envelope", pake.ErrMalformed)
		}
		fields[i] = field
	}

	rec := &gopaque.ServerRegisterComplete{
		UserID:           fields[0],
		ServerPrivateKey: e.crypto.Scalar(),
		UserPublicKey:    e.crypto.Point(),
		EnvU:             fields[3],
		KU:               e.crypto.Scalar(),
	}
	if err := rec.ServerPrivateKey.UnmarshalBinary(fields[1]); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope key", pake.ErrMalformed)
	}
	if err := rec.UserPublicKey.UnmarshalBinary(fields[2]); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope key", pake.ErrMalformed)
	}
	if err := rec.KU.UnmarshalBinary(fields[4]); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope key", pake.ErrMalformed)
	}
	return rec, nil
}
