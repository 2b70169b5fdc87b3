package gopaquengine

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/cretz/gopaque/gopaque"

	"github.com/opaquegate/opaquegate/pake"
)

const (
	testIdentity = "alice@example.com"
	testPassword = "correct-horse-battery-staple"
)

// enroll runs both registration phases with a real gopaque client and
// returns the sealed envelope.
func enroll(t *testing.T, e *Engine, setup []byte, identity, password string) []byte {
	t.Helper()
	crypto := gopaque.CryptoDefault

	user := gopaque.NewUserRegister(crypto, []byte(identity), nil)
	request, err := user.Init([]byte(password)).ToBytes()
	if err != nil {
		t.Fatalf("marshal register init: %v", err)
	}

	response, err := e.Register(setup, request, identity)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var serverInit gopaque.ServerRegisterInit
	if err := serverInit.FromBytes(crypto, response); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}

	record, err := user.Complete(&serverInit).ToBytes()
	if err != nil {
		t.Fatalf("marshal register complete: %v", err)
	}

	envelope, err := e.RegisterFinish(setup, identity, record)
	if err != nil {
		t.Fatalf("RegisterFinish failed: %v", err)
	}
	return envelope
}

// authenticate runs both login phases with a real gopaque client,
// returning the server-derived session key and the client's key exchange
// so tests can compare derived secrets.
func authenticate(
	t *testing.T,
	e *Engine,
	setup, envelope []byte,
	identity, password string,
) ([]byte, *gopaque.KeyExchangeSigma) {
	t.Helper()
	crypto := gopaque.CryptoDefault

	kex := gopaque.NewKeyExchangeSigma(crypto)
	user := gopaque.NewUserAuth(crypto, []byte(identity), kex)

	init, err := user.Init([]byte(password))
	if err != nil {
		t.Fatalf("auth init: %v", err)
	}
	request, err := init.ToBytes()
	if err != nil {
		t.Fatalf("marshal auth init: %v", err)
	}

	response, state, err := e.Login(setup, envelope, request, identity)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	var serverComplete gopaque.ServerAuthComplete
	if err := serverComplete.FromBytes(crypto, response); err != nil {
		t.Fatalf("unmarshal auth response: %v", err)
	}

	_, userComplete, err := user.Complete(&serverComplete)
	if err != nil {
		t.Fatalf("user auth complete: %v", err)
	}
	finish, err := userComplete.ToBytes()
	if err != nil {
		t.Fatalf("marshal auth complete: %v", err)
	}

	key, err := e.LoginFinish(finish, state)
	if err != nil {
		t.Fatalf("LoginFinish failed: %v", err)
	}
	return key, kex
}

func TestFullProtocolRoundTrip(t *testing.T) {
	e := New(Config{})
	setup, err := e.CreateSetup()
	if err != nil {
		t.Fatalf("CreateSetup failed: %v", err)
	}

	envelope := enroll(t, e, setup, testIdentity, testPassword)
	if len(envelope) == 0 {
		t.Fatal("expected a sealed envelope")
	}

	serverKey, kex := authenticate(t, e, setup, envelope, testIdentity, testPassword)

	// Both sides must derive the same session key from the exchange.
	shared, err := kex.SharedSecret.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal client shared secret: %v", err)
	}
	clientKey := sha256.Sum256(shared)
	if !bytes.Equal(serverKey, clientKey[:]) {
		t.Fatal("server and client derived different session keys")
	}
}

func TestEnvelopeSurvivesEngineRestart(t *testing.T) {
	first := New(Config{})
	setup, err := first.CreateSetup()
	if err != nil {
		t.Fatalf("CreateSetup failed: %v", err)
	}
	envelope := enroll(t, first, setup, testIdentity, testPassword)

	// A fresh engine instance with only the setup secret and the
	// envelope must complete a login.
	second := New(Config{})
	key, _ := authenticate(t, second, setup, envelope, testIdentity, testPassword)
	if len(key) != sha256.Size {
		t.Fatalf("unexpected key length %d", len(key))
	}
}

func TestRegisterRejectsMismatchedIdentity(t *testing.T) {
	e := New(Config{})
	setup, _ := e.CreateSetup()

	user := gopaque.NewUserRegister(gopaque.CryptoDefault, []byte("mallory@example.com"), nil)
	request, err := user.Init([]byte(testPassword)).ToBytes()
	if err != nil {
		t.Fatalf("marshal register init: %v", err)
	}

	if _, err := e.Register(setup, request, testIdentity); !errors.Is(err, pake.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestLoginRejectsForeignEnvelope(t *testing.T) {
	e := New(Config{})
	setup, _ := e.CreateSetup()
	envelope := enroll(t, e, setup, "bob@example.com", testPassword)

	kex := gopaque.NewKeyExchangeSigma(gopaque.CryptoDefault)
	user := gopaque.NewUserAuth(gopaque.CryptoDefault, []byte(testIdentity), kex)
	init, err := user.Init([]byte(testPassword))
	if err != nil {
		t.Fatalf("auth init: %v", err)
	}
	request, _ := init.ToBytes()

	// Envelope belongs to bob; alice's login against it must fail before
	// any key exchange happens.
	if _, _, err := e.Login(setup, envelope, request, testIdentity); !errors.Is(err, pake.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestLoginFinishRejectsCrossedSessions(t *testing.T) {
	e := New(Config{})
	setup, _ := e.CreateSetup()
	envelope := enroll(t, e, setup, testIdentity, testPassword)

	crypto := gopaque.CryptoDefault

	startLogin := func() ([]byte, []byte) {
		kex := gopaque.NewKeyExchangeSigma(crypto)
		user := gopaque.NewUserAuth(crypto, []byte(testIdentity), kex)
		init, err := user.Init([]byte(testPassword))
		if err != nil {
			t.Fatalf("auth init: %v", err)
		}
		request, _ := init.ToBytes()

		response, state, err := e.Login(setup, envelope, request, testIdentity)
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}

		var serverComplete gopaque.ServerAuthComplete
		if err := serverComplete.FromBytes(crypto, response); err != nil {
			t.Fatalf("unmarshal auth response: %v", err)
		}
		_, userComplete, err := user.Complete(&serverComplete)
		if err != nil {
			t.Fatalf("user auth complete: %v", err)
		}
		finish, _ := userComplete.ToBytes()
		return finish, state
	}

	finishA, _ := startLogin()
	_, stateB := startLogin()

	// The finish message of exchange A against the state of exchange B is
	// well formed but proves the wrong transcript.
	if _, err := e.LoginFinish(finishA, stateB); !errors.Is(err, pake.ErrProofFailed) {
		t.Fatalf("expected ErrProofFailed, got %v", err)
	}
}

func TestLoginStateIsSingleUse(t *testing.T) {
	e := New(Config{})
	setup, _ := e.CreateSetup()
	envelope := enroll(t, e, setup, testIdentity, testPassword)

	key, _ := authenticate(t, e, setup, envelope, testIdentity, testPassword)
	if len(key) == 0 {
		t.Fatal("expected session key")
	}

	// Replaying any finish against a consumed handle fails.
	if _, err := e.LoginFinish([]byte("anything"), []byte("consumed-or-unknown")); !errors.Is(err, pake.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestHalfOpenExchangesExpire(t *testing.T) {
	e := New(Config{SessionTTL: time.Millisecond})
	setup, _ := e.CreateSetup()

	crypto := gopaque.CryptoDefault
	user := gopaque.NewUserRegister(crypto, []byte(testIdentity), nil)
	request, _ := user.Init([]byte(testPassword)).ToBytes()

	if _, err := e.Register(setup, request, testIdentity); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	// The pending registration has expired; the finish cannot find it.
	if _, err := e.RegisterFinish(setup, testIdentity, []byte("record")); !errors.Is(err, pake.ErrMalformed) {
		t.Fatalf("expected ErrMalformed for expired exchange, got %v", err)
	}
}

func TestSetupValidation(t *testing.T) {
	e := New(Config{})

	if _, err := e.Register([]byte("not-a-scalar"), []byte("request"), testIdentity); err == nil {
		t.Fatal("expected bad setup to be rejected")
	}
}
