package opaquegate

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	credmem "github.com/opaquegate/opaquegate/credential/memory"
	identmem "github.com/opaquegate/opaquegate/identity/memory"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Setup = []byte("test-setup-secret")
	cfg.Session.SigningMethod = "hs256"
	cfg.Session.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

// fakePAKE is a deterministic stand-in for the key exchange engine. Its
// outputs are recognizable transformations of its inputs so tests can
// assert pass-through without running real cryptography.
type fakePAKE struct {
	mu                  sync.Mutex
	registerCalls       int
	registerFinishCalls int
	loginCalls          int
	loginFinishCalls    int

	failRegister       error
	failRegisterFinish error
	failLogin          error
	failLoginFinish    error
}

func (f *fakePAKE) Register(_, request []byte, identity string) ([]byte, error) {
	f.mu.Lock()
	f.registerCalls++
	f.mu.Unlock()
	if f.failRegister != nil {
		return nil, f.failRegister
	}
	return append([]byte("reg-response:"+identity+":"), request...), nil
}

func (f *fakePAKE) RegisterFinish(_ []byte, identity string, record []byte) ([]byte, error) {
	f.mu.Lock()
	f.registerFinishCalls++
	f.mu.Unlock()
	if f.failRegisterFinish != nil {
		return nil, f.failRegisterFinish
	}
	return append([]byte("envelope:"+identity+":"), record...), nil
}

func (f *fakePAKE) Login(_, envelope, request []byte, identity string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.loginCalls++
	f.mu.Unlock()
	if f.failLogin != nil {
		return nil, nil, f.failLogin
	}
	response := append([]byte("login-response:"+identity+":"), request...)
	state := append([]byte("state:"+identity+":"), envelope...)
	return response, state, nil
}

func (f *fakePAKE) LoginFinish(finish, state []byte) ([]byte, error) {
	f.mu.Lock()
	f.loginFinishCalls++
	f.mu.Unlock()
	if f.failLoginFinish != nil {
		return nil, f.failLoginFinish
	}
	key := sha256.Sum256(append(append([]byte{}, finish...), state...))
	return key[:], nil
}

func (f *fakePAKE) calls() (register, registerFinish, login, loginFinish int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCalls, f.registerFinishCalls, f.loginCalls, f.loginFinishCalls
}

func buildTestEngine(t *testing.T, cfg Config, fp *fakePAKE, sink AuditSink) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPAKE(fp).
		WithIdentityStore(identmem.New()).
		WithCredentialStore(credmem.New())
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

func newTestEngine(t *testing.T) (*Engine, *fakePAKE, *miniredis.Miniredis) {
	t.Helper()
	fp := &fakePAKE{}
	engine, mr := buildTestEngine(t, testConfig(), fp, nil)
	return engine, fp, mr
}

// registerIdentity drives both registration phases for tests that need an
// enrolled identity.
func registerIdentity(t *testing.T, engine *Engine, identityValue string) {
	t.Helper()

	ctx := context.Background()
	if _, err := engine.RegisterStart(ctx, identityValue, []byte("reg-request")); err != nil {
		t.Fatalf("RegisterStart failed: %v", err)
	}
	if err := engine.RegisterFinish(ctx, identityValue, []byte("reg-record")); err != nil {
		t.Fatalf("RegisterFinish failed: %v", err)
	}
}

// loginIdentity drives both login phases and returns the session result.
func loginIdentity(t *testing.T, engine *Engine, identityValue string) *LoginResult {
	t.Helper()

	ctx := context.Background()
	challenge, err := engine.LoginStart(ctx, identityValue, []byte("login-request"))
	if err != nil {
		t.Fatalf("LoginStart failed: %v", err)
	}
	result, err := engine.LoginFinish(ctx, challenge.AttemptKey, []byte("login-finish"))
	if err != nil {
		t.Fatalf("LoginFinish failed: %v", err)
	}
	return result
}
