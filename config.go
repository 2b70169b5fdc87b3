package opaquegate

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. It is constructed once,
// validated at Build time, and cloned into the Engine; nothing reads
// configuration from ambient global state afterwards.
type Config struct {
	// Setup is the server setup secret consumed by the key exchange
	// engine. Generate one with cmd/opaquegate-setup and treat it like a
	// private key.
	Setup []byte

	Fields  FieldConfig
	Attempt AttemptConfig
	Session SessionConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
FIELD CONFIG
====================================
*/

// FieldConfig names the JSON fields the HTTP surface reads identities
// from. Both are deployment choices, never hardcoded in handlers.
type FieldConfig struct {
	// IdentityField is the request field carrying the external identity
	// value. Defaults to "email".
	IdentityField string
	// IdentityKeyField is the response field carrying the internal
	// identity key. Defaults to "id".
	IdentityKeyField string
}

/*
====================================
ATTEMPT CONFIG
====================================
*/

// AttemptConfig bounds in-flight login attempts.
type AttemptConfig struct {
	// TTL is how long a started login may wait for its finish message.
	// The clock starts at LoginStart. Defaults to 5 minutes.
	TTL time.Duration
	// RedisPrefix namespaces attempt keys in the shared cache.
	RedisPrefix string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the default session issuer built when none is
// injected. Ignored when a custom [SessionIssuer] is provided.
type SessionConfig struct {
	TTL           time.Duration
	RedisPrefix   string
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the documented defaults. The Setup secret and
// session signing key must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Fields: FieldConfig{
			IdentityField:    "email",
			IdentityKeyField: "id",
		},
		Attempt: AttemptConfig{
			TTL:         5 * time.Minute,
			RedisPrefix: "ola",
		},
		Session: SessionConfig{
			TTL:         24 * time.Hour,
			RedisPrefix: "osn",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 128,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func defaultConfig() Config { return DefaultConfig() }

// Validate checks the invariants Build relies on.
func (c Config) Validate() error {
	if len(c.Setup) == 0 {
		return errors.New("setup secret required")
	}
	if c.Fields.IdentityField == "" {
		return errors.New("identity field name required")
	}
	if c.Fields.IdentityKeyField == "" {
		return errors.New("identity key field name required")
	}
	if c.Attempt.TTL <= 0 {
		return errors.New("attempt TTL must be positive")
	}
	if c.Attempt.RedisPrefix == "" {
		return errors.New("attempt redis prefix required")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must not be negative")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Setup = cloneBytes(cfg.Setup)
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
