package opaquegate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/opaquegate/opaquegate/credential"
	"github.com/opaquegate/opaquegate/identity"
	"github.com/opaquegate/opaquegate/pake"
	"github.com/opaquegate/opaquegate/session"
)

// Builder assembles an [Engine]. Configure it with the With* methods and
// call Build once; the builder is single-use.
type Builder struct {
	config Config
	redis  *redis.Client

	pake        pake.Engine
	credentials credential.Store
	identities  identity.Store
	sessions    SessionIssuer
	auditSink   AuditSink

	built bool
}

// New creates a Builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration. The value is cloned;
// later mutation of cfg does not affect the built engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the redis client backing the attempt cache and, unless a
// custom issuer is injected, the session records.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithPAKE sets the key exchange engine.
func (b *Builder) WithPAKE(engine pake.Engine) *Builder {
	b.pake = engine
	return b
}

// WithCredentialStore sets the persistent envelope store.
func (b *Builder) WithCredentialStore(store credential.Store) *Builder {
	b.credentials = store
	return b
}

// WithIdentityStore sets the identity directory.
func (b *Builder) WithIdentityStore(store identity.Store) *Builder {
	b.identities = store
	return b
}

// WithSessionIssuer overrides the default redis+JWT session issuer.
func (b *Builder) WithSessionIssuer(issuer SessionIssuer) *Builder {
	b.sessions = issuer
	return b
}

// WithAuditSink sets the sink receiving audit events. Defaults to
// [NoOpSink] when auditing is enabled without a sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires the stores, and returns the
// immutable engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.pake == nil {
		return nil, errors.New("pake engine required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}

	sessions := b.sessions
	if sessions == nil {
		issuer, err := session.NewIssuer(b.redis, session.Config{
			TTL:           cfg.Session.TTL,
			RedisPrefix:   cfg.Session.RedisPrefix,
			SigningMethod: session.SigningMethod(cfg.Session.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
			PublicKey:     cloneBytes(cfg.Session.PublicKey),
			Issuer:        cfg.Session.Issuer,
		})
		if err != nil {
			return nil, err
		}
		sessions = issuer
	}

	engine := &Engine{
		config:      cfg,
		pake:        b.pake,
		credentials: b.credentials,
		identities:  b.identities,
		attempts:    newLoginAttemptStore(b.redis, cfg.Attempt.RedisPrefix),
		sessions:    sessions,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
