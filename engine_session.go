package opaquegate

import (
	"context"

	"github.com/opaquegate/opaquegate/identity"
)

// VerifySession validates a session token and returns the identity it is
// bound to. Any issuer failure is reported as [ErrSessionInvalid].
func (e *Engine) VerifySession(ctx context.Context, token string) (identity.Identity, error) {
	if e == nil || e.sessions == nil {
		return identity.Identity{}, ErrEngineNotReady
	}
	if token == "" {
		return identity.Identity{}, ErrSessionInvalid
	}

	id, err := e.sessions.Verify(ctx, token)
	if err != nil {
		return identity.Identity{}, ErrSessionInvalid
	}
	return id, nil
}

// Logout invalidates the token's platform session. Logging out an already
// invalid session returns [ErrSessionInvalid].
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrSessionInvalid
	}

	id, err := e.sessions.Verify(ctx, token)
	if err != nil {
		return ErrSessionInvalid
	}
	if err := e.sessions.Invalidate(ctx, token); err != nil {
		return ErrSessionInvalid
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogout, true, id.Value, nil, nil)
	return nil
}
