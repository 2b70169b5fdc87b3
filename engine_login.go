package opaquegate

import (
	"context"
	"errors"
	"time"

	"github.com/opaquegate/opaquegate/credential"
	"github.com/opaquegate/opaquegate/identity"
	"github.com/opaquegate/opaquegate/internal"
)

// LoginStart drives the first login round trip: it loads the identity's
// active envelope, runs the engine's login operation against it, and
// parks the resulting engine state in the shared attempt cache under a
// fresh unguessable key. The TTL clock starts here.
//
// An unknown identity and an identity without a credential are reported
// identically as [ErrNoCredential]; neither reaches the engine.
func (e *Engine) LoginStart(ctx context.Context, identityValue string, request []byte) (*LoginChallenge, error) {
	if e == nil || e.pake == nil || e.credentials == nil || e.identities == nil || e.attempts == nil {
		return nil, ErrEngineNotReady
	}
	if identityValue == "" {
		return nil, ErrIdentityRequired
	}
	if len(request) == 0 {
		return nil, ErrPayloadRequired
	}

	e.metricInc(MetricLoginStart)

	id, err := e.identities.Find(ctx, identityValue)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			e.metricInc(MetricLoginNoCredential)
			e.emitAudit(ctx, auditEventLoginStart, false, identityValue, ErrNoCredential, func() map[string]string {
				return map[string]string{
					"reason": "unknown_identity",
				}
			})
			return nil, ErrNoCredential
		}
		e.emitAudit(ctx, auditEventLoginStart, false, identityValue, err, nil)
		return nil, ErrPersistence
	}

	envelope, err := e.credentials.Get(ctx, id.ID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.metricInc(MetricLoginNoCredential)
			e.emitAudit(ctx, auditEventLoginStart, false, identityValue, ErrNoCredential, nil)
			return nil, ErrNoCredential
		}
		e.emitAudit(ctx, auditEventLoginStart, false, identityValue, err, nil)
		return nil, ErrPersistence
	}

	response, state, err := e.pake.Login(e.config.Setup, envelope.Envelope, request, identityValue)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginStart, false, identityValue, err, func() map[string]string {
			return map[string]string{
				"reason": "engine_rejected",
			}
		})
		return nil, ErrEngineRejected
	}

	key, err := internal.NewAttemptKey()
	if err != nil {
		e.emitAudit(ctx, auditEventLoginStart, false, identityValue, err, nil)
		return nil, ErrAttemptStoreUnavailable
	}

	attempt := &loginAttempt{
		IdentityID:    id.ID,
		IdentityValue: id.Value,
		EngineState:   state,
		ExpiresAt:     time.Now().Add(e.config.Attempt.TTL).Unix(),
	}
	if err := e.attempts.Save(ctx, key.String(), attempt, e.config.Attempt.TTL); err != nil {
		e.emitAudit(ctx, auditEventLoginStart, false, identityValue, err, nil)
		return nil, ErrAttemptStoreUnavailable
	}

	e.emitAudit(ctx, auditEventLoginStart, true, identityValue, nil, nil)
	return &LoginChallenge{Response: response, AttemptKey: key.String()}, nil
}

// LoginFinish drives the second login round trip: it consumes the attempt
// state through the cache's atomic get-and-delete, verifies the client's
// finish message with the engine, and on success hands the derived key
// and identity to the session issuer.
//
// Consumption is at most once. A key that is unknown, already consumed,
// or past its TTL fails with [ErrAttemptNotFound]; a failed proof leaves
// the attempt deleted, so the client must restart from LoginStart.
func (e *Engine) LoginFinish(ctx context.Context, attemptKey string, finish []byte) (*LoginResult, error) {
	if e == nil || e.pake == nil || e.attempts == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if len(finish) == 0 {
		return nil, ErrPayloadRequired
	}
	if _, err := internal.ParseAttemptKey(attemptKey); err != nil {
		e.metricInc(MetricAttemptNotFound)
		return nil, ErrAttemptNotFound
	}

	attempt, err := e.attempts.Take(ctx, attemptKey)
	if err != nil {
		if errors.Is(err, errAttemptNotFound) {
			e.metricInc(MetricAttemptNotFound)
			e.emitAudit(ctx, auditEventLoginFinish, false, "", ErrAttemptNotFound, nil)
			return nil, ErrAttemptNotFound
		}
		e.emitAudit(ctx, auditEventLoginFinish, false, "", err, nil)
		return nil, ErrAttemptStoreUnavailable
	}

	sessionKey, err := e.pake.LoginFinish(finish, attempt.EngineState)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFinish, false, attempt.IdentityValue, err, func() map[string]string {
			return map[string]string{
				"reason": "engine_rejected",
			}
		})
		return nil, ErrEngineRejected
	}

	id := identity.Identity{ID: attempt.IdentityID, Value: attempt.IdentityValue}
	token, err := e.sessions.Bind(ctx, id, sessionKey)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFinish, false, attempt.IdentityValue, err, func() map[string]string {
			return map[string]string{
				"reason": "session_bind",
			}
		})
		return nil, ErrPersistence
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventLoginFinish, true, attempt.IdentityValue, nil, nil)
	return &LoginResult{Identity: id, Token: token}, nil
}
