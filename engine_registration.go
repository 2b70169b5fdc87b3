package opaquegate

import (
	"context"
	"errors"

	"github.com/opaquegate/opaquegate/credential"
	"github.com/opaquegate/opaquegate/identity"
)

// RegisterStart drives the first registration round trip: it rejects
// identities that already hold an active credential and otherwise
// forwards the client's registration request to the key exchange engine,
// returning the engine's response verbatim.
func (e *Engine) RegisterStart(ctx context.Context, identityValue string, request []byte) ([]byte, error) {
	if e == nil || e.pake == nil || e.credentials == nil || e.identities == nil {
		return nil, ErrEngineNotReady
	}
	if identityValue == "" {
		return nil, ErrIdentityRequired
	}
	if len(request) == 0 {
		return nil, ErrPayloadRequired
	}

	e.metricInc(MetricRegisterStart)

	if err := e.rejectExistingCredential(ctx, identityValue); err != nil {
		if errors.Is(err, ErrCredentialExists) {
			e.metricInc(MetricRegisterConflict)
		}
		e.emitAudit(ctx, auditEventRegisterStart, false, identityValue, err, nil)
		return nil, err
	}

	response, err := e.pake.Register(e.config.Setup, request, identityValue)
	if err != nil {
		e.metricInc(MetricRegisterRejected)
		e.emitAudit(ctx, auditEventRegisterStart, false, identityValue, err, func() map[string]string {
			return map[string]string{
				"reason": "engine_rejected",
			}
		})
		return nil, ErrEngineRejected
	}

	e.emitAudit(ctx, auditEventRegisterStart, true, identityValue, nil, nil)
	return response, nil
}

// RegisterFinish commits a registration: it re-checks the conflict
// invariant (the two phases are not atomic, so a race is possible),
// obtains the sealed envelope from the engine, and persists it through
// the store's atomic create-if-absent. Of two concurrent finishes for the
// same identity exactly one succeeds; the other observes the conflict.
func (e *Engine) RegisterFinish(ctx context.Context, identityValue string, record []byte) error {
	if e == nil || e.pake == nil || e.credentials == nil || e.identities == nil {
		return ErrEngineNotReady
	}
	if identityValue == "" {
		return ErrIdentityRequired
	}
	if len(record) == 0 {
		return ErrPayloadRequired
	}

	id, err := e.identities.FindOrCreate(ctx, identityValue)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFinish, false, identityValue, err, func() map[string]string {
			return map[string]string{
				"reason": "identity_directory",
			}
		})
		return ErrPersistence
	}

	exists, err := e.credentials.Exists(ctx, id.ID)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFinish, false, identityValue, err, nil)
		return ErrPersistence
	}
	if exists {
		e.metricInc(MetricRegisterConflict)
		e.emitAudit(ctx, auditEventRegisterFinish, false, identityValue, ErrCredentialExists, nil)
		return ErrCredentialExists
	}

	envelope, err := e.pake.RegisterFinish(e.config.Setup, identityValue, record)
	if err != nil {
		e.metricInc(MetricRegisterRejected)
		e.emitAudit(ctx, auditEventRegisterFinish, false, identityValue, err, func() map[string]string {
			return map[string]string{
				"reason": "engine_rejected",
			}
		})
		return ErrEngineRejected
	}

	if err := e.credentials.CreateIfAbsent(ctx, id.ID, envelope); err != nil {
		if errors.Is(err, credential.ErrConflict) {
			e.metricInc(MetricRegisterConflict)
			e.emitAudit(ctx, auditEventRegisterFinish, false, identityValue, ErrCredentialExists, func() map[string]string {
				return map[string]string{
					"reason": "commit_race",
				}
			})
			return ErrCredentialExists
		}
		e.emitAudit(ctx, auditEventRegisterFinish, false, identityValue, err, nil)
		return ErrPersistence
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterFinish, true, identityValue, nil, nil)
	return nil
}

// rejectExistingCredential enforces the one-active-credential invariant
// for an identity that may not exist yet.
func (e *Engine) rejectExistingCredential(ctx context.Context, identityValue string) error {
	id, err := e.identities.Find(ctx, identityValue)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil
		}
		return ErrPersistence
	}

	exists, err := e.credentials.Exists(ctx, id.ID)
	if err != nil {
		return ErrPersistence
	}
	if exists {
		return ErrCredentialExists
	}
	return nil
}
