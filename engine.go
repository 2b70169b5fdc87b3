package opaquegate

import (
	"context"
	"time"

	"github.com/opaquegate/opaquegate/credential"
	"github.com/opaquegate/opaquegate/identity"
	"github.com/opaquegate/opaquegate/pake"
)

// Engine orchestrates the registration and login protocols over its
// injected collaborators: the key exchange engine, the credential and
// identity stores, the shared attempt cache, and the session issuer.
//
// Engine instances are configured through [Builder.Build] and immutable
// afterwards; all methods are safe for concurrent use. Each request is
// stateless at this layer; every piece of cross-request state lives in
// the shared stores, so any instance may serve any phase of an exchange.
type Engine struct {
	config      Config
	pake        pake.Engine
	credentials credential.Store
	identities  identity.Store
	attempts    *loginAttemptStore
	sessions    SessionIssuer
	audit       *auditDispatcher
	metrics     *Metrics
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under
// back-pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityValue string,
	failure error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Identity:  identityValue,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}
