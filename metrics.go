package opaquegate

import internalmetrics "github.com/opaquegate/opaquegate/internal/metrics"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricRegisterStart counts registration start requests.
	MetricRegisterStart = internalmetrics.MetricRegisterStart
	// MetricRegisterConflict counts registrations rejected for an existing credential.
	MetricRegisterConflict = internalmetrics.MetricRegisterConflict
	// MetricRegisterRejected counts registrations the engine rejected.
	MetricRegisterRejected = internalmetrics.MetricRegisterRejected
	// MetricRegisterSuccess counts committed registrations.
	MetricRegisterSuccess = internalmetrics.MetricRegisterSuccess
	// MetricLoginStart counts login start requests.
	MetricLoginStart = internalmetrics.MetricLoginStart
	// MetricLoginNoCredential counts logins against identities without a credential.
	MetricLoginNoCredential = internalmetrics.MetricLoginNoCredential
	// MetricLoginSuccess counts completed logins.
	MetricLoginSuccess = internalmetrics.MetricLoginSuccess
	// MetricLoginFailure counts login finishes the engine rejected.
	MetricLoginFailure = internalmetrics.MetricLoginFailure
	// MetricAttemptNotFound counts finishes with an unknown or expired attempt key.
	MetricAttemptNotFound = internalmetrics.MetricAttemptNotFound
	// MetricSessionIssued counts platform sessions bound after login.
	MetricSessionIssued = internalmetrics.MetricSessionIssued
	// MetricSessionInvalidated counts explicit logouts.
	MetricSessionInvalidated = internalmetrics.MetricSessionInvalidated
)

// Metrics holds atomic counters for engine observability.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{Enabled: cfg.Enabled})
}
