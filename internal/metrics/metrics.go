// Package metrics provides lock-free counters for engine observability.
//
// Counters live in cache-line-padded uint64 slots and are incremented
// atomically. When disabled, every operation is a no-op. Export is the
// caller's concern; this package only stores and snapshots.
package metrics

import "sync/atomic"

// MetricID identifies one counter slot.
type MetricID uint8

const (
	MetricRegisterStart MetricID = iota
	MetricRegisterConflict
	MetricRegisterRejected
	MetricRegisterSuccess
	MetricLoginStart
	MetricLoginNoCredential
	MetricLoginSuccess
	MetricLoginFailure
	MetricAttemptNotFound
	MetricSessionIssued
	MetricSessionInvalidated

	// MetricIDCount is the number of counter slots.
	MetricIDCount
)

type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// Config controls metric collection.
type Config struct {
	Enabled bool
}

// Metrics holds the counter slots. The zero value is unusable; create
// with New.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// New creates a Metrics instance. When cfg.Enabled is false, Inc and
// Snapshot are no-ops.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc atomically increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Snapshot returns a deep copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[MetricID]uint64, MetricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].value.Load()
	}
	return snap
}
