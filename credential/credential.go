// Package credential defines the persistent store for sealed registration
// envelopes. An identity holds at most one active envelope at any time;
// the store's CreateIfAbsent is the atomic commit point that enforces it.
package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an identity has no stored envelope.
	ErrNotFound = errors.New("credential not found")
	// ErrConflict is returned by CreateIfAbsent when an active envelope
	// already exists for the identity.
	ErrConflict = errors.New("credential already exists")
)

// Envelope is the sealed credential produced by registration. The envelope
// bytes are opaque to this package and must round-trip unchanged.
type Envelope struct {
	IdentityID  string
	Envelope    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Invalidated bool
}

// Store persists envelopes keyed by the resolved internal identity.
//
// Replacement of an active envelope is never exposed as an update; callers
// with the authority to re-register must Invalidate first and then
// CreateIfAbsent again.
type Store interface {
	// Get returns the active envelope for the identity, or ErrNotFound
	// when none exists or the stored one is invalidated.
	Get(ctx context.Context, identityID string) (Envelope, error)
	// Exists reports whether an active envelope exists for the identity.
	Exists(ctx context.Context, identityID string) (bool, error)
	// CreateIfAbsent stores a new active envelope. It must be atomic:
	// of two concurrent calls for the same identity exactly one succeeds
	// and the other returns ErrConflict.
	CreateIfAbsent(ctx context.Context, identityID string, envelope []byte) error
	// Invalidate marks the identity's active envelope as invalidated.
	// Invalidating a missing credential is not an error.
	Invalidate(ctx context.Context, identityID string) error
}
