// Package identity defines the directory contract the authentication core
// resolves principals against. The core never owns identity records; it
// only reads or creates them through [Store].
package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Store.Find] when no record matches the value.
var ErrNotFound = errors.New("identity not found")

// Identity is the resolved principal: the internal key plus the external
// value it was looked up by (email address by default).
type Identity struct {
	ID    string
	Value string
}

// Store is the identity directory consumed by the engine.
type Store interface {
	// FindOrCreate resolves value to an identity, creating a directory
	// entry when none exists.
	FindOrCreate(ctx context.Context, value string) (Identity, error)
	// Find resolves value to an existing identity or returns ErrNotFound.
	Find(ctx context.Context, value string) (Identity, error)
}
