// Package memory provides an in-process identity.Store used by tests and
// the example server.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opaquegate/opaquegate/identity"
)

// Store maps external identity values to directory entries. Safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	byValue map[string]identity.Identity
}

// New creates an empty Store.
func New() *Store {
	return &Store{byValue: make(map[string]identity.Identity)}
}

// FindOrCreate implements identity.Store.
func (s *Store) FindOrCreate(_ context.Context, value string) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byValue[value]; ok {
		return id, nil
	}

	id := identity.Identity{ID: uuid.NewString(), Value: value}
	s.byValue[value] = id
	return id, nil
}

// Find implements identity.Store.
func (s *Store) Find(_ context.Context, value string) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byValue[value]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	return id, nil
}
