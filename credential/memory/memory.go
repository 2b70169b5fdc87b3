// Package memory provides an in-process credential.Store used by tests
// and the example server.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/opaquegate/opaquegate/credential"
)

// Store keeps envelopes in a map guarded by a mutex, which makes
// CreateIfAbsent trivially atomic. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	byID map[string]credential.Envelope
}

// New creates an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]credential.Envelope)}
}

// Get implements credential.Store.
func (s *Store) Get(_ context.Context, identityID string) (credential.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.byID[identityID]
	if !ok || env.Invalidated {
		return credential.Envelope{}, credential.ErrNotFound
	}

	out := env
	out.Envelope = append([]byte(nil), env.Envelope...)
	return out, nil
}

// Exists implements credential.Store.
func (s *Store) Exists(_ context.Context, identityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.byID[identityID]
	return ok && !env.Invalidated, nil
}

// CreateIfAbsent implements credential.Store.
func (s *Store) CreateIfAbsent(_ context.Context, identityID string, envelope []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env, ok := s.byID[identityID]; ok && !env.Invalidated {
		return credential.ErrConflict
	}

	now := time.Now()
	s.byID[identityID] = credential.Envelope{
		IdentityID: identityID,
		Envelope:   append([]byte(nil), envelope...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

// Invalidate implements credential.Store.
func (s *Store) Invalidate(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.byID[identityID]
	if !ok {
		return nil
	}
	env.Invalidated = true
	env.UpdatedAt = time.Now()
	s.byID[identityID] = env
	return nil
}
