// Package postgres provides a pgx-backed credential.Store.
//
// Expected schema:
//
//	CREATE TABLE credentials (
//	    identity_id UUID        NOT NULL,
//	    envelope    BYTEA       NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL,
//	    invalidated BOOLEAN     NOT NULL DEFAULT FALSE
//	);
//	CREATE UNIQUE INDEX credentials_active_identity
//	    ON credentials (identity_id) WHERE NOT invalidated;
//
// The partial unique index is what makes CreateIfAbsent atomic with
// respect to the one-active-envelope invariant.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opaquegate/opaquegate/credential"
)

// Store is a postgres-backed envelope store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on top of an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get implements credential.Store.
func (s *Store) Get(ctx context.Context, identityID string) (credential.Envelope, error) {
	query := `
		SELECT identity_id, envelope, created_at, updated_at, invalidated
		FROM credentials
		WHERE identity_id = $1 AND NOT invalidated
	`

	var env credential.Envelope
	err := s.pool.QueryRow(ctx, query, identityID).Scan(
		&env.IdentityID, &env.Envelope, &env.CreatedAt, &env.UpdatedAt, &env.Invalidated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.Envelope{}, credential.ErrNotFound
		}
		return credential.Envelope{}, fmt.Errorf("credential lookup: %w", err)
	}
	return env, nil
}

// Exists implements credential.Store.
func (s *Store) Exists(ctx context.Context, identityID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM credentials WHERE identity_id = $1 AND NOT invalidated)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, identityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("credential exists: %w", err)
	}
	return exists, nil
}

// CreateIfAbsent implements credential.Store. The insert races on the
// partial unique index; the loser observes zero affected rows and maps
// that to ErrConflict.
func (s *Store) CreateIfAbsent(ctx context.Context, identityID string, envelope []byte) error {
	query := `
		INSERT INTO credentials (identity_id, envelope, created_at, updated_at, invalidated)
		VALUES ($1, $2, $3, $3, FALSE)
		ON CONFLICT (identity_id) WHERE NOT invalidated DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, identityID, envelope, time.Now())
	if err != nil {
		return fmt.Errorf("credential insert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrConflict
	}
	return nil
}

// Invalidate implements credential.Store.
func (s *Store) Invalidate(ctx context.Context, identityID string) error {
	query := `
		UPDATE credentials SET invalidated = TRUE, updated_at = $2
		WHERE identity_id = $1 AND NOT invalidated
	`

	if _, err := s.pool.Exec(ctx, query, identityID, time.Now()); err != nil {
		return fmt.Errorf("credential invalidate: %w", err)
	}
	return nil
}
