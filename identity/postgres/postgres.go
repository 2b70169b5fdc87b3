// Package postgres provides a pgx-backed identity.Store.
//
// Expected schema:
//
//	CREATE TABLE identities (
//	    id    UUID PRIMARY KEY,
//	    value TEXT NOT NULL UNIQUE
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opaquegate/opaquegate/identity"
)

// Store is a postgres-backed identity directory.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on top of an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindOrCreate implements identity.Store. The upsert returns the existing
// row when the value is already registered, so concurrent calls for the
// same value resolve to one entry.
func (s *Store) FindOrCreate(ctx context.Context, value string) (identity.Identity, error) {
	query := `
		INSERT INTO identities (id, value)
		VALUES ($1, $2)
		ON CONFLICT (value) DO UPDATE SET value = EXCLUDED.value
		RETURNING id, value
	`

	var id identity.Identity
	err := s.pool.QueryRow(ctx, query, uuid.NewString(), value).Scan(&id.ID, &id.Value)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("identity upsert: %w", err)
	}
	return id, nil
}

// Find implements identity.Store.
func (s *Store) Find(ctx context.Context, value string) (identity.Identity, error) {
	query := `SELECT id, value FROM identities WHERE value = $1`

	var id identity.Identity
	err := s.pool.QueryRow(ctx, query, value).Scan(&id.ID, &id.Value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Identity{}, identity.ErrNotFound
		}
		return identity.Identity{}, fmt.Errorf("identity lookup: %w", err)
	}
	return id, nil
}
