package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (versa.sessions).
//
// English design notes:
// - The pool is owned by the caller.
// - Expired rows stay until Resolve deletes them or DeleteExpired runs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO versa.sessions (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, row.TokenHash, row.UserID, row.CreatedAt, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("session: pg insert: %w", err)
	}
	return nil
}

// Get loads a session row by token hash.
func (s *PostgresStore) Get(ctx context.Context, tokenHash string) (Row, error) {
	var row Row

	err := s.pool.QueryRow(ctx, `
		SELECT token_hash, user_id, created_at, expires_at
		FROM versa.sessions
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&row.TokenHash,
		&row.UserID,
		&row.CreatedAt,
		&row.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("session: pg get: %w", err)
	}
	return row, nil
}

// Delete removes a session (idempotent).
func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM versa.sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("session: pg delete: %w", err)
	}
	return nil
}

// DeleteExpired removes every session expired at now.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM versa.sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("session: pg prune: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
