package session

import (
	"context"
	"time"
)

// Row is a stored session. TokenHash is the digest of the cookie token;
// the plain token is never stored.
type Row struct {
	TokenHash string    `json:"tokenHash"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (r Row) Expired(now time.Time) bool { return !r.ExpiresAt.After(now) }

// Store abstracts persistence for session state.
type Store interface {
	// Create stores a new session row.
	Create(ctx context.Context, row Row) error

	// Get loads a session row by token hash. Missing rows return ErrSessionNotFound.
	Get(ctx context.Context, tokenHash string) (Row, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteExpired removes sessions expired at now and reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
