package otp

import (
	"context"
	"time"
)

// Entry is a live one-time code for an identifier.
type Entry struct {
	Identifier string
	Code       string
	IssuedAt   time.Time
}

// Store persists OTP entries.
type Store interface {
	// Put stores e, replacing any existing entry for e.Identifier.
	// ttl is a hint for stores that expire natively.
	Put(ctx context.Context, e Entry, ttl time.Duration) error

	// Get returns the entry for identifier, or ok=false.
	Get(ctx context.Context, identifier string) (e Entry, ok bool, err error)

	// Delete removes the entry for identifier. Missing entries are not an error.
	Delete(ctx context.Context, identifier string) error

	// CompareAndDelete removes the entry only when its code equals code,
	// and reports whether it did. Exactly one concurrent caller can win.
	CompareAndDelete(ctx context.Context, identifier, code string) (bool, error)

	// DeleteIssuedBefore removes entries issued strictly before cutoff.
	DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
