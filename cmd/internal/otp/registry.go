package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// codeBytes random bytes encode to a 6 character upper-case hex code.
const codeBytes = 3

// Registry issues and verifies codes over a Store.
type Registry struct {
	store Store
	ttl   time.Duration
}

// NewRegistry returns a Registry. A non-positive ttl falls back to 5 minutes.
func NewRegistry(store Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	return &Registry{store: store, ttl: ttl}
}

// TTL returns the code lifetime.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Issue generates a fresh code for identifier, replacing any live one.
// The caller delivers the code out of band.
func (r *Registry) Issue(ctx context.Context, now time.Time, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", ErrInvalidIdentifier
	}

	code, err := newCode()
	if err != nil {
		return "", err
	}

	if err := r.store.Put(ctx, Entry{Identifier: identifier, Code: code, IssuedAt: now}, r.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// Verify reports whether code is the live code for identifier at now.
//
// English comment:
//   - Missing entry: false.
//   - Older than TTL: the entry is deleted, false.
//   - code must equal the issued code exactly: no trimming or case folding.
//   - Codes are compared in constant time; a match consumes the entry.
func (r *Registry) Verify(ctx context.Context, now time.Time, identifier, code string) (bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || code == "" {
		return false, nil
	}

	e, ok, err := r.store.Get(ctx, identifier)
	if err != nil || !ok {
		return false, err
	}

	if now.Sub(e.IssuedAt) > r.ttl {
		if err := r.store.Delete(ctx, identifier); err != nil {
			return false, err
		}
		return false, nil
	}

	if !codesEqual(e.Code, code) {
		return false, nil
	}

	// A concurrent verifier or re-issue may have raced us; only one delete wins.
	return r.store.CompareAndDelete(ctx, identifier, e.Code)
}

// Sweep removes entries that can no longer verify at now.
func (r *Registry) Sweep(ctx context.Context, now time.Time) (int, error) {
	return r.store.DeleteIssuedBefore(ctx, now.Add(-r.ttl))
}

func newCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("otp: rand: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

func codesEqual(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
