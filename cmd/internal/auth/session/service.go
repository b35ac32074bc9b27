package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"versaid/cmd/security/token"
)

// maxTokenLen bounds client-supplied tokens before hashing.
const maxTokenLen = 512

// Service implements the high-level session operations for VERSA-ID.
type Service struct {
	cfg    Config
	store  Store
	hasher token.Hasher
	log    *slog.Logger
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithLogger sets the logger for store failures that do not reach the caller.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// Issued is the result of issuing a session. Token is the plain cookie value
// and must be shown to the client exactly once and never logged.
type Issued struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

// NewService constructs a Service with the provided configuration and store.
func NewService(cfg Config, store Store, opts ...ServiceOption) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.TokenBytes <= 0 {
		cfg.TokenBytes = DefaultConfig().TokenBytes
	}
	s := &Service{cfg: cfg, store: store, hasher: token.NewHasher(cfg.Secret), log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Keyed reports whether token digests are HMAC-keyed rather than plain SHA-256.
func (s *Service) Keyed() bool { return s.hasher.HMAC() }

// TTL returns the configured session lifetime.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Issue creates a new session for userID that expires TTL after now.
func (s *Service) Issue(ctx context.Context, now time.Time, userID int64) (Issued, error) {
	plain, err := token.NewRandomToken(s.cfg.TokenBytes)
	if err != nil {
		return Issued{}, err
	}

	row := Row{
		TokenHash: s.hasher.HashSessionTokenHex(plain),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.store.Create(ctx, row); err != nil {
		return Issued{}, err
	}

	return Issued{Token: plain, UserID: userID, ExpiresAt: row.ExpiresAt}, nil
}

// Resolve returns the live session for a plain token.
//
// An expired session is deleted and reported as ErrSessionExpired; callers
// treat it exactly like ErrSessionNotFound.
func (s *Service) Resolve(ctx context.Context, now time.Time, plain string) (Row, error) {
	plain = strings.TrimSpace(plain)
	// Basic sanity bounds to avoid pathological inputs.
	if plain == "" || len(plain) > maxTokenLen {
		return Row{}, ErrSessionNotFound
	}

	hash := s.hasher.HashSessionTokenHex(plain)
	row, err := s.store.Get(ctx, hash)
	if err != nil {
		return Row{}, err
	}
	// A shared Redis keyspace can hand back a row written under another key.
	if !token.EqualHex64(row.TokenHash, hash) {
		return Row{}, ErrSessionNotFound
	}

	if row.Expired(now) {
		// The caller sees an expired session either way; the janitor retries.
		if err := s.store.Delete(ctx, hash); err != nil && !errors.Is(err, ErrSessionNotFound) {
			s.log.Warn("session.expire.delete.fail", "user_id", row.UserID, "err", err)
		}
		return Row{}, ErrSessionExpired
	}
	return row, nil
}

// Destroy deletes the session for a plain token. It is idempotent: unknown
// or empty tokens are not an error.
func (s *Service) Destroy(ctx context.Context, plain string) error {
	plain = strings.TrimSpace(plain)
	if plain == "" || len(plain) > maxTokenLen {
		return nil
	}
	err := s.store.Delete(ctx, s.hasher.HashSessionTokenHex(plain))
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// Prune removes sessions expired at now.
func (s *Service) Prune(ctx context.Context, now time.Time) (int, error) {
	return s.store.DeleteExpired(ctx, now)
}

// IsUnauthenticated reports whether err means "no valid session".
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}
