package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"versaid/cmd/identity/ids"
)

// Integration tests are opt-in and require VERSA_TEST_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateUser_Conflicts(t *testing.T) {
	t.Parallel()

	s := mustNewTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{
		Username:     "alice",
		Email:        "alice@x.com",
		PasswordHash: "hash.salt",
		FullName:     "Alice",
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID <= 0 {
		t.Fatalf("expected positive id, got %d", u.ID)
	}

	_, err = s.CreateUser(ctx, CreateUserInput{Username: "alice", Email: "other@x.com", PasswordHash: "h.s"})
	if ConflictField(err) != "username" {
		t.Fatalf("expected username conflict, got %v", err)
	}

	_, err = s.CreateUser(ctx, CreateUserInput{Username: "alice2", Email: "alice@x.com", PasswordHash: "h.s"})
	if ConflictField(err) != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func TestPostgresStore_ConnectWallet_RoundTrip(t *testing.T) {
	t.Parallel()

	s := mustNewTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a, err := s.CreateUser(ctx, CreateUserInput{Username: "a", Email: "a@x.com", PasswordHash: "h.s"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateUser(ctx, CreateUserInput{Username: "b", Email: "b@x.com", PasswordHash: "h.s"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	if _, err := s.ConnectWallet(ctx, ConnectWalletInput{UserID: b.ID, WalletAddress: "0xABC"}); err != nil {
		t.Fatalf("connect b: %v", err)
	}
	updated, err := s.ConnectWallet(ctx, ConnectWalletInput{UserID: a.ID, WalletAddress: "0xabc"})
	if err != nil {
		t.Fatalf("connect a: %v", err)
	}
	if updated.VersaID == nil || updated.WalletAddress == nil {
		t.Fatalf("wallet fields not set: %+v", updated)
	}

	got, err := s.GetUserByVersaID(ctx, *updated.VersaID)
	if err != nil {
		t.Fatalf("by versa id: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("expected lowest id %d, got %d", a.ID, got.ID)
	}

	if _, err := s.ConnectWallet(ctx, ConnectWalletInput{UserID: 1 << 40, WalletAddress: "0x1"}); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "nobody"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func mustNewTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	pool := mustOpenTestPool(t)
	t.Cleanup(pool.Close)

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyUsersSchema(t, pool, schema)

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("VERSA_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: VERSA_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse VERSA_TEST_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "versa_it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

// mustApplyUsersSchema mirrors migrations/00001_create_users.sql inside an isolated schema.
func mustApplyUsersSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	ddl := fmt.Sprintf(`
CREATE TABLE %s (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  username TEXT NOT NULL,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  full_name TEXT NOT NULL DEFAULT '',
  wallet_address TEXT NULL,
  versa_id TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT uq_users_username UNIQUE (username),
  CONSTRAINT uq_users_email UNIQUE (email),
  CONSTRAINT chk_users_wallet_pair CHECK ((wallet_address IS NULL) = (versa_id IS NULL))
);`, users)

	if _, err := pool.Exec(ctx, ddl); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}
