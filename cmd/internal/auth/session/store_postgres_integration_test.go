package session

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"versaid/cmd/identity"
	"versaid/cmd/identity/ids"
	"versaid/cmd/identity/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

func mustOpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("VERSA_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: VERSA_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("pgx"))
	require.NoError(t, goose.UpContext(ctx, db, "."))
	return pool
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	pool := mustOpenMigratedPool(t)
	ctx := context.Background()

	users, err := identity.NewPostgresStore(pool)
	require.NoError(t, err)
	suffix, err := ids.NewULID(time.Now())
	require.NoError(t, err)
	name := "sess_" + strings.ToLower(suffix)
	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Username: name, Email: name + "@example.com", PasswordHash: "x.y",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		bg := context.Background()
		_, _ = pool.Exec(bg, `DELETE FROM versa.sessions WHERE user_id = $1`, u.ID)
		_, _ = pool.Exec(bg, `DELETE FROM versa.users WHERE id = $1`, u.ID)
	})

	svc := NewService(Config{Secret: []byte("integration-secret")}, NewPostgresStore(pool))
	now := time.Now().UTC().Truncate(time.Microsecond)

	iss, err := svc.Issue(ctx, now, u.ID)
	require.NoError(t, err)

	row, err := svc.Resolve(ctx, now.Add(time.Hour), iss.Token)
	require.NoError(t, err)
	require.Equal(t, u.ID, row.UserID)

	require.NoError(t, svc.Destroy(ctx, iss.Token))
	require.NoError(t, svc.Destroy(ctx, iss.Token))
	_, err = svc.Resolve(ctx, now, iss.Token)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Issue(ctx, now, u.ID)
	require.NoError(t, err)
	n, err := svc.Prune(ctx, now.Add(25*time.Hour))
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
}
