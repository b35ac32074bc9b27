package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versaid/cmd/security/token"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	st := NewMemoryStore()
	cfg := DefaultConfig()
	cfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	return NewService(cfg, st), st
}

func TestService_IssueResolve(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	iss, err := svc.Issue(ctx, now, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), iss.UserID)
	assert.Equal(t, now.Add(24*time.Hour), iss.ExpiresAt)
	require.NotEmpty(t, iss.Token)

	row, err := svc.Resolve(ctx, now.Add(time.Hour), iss.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.UserID)

	// The store only ever sees the digest.
	assert.NotEqual(t, iss.Token, row.TokenHash)
	assert.Len(t, row.TokenHash, 64)
	assert.Equal(t, 1, st.Len())
}

func TestService_ResolveUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	for _, tok := range []string{"", "   ", "nope", strings.Repeat("x", maxTokenLen+1)} {
		_, err := svc.Resolve(ctx, now, tok)
		assert.ErrorIs(t, err, ErrSessionNotFound, "token %q", tok)
		assert.True(t, IsUnauthenticated(err))
	}
}

func TestService_ExpiryIsLazy(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	iss, err := svc.Issue(ctx, now, 1)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, now.Add(24*time.Hour), iss.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, IsUnauthenticated(err))
	assert.Equal(t, 0, st.Len(), "expired session must be deleted on access")

	_, err = svc.Resolve(ctx, now, iss.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_DestroyIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	iss, err := svc.Issue(ctx, now, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Destroy(ctx, iss.Token))
	}
	require.NoError(t, svc.Destroy(ctx, ""))

	_, err = svc.Resolve(ctx, now, iss.Token)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestService_Prune(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Issue(ctx, base, 1)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, base.Add(12*time.Hour), 2)
	require.NoError(t, err)

	n, err := svc.Prune(ctx, base.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, st.Len())
}

func TestService_SecretChangesDigest(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	keyed := NewService(Config{Secret: []byte("k")}, st)
	iss, err := keyed.Issue(ctx, now, 1)
	require.NoError(t, err)

	// A service without the key cannot resolve the keyed session.
	plain := NewService(Config{}, st)
	_, err = plain.Resolve(ctx, now, iss.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = st.Get(ctx, token.NewHasher([]byte("k")).HashSessionTokenHex(iss.Token))
	assert.NoError(t, err)
}

func TestService_Keyed(t *testing.T) {
	assert.False(t, NewService(Config{}, NewMemoryStore()).Keyed())
	assert.True(t, NewService(Config{Secret: []byte("k")}, NewMemoryStore()).Keyed())
}

// mismatchStore returns a row recorded under a different digest.
type mismatchStore struct{ *MemoryStore }

func (m mismatchStore) Get(ctx context.Context, _ string) (Row, error) {
	return Row{TokenHash: strings.Repeat("0", 64), UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func TestService_ResolveRejectsForeignRow(t *testing.T) {
	svc := NewService(Config{}, mismatchStore{NewMemoryStore()})
	_, err := svc.Resolve(context.Background(), time.Now(), "some-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// failingDeleteStore serves rows but cannot delete them.
type failingDeleteStore struct{ *MemoryStore }

var errBackendDown = errors.New("backend down")

func (f failingDeleteStore) Delete(context.Context, string) error { return errBackendDown }

func TestService_ExpiredDeleteFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	st := failingDeleteStore{NewMemoryStore()}
	svc := NewService(Config{}, st, WithLogger(log))
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	iss, err := svc.Issue(ctx, now, 42)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, now.Add(25*time.Hour), iss.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	out := buf.String()
	assert.Contains(t, out, `"msg":"session.expire.delete.fail"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, errBackendDown.Error())
	assert.NotContains(t, out, iss.Token, "plain tokens are never logged")
}
