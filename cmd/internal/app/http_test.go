package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newQuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setTestEnv(t *testing.T) {
	t.Helper()
	clearAppEnv(t)
	for k, v := range map[string]string{
		"VERSA_SESSION_STORE":        "",
		"VERSA_OTP_STORE":            "",
		"VERSA_TOKEN_HMAC_KEY":       "",
		"VERSA_SESSION_SECRET":       "",
		"VERSA_WS_REQUIRE_OWNERSHIP": "",
		"VERSA_SCRYPT_N":             "1024",
	} {
		t.Setenv(k, v)
	}
}

func newTestApp(t *testing.T, mutate func(*Config)) (*App, *httptest.Server) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.JanitorSchedule = ""
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := New(context.Background(), cfg, newQuietLogger())
	require.NoError(t, err)
	t.Cleanup(a.closeClients)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHTTP_HealthAndReadiness(t *testing.T) {
	setTestEnv(t)
	_, srv := newTestApp(t, nil)

	resp, body := get(t, srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok\n", body)
	require.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, _ = get(t, srv.URL+"/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_ReadinessRequiresDB(t *testing.T) {
	setTestEnv(t)
	_, srv := newTestApp(t, func(c *Config) { c.ReadinessRequireDB = true })

	resp, _ := get(t, srv.URL+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHTTP_APIDescriptionDownload(t *testing.T) {
	setTestEnv(t)
	_, srv := newTestApp(t, nil)

	resp, body := get(t, srv.URL+"/versa-id-api.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Equal(t, "attachment; filename=versa-id-api.json", resp.Header.Get("Content-Disposition"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	require.Equal(t, "VERSA-ID SSO API", doc["name"])
}

func TestHTTP_MetricsExposeRequests(t *testing.T) {
	setTestEnv(t)
	_, srv := newTestApp(t, nil)

	get(t, srv.URL+"/healthz")
	resp, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `versaid_http_requests_total{code="200",method="GET",route="GET /healthz"} 1`)
	require.Contains(t, body, "versaid_ws_connections 0")
}

func TestHTTP_MetricsDisabled(t *testing.T) {
	setTestEnv(t)
	_, srv := newTestApp(t, func(c *Config) { c.MetricsEnabled = false })

	resp, _ := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_RegisterThroughFullStack(t *testing.T) {
	setTestEnv(t)
	_, srv := newTestApp(t, nil)

	body := `{"username":"ada","email":"ada@example.com","fullName":"Ada Lovelace","password":"correct horse battery","confirmPassword":"correct horse battery"}`
	resp, err := http.Post(srv.URL+"/api/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp2, _ := get(t, srv.URL+"/api/versa-id/VERSA-00000000")
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestNew_RedisBackends(t *testing.T) {
	setTestEnv(t)
	mr := miniredis.RunT(t)
	t.Setenv("VERSA_SESSION_STORE", "redis")
	t.Setenv("VERSA_OTP_STORE", "redis")

	a, srv := newTestApp(t, func(c *Config) { c.RedisURL = "redis://" + mr.Addr() })
	require.NotNil(t, a.redis)

	body := `{"username":"grace","email":"grace@example.com","fullName":"Grace Hopper","password":"correct horse battery","confirmPassword":"correct horse battery"}`
	resp, err := http.Post(srv.URL+"/api/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NotEmpty(t, mr.Keys(), "session should be stored in redis")

	resp, _ = get(t, srv.URL+"/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_RedisSelectedWithoutURL(t *testing.T) {
	setTestEnv(t)
	t.Setenv("VERSA_SESSION_STORE", "redis")

	_, err := New(context.Background(), DefaultConfig(), newQuietLogger())
	require.ErrorIs(t, err, ErrConfig)
}

func TestNew_InvalidJanitorSchedule(t *testing.T) {
	setTestEnv(t)
	cfg := DefaultConfig()
	cfg.JanitorSchedule = "whenever"

	_, err := New(context.Background(), cfg, newQuietLogger())
	require.ErrorIs(t, err, ErrConfig)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	setTestEnv(t)
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"

	a, err := New(context.Background(), cfg, newQuietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)
}

func TestNew_PostgresSessionsWithoutDB(t *testing.T) {
	setTestEnv(t)
	t.Setenv("VERSA_SESSION_STORE", "postgres")

	_, err := New(context.Background(), DefaultConfig(), newQuietLogger())
	require.ErrorIs(t, err, ErrConfig)
}
