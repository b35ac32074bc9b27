// Package app wires the VERSA-ID server runtime: config, logging, storage
// backends, HTTP routes and the realtime notification channel.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"versaid/cmd/identity"
	authapi "versaid/cmd/internal/auth/api"
	"versaid/cmd/internal/auth/session"
	"versaid/cmd/internal/auth/sso"
	"versaid/cmd/internal/metrics"
	"versaid/cmd/internal/otp"
	"versaid/cmd/internal/realtime"
	"versaid/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the VERSA-ID server runtime: it owns the HTTP server, storage
// clients and the realtime hub.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	redis  *redis.Client

	metrics *metrics.Metrics
	hub     *realtime.Hub
	ws      *realtime.WSGateway
	auth    *authapi.Handler
	janitor *Janitor
}

// New constructs a fully wired App instance from config and logger.
//
// English comment:
// - Without VERSA_DATABASE_URL, users live in memory (development mode).
// - Sessions and OTP codes live in memory unless their store selects Redis
//   (or Postgres, for sessions).
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	ok := false
	defer func() {
		if !ok {
			a.closeClients()
		}
	}()

	users, err := a.newUserStore(ctx)
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	otpCfg, err := otp.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("otp config: %w", err)
	}

	sessStore, otpStore, err := a.newEphemeralStores(ctx, sessCfg, otpCfg)
	if err != nil {
		return nil, err
	}
	sessions := session.NewService(sessCfg, sessStore, session.WithLogger(log))
	if !sessions.Keyed() {
		log.Warn("session.digest.unkeyed", "hint", "set VERSA_SESSION_SECRET for HMAC session digests")
	}
	codes := otp.NewRegistry(otpStore, otpCfg.TTL)

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}
	ssoCfg, err := sso.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	issuer, err := sso.NewIssuer(ssoCfg)
	if err != nil {
		return nil, err
	}

	a.hub = realtime.NewHub(log, a.metrics)

	authHandler, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), authapi.Services{
		Users:     users,
		Sessions:  sessions,
		Passwords: pwCfg,
		OTP:       codes,
		SSO:       issuer,
		Publisher: a.hub,
	}, authapi.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	a.auth = authHandler

	a.ws, err = realtime.NewWSGateway(log, a.hub, authHandler)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if cfg.JanitorSchedule != "" {
		a.janitor, err = NewJanitor(log, cfg.JanitorSchedule, map[string]Pruner{
			"session": sessions,
			"otp":     PrunerFunc(codes.Sweep),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: janitor schedule %q: %v", ErrConfig, cfg.JanitorSchedule, err)
		}
	}

	ok = true
	return a, nil
}

// Handler returns the full middleware-wrapped router.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)
	return WithRequestID(WithSecurityHeaders(WithRequestLogging(mux, a.log, a.metrics)))
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		a.log.Error("server.listen.fail", "addr", a.cfg.HTTPAddr, "err", err)
		a.closeClients()
		return err
	}

	base := runtimeBaseURL(ln.Addr().String())
	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/api/ws",
		"db_enabled", a.dbPool != nil,
		"redis_enabled", a.redis != nil,
	)

	if a.janitor != nil {
		a.janitor.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	a.hub.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	if a.janitor != nil {
		a.janitor.Stop(shutdownCtx)
	}
	a.closeClients()

	a.log.Info("server.stopped")
	return runErr
}

func (a *App) newUserStore(ctx context.Context) (identity.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a.dbPool = pool

	if a.cfg.DBMigrate {
		if err := MigrateDB(ctx, pool); err != nil {
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		a.log.Info("db.migrated")
	}

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore never closes it
	st, err := identity.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	a.log.Info("db.enabled.postgres_store")
	return st, nil
}

func (a *App) newEphemeralStores(ctx context.Context, sc session.Config, oc otp.Config) (session.Store, otp.Store, error) {
	if sc.Backend == session.BackendRedis || oc.Backend == otp.BackendRedis {
		if a.cfg.RedisURL == "" {
			return nil, nil, fmt.Errorf("%w: redis store selected but VERSA_REDIS_URL is empty", ErrConfig)
		}
		client, err := NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = client
	}

	var sessStore session.Store
	switch sc.Backend {
	case session.BackendRedis:
		sessStore = session.NewRedisStore(a.redis, sc.RedisPrefix)
	case session.BackendPostgres:
		if a.dbPool == nil {
			return nil, nil, fmt.Errorf("%w: postgres session store selected but VERSA_DATABASE_URL is empty", ErrConfig)
		}
		sessStore = session.NewPostgresStore(a.dbPool)
	default:
		sessStore = session.NewMemoryStore()
	}
	var codeStore otp.Store = otp.NewMemoryStore()
	if oc.Backend == otp.BackendRedis {
		codeStore = otp.NewRedisStore(a.redis, oc.RedisPrefix)
	}

	a.log.Info("ephemeral.stores", "session", string(sc.Backend), "otp", string(oc.Backend))
	return sessStore, codeStore, nil
}

func (a *App) closeClients() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL to its ws(s) equivalent.
func wsBaseURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "ws://" + strings.TrimPrefix(base, "//")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
