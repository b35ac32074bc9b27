package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"versaid/cmd/identity"
	v1 "versaid/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	// wsDefaultReadIdle bounds how long a connection may stay open without
	// subscribing.
	wsDefaultReadIdle = 2 * time.Minute

	wsMaxPingFailures = 3

	// Origin is optional by default: CLI clients do not send one, and browsers
	// on the serving host are always accepted.
	wsDefaultOriginRequired = false
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// OwnershipResolver maps an upgrade request to the VERSA-ID of its
// authenticated user. ok is false when the request carries no valid session
// or the user has not connected a wallet.
type OwnershipResolver interface {
	VersaIDForRequest(ctx context.Context, r *http.Request) (versaID string, ok bool)
}

// gatewayConfig is the VERSA_WS_* tuning surface. Invalid or non-positive
// values fall back to the defaults.
type gatewayConfig struct {
	devInsecure      bool
	requireOwnership bool
	origins          originPolicy

	writeTimeout     time.Duration
	readIdleTimeout  time.Duration
	sendQueueSize    int
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration
	rateEvents       int
	rateWindow       time.Duration
}

func loadGatewayConfig() gatewayConfig {
	cfg := gatewayConfig{
		// InsecureSkipVerify disables websocket.Accept's origin check;
		// originPolicy.check still runs.
		devInsecure:      wsEnv("VERSA_WS_DEV_INSECURE", false, strconv.ParseBool),
		requireOwnership: wsEnv("VERSA_WS_REQUIRE_OWNERSHIP", false, strconv.ParseBool),
		origins: newOriginPolicy(
			wsEnv("VERSA_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired, strconv.ParseBool),
			splitCSV(wsEnv("VERSA_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins, asString)),
		),
		writeTimeout:     wsEnv("VERSA_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout, positiveDuration),
		readIdleTimeout:  wsEnv("VERSA_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle, positiveDuration),
		sendQueueSize:    wsEnv("VERSA_WS_SEND_QUEUE", wsDefaultSendQueueSize, positiveInt),
		heartbeatEvery:   wsEnv("VERSA_WS_HEARTBEAT_INTERVAL", heartbeatInterval, positiveDuration),
		heartbeatTimeout: wsEnv("VERSA_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout, positiveDuration),
		rateEvents:       wsEnv("VERSA_WS_RATE_EVENTS", rateLimitEvents, positiveInt),
		rateWindow:       wsEnv("VERSA_WS_RATE_WINDOW", rateLimitWindow, positiveDuration),
	}
	cfg.sendQueueSize = max(cfg.sendQueueSize, wsMinSendQueueSize)
	return cfg
}

// WSGateway is the WebSocket entrypoint for VERSA-ID notifications.
//
// It enforces origin policy, rate limits and heartbeats, and routes validated
// subscribe messages to the Hub.
type WSGateway struct {
	gatewayConfig

	log   *slog.Logger
	hub   *Hub
	owner OwnershipResolver
}

// NewWSGateway constructs a gateway configured from VERSA_WS_* env.
// owner may be nil unless VERSA_WS_REQUIRE_OWNERSHIP is enabled.
func NewWSGateway(log *slog.Logger, hub *Hub, owner OwnershipResolver) (*WSGateway, error) {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log, nil)
	}

	cfg := loadGatewayConfig()
	if cfg.requireOwnership && owner == nil {
		return nil, errors.New("realtime: VERSA_WS_REQUIRE_OWNERSHIP needs an ownership resolver")
	}
	return &WSGateway{gatewayConfig: cfg, log: log, hub: hub, owner: owner}, nil
}

// Hub returns the registry the gateway registers connections with.
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket connection and runs the
// subscribe loop until either side goes away.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.origins.check(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Ownership is resolved from the upgrade request; the session cookie is
	// not visible after the handshake.
	ownedVersaID, owned := "", false
	if g.requireOwnership {
		ownedVersaID, owned = g.owner.VersaIDForRequest(r.Context(), r)
		ownedVersaID = identity.NormalizeVersaID(ownedVersaID)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.origins.patterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	now := time.Now().UTC()
	connID, err := NewConnectionID(now)
	if err != nil {
		g.log.Error("ws.id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(connID, g.sendQueueSize)
	g.hub.Register(client)
	g.log.Info("ws.connect", "conn_id", connID, "remote", r.RemoteAddr, "subprotocol", conn.Subprotocol())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// The hub entry is removed before client.Close so publishers stop targeting it.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unregister(connID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			g.log.Info("ws.disconnect", "conn_id", connID, "reason", reason)
		})
	}

	// Hub.CloseAll signals through client.Done; unblock the read loop.
	go func() {
		select {
		case <-ctx.Done():
		case <-client.Done():
			cancel()
		}
	}()

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case msg := <-client.Send:
				if err := writeJSON(ctx, conn, msg, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	subscribed := false

readLoop:
	for {
		// Subscribed clients only listen, so after the first subscribe the
		// heartbeat is the sole liveness check.
		readCtx, readCancel := ctx, context.CancelFunc(func() {})
		if !subscribed {
			readCtx, readCancel = context.WithTimeout(ctx, g.readIdleTimeout)
		}
		data, err := readFrame(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBinary:
				g.log.Info("ws.message.discard", "conn_id", connID, "err", err)
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(time.Now().UTC()) {
			g.log.Info("ws.rate_limited", "conn_id", connID)
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		msg, err := v1.ParseInbound(data)
		if err != nil {
			// English comment:
			// Malformed or unknown frames never tear the connection down.
			g.log.Info("ws.message.discard", "conn_id", connID, "err", err)
			continue readLoop
		}

		switch msg.Type {
		case v1.TypeSubscribe:
			if g.onSubscribe(connID, msg.VersaID, ownedVersaID, owned) {
				subscribed = true
			}
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *WSGateway) onSubscribe(connID, claimed, ownedVersaID string, owned bool) bool {
	versaID := identity.NormalizeVersaID(claimed)

	if g.requireOwnership && (!owned || ownedVersaID != versaID) {
		g.log.Info("ws.subscribe.denied", "conn_id", connID, "versa_id", versaID, "authenticated", owned)
		return false
	}

	if !g.hub.Subscribe(connID, versaID) {
		g.log.Info("ws.subscribe.fail", "conn_id", connID, "versa_id", versaID)
		return false
	}
	g.log.Info("ws.subscribe", "conn_id", connID, "versa_id", versaID)
	return true
}

// ---- frame IO ----

var errBinaryFrame = errors.New("binary frames are not supported")

func readFrame(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if mt != websocket.MessageText {
		return nil, errBinaryFrame
	}
	return data, nil
}

func writeJSON(parent context.Context, conn *websocket.Conn, v any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBinary
)

func classifyReadErr(err error) readErrKind {
	if errors.Is(err, errBinaryFrame) {
		return readErrBinary
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

// originPolicy decides which browser origins may open a channel. Pages on
// the serving host always pass; allowed entries match either the full
// origin or its host, and "*" allows everything.
type originPolicy struct {
	required bool
	full     map[string]struct{}
	hosts    map[string]struct{}
	any      bool

	// patterns mirror hosts for websocket.Accept, which matches host[:port]
	// with filepath.Match.
	patterns []string
}

func newOriginPolicy(required bool, allowed []string) originPolicy {
	p := originPolicy{
		required: required,
		full:     make(map[string]struct{}, len(allowed)),
		hosts:    make(map[string]struct{}, len(allowed)),
	}
	for _, a := range allowed {
		if a == "*" {
			p.any = true
			p.patterns = append(p.patterns, "*")
			continue
		}
		p.full[a] = struct{}{}
		if h := hostOf(a); h != "" {
			if _, seen := p.hosts[h]; !seen {
				p.hosts[h] = struct{}{}
				p.patterns = append(p.patterns, h, h+":*")
			}
		}
	}
	sort.Strings(p.patterns)
	return p
}

func (p originPolicy) check(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if p.required {
			return errors.New("missing origin")
		}
		return nil
	}
	if p.any {
		return nil
	}
	if _, ok := p.full[origin]; ok {
		return nil
	}
	host := hostOf(origin)
	if host != "" {
		if host == hostOf(r.Host) {
			return nil
		}
		if _, ok := p.hosts[host]; ok {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// hostOf returns the lower-cased host of an origin URL or a host[:port] string.
func hostOf(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// ---- env ----

func wsEnv[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

var errNotPositive = errors.New("must be positive")

func asString(s string) (string, error) { return s, nil }

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err == nil && n <= 0 {
		err = errNotPositive
	}
	return n, err
}

func positiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil && d <= 0 {
		err = errNotPositive
	}
	return d, err
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
