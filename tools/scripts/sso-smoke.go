// Package main provides a CI-friendly end-to-end smoke test for the VERSA-ID
// SSO push flow.
//
// It validates:
//   - register + connect-wallet over HTTP (cookie session)
//   - handshake + subprotocol selection on /api/ws
//   - subscribe, then sso_request delivery to the matching subscriber only
//   - mock SSO authenticate -> userinfo round trip
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "versaid/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"golang.org/x/term"
)

const maxReadBytes = 64 << 10

type smokeClient struct {
	name  string
	conn  *websocket.Conn
	inbox chan v1.SSORequest
	errCh chan error
}

func main() {
	var (
		baseURL    = flag.String("url", "http://127.0.0.1:5000", "Server base URL")
		origin     = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		siteOrigin = flag.String("site", "https://shop.example", "Relying site origin pushed in sso_request")
		prompt     = flag.Bool("prompt-password", false, "Read the test user's password from the terminal")
		timeout    = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}

	pw := "smoke-password-1"
	if *prompt {
		pw = readPassword()
	}

	root := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())

	a := newHTTPClient()
	versaID := mustRegisterAndConnect(root, a, base, "smoke-a-"+suffix, pw, "0xA"+suffix, *timeout)
	b := newHTTPClient()
	otherID := mustRegisterAndConnect(root, b, base, "smoke-b-"+suffix, pw, "0xB"+suffix, *timeout)
	if *verbose {
		fmt.Printf("registered: A=%s B=%s\n", versaID, otherID)
	}

	wsA := mustConnect(root, "A", base, *origin, a.Jar, *timeout)
	defer closeWS(wsA.conn)
	wsB := mustConnect(root, "B", base, *origin, b.Jar, *timeout)
	defer closeWS(wsB.conn)

	mustSubscribe(root, wsA, versaID, *timeout)
	mustSubscribe(root, wsB, otherID, *timeout)

	// Subscribe has no ack; give the server a moment to index both connections.
	time.Sleep(200 * time.Millisecond)

	status, body := mustPostJSON(root, a, base+"/api/sso/verify", map[string]string{
		"versaId":    versaID,
		"siteOrigin": *siteOrigin,
	}, nil, *timeout)
	if status != http.StatusOK {
		fatalf("sso verify: status=%d body=%v", status, body)
	}

	msg := wsA.mustRead(root, *timeout)
	if msg.Type != v1.TypeSSORequest || msg.SiteOrigin != *siteOrigin {
		fatalf("unexpected push (A): %+v", msg)
	}
	if _, err := msg.Time(); err != nil {
		fatalf("bad timestamp (A): %v", err)
	}
	wsB.mustReceiveNothing(root, 500*time.Millisecond)

	mustMockSSO(root, a, base, versaID, *timeout)

	fmt.Println("OK")
}

func newHTTPClient() *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func readPassword() string {
	fmt.Fprint(os.Stderr, "password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fatalf("read password: %v", err)
	}
	pw := strings.TrimSpace(string(b))
	if pw == "" {
		fatalf("empty password")
	}
	return pw
}

func validateBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func wsURLFor(base string) string {
	u, _ := url.Parse(base)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/api/ws"
	return u.String()
}

func mustRegisterAndConnect(parent context.Context, c *http.Client, base, username, pw, wallet string, stepTimeout time.Duration) string {
	status, body := mustPostJSON(parent, c, base+"/api/register", map[string]string{
		"username":        username,
		"email":           username + "@smoke.example",
		"fullName":        "Smoke " + username,
		"password":        pw,
		"confirmPassword": pw,
	}, nil, stepTimeout)
	if status != http.StatusCreated {
		fatalf("register %s: status=%d body=%v", username, status, body)
	}

	status, body = mustPostJSON(parent, c, base+"/api/connect-wallet", map[string]string{
		"walletAddress": wallet,
	}, nil, stepTimeout)
	if status != http.StatusOK {
		fatalf("connect-wallet %s: status=%d body=%v", username, status, body)
	}

	user, _ := body["user"].(map[string]any)
	versaID, _ := user["versaId"].(string)
	if !strings.HasPrefix(versaID, "VERSA-") {
		fatalf("connect-wallet %s: missing versaId in %v", username, body)
	}
	return versaID
}

func mustMockSSO(parent context.Context, c *http.Client, base, versaID string, stepTimeout time.Duration) {
	status, body := mustPostJSON(parent, c, base+"/v1/authenticate", map[string]string{
		"versa_id":     versaID,
		"client_id":    "smoke",
		"redirect_uri": "https://shop.example/callback",
		"scope":        "profile",
	}, nil, stepTimeout)
	if status != http.StatusOK {
		fatalf("authenticate: status=%d body=%v", status, body)
	}
	redirect, _ := body["redirect"].(string)
	u, err := url.Parse(redirect)
	if err != nil || u.Query().Get("token") == "" {
		fatalf("authenticate: bad redirect %q", redirect)
	}

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/userinfo", nil)
	if err != nil {
		fatalf("userinfo request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.Query().Get("token"))
	status, body = doJSON(c, req)
	if status != http.StatusOK || body["id"] != versaID {
		fatalf("userinfo: status=%d body=%v", status, body)
	}
}

func mustPostJSON(parent context.Context, c *http.Client, target string, payload any, h http.Header, stepTimeout time.Duration) (int, map[string]any) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		fatalf("request %s: %v", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return doJSON(c, req)
}

func doJSON(c *http.Client, req *http.Request) (int, map[string]any) {
	resp, err := c.Do(req)
	if err != nil {
		fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("read %s: %v", req.URL.Path, err)
	}
	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			fatalf("decode %s: %v (%q)", req.URL.Path, err, raw)
		}
	}
	return resp.StatusCode, body
}

func mustConnect(parent context.Context, name, base, origin string, jar http.CookieJar, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURLFor(base), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
		HTTPClient:   &http.Client{Jar: jar},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	if got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol")); got != "" && got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.SSORequest, 16),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			var msg v1.SSORequest
			if err := json.Unmarshal(data, &msg); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- msg:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustSubscribe(parent context.Context, c *smokeClient, versaID string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(v1.Inbound{Type: v1.TypeSubscribe, VersaID: versaID})
	if err != nil {
		fatalf("marshal subscribe: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("subscribe %s: %v", c.name, err)
	}
}

func (c *smokeClient) mustRead(parent context.Context, stepTimeout time.Duration) v1.SSORequest {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		fatalf("timeout waiting for sso_request (%s): %v", c.name, ctx.Err())
	case err := <-c.errCh:
		fatalf("connection error while waiting for sso_request (%s): %v", c.name, err)
	case msg, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed while waiting for sso_request (%s)", c.name)
		}
		return msg
	}
	return v1.SSORequest{}
}

func (c *smokeClient) mustReceiveNothing(parent context.Context, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	select {
	case <-ctx.Done():
	case err := <-c.errCh:
		fatalf("connection closed unexpectedly (%s): %v", c.name, err)
	case msg, ok := <-c.inbox:
		if !ok {
			fatalf("connection closed unexpectedly (%s)", c.name)
		}
		fatalf("unexpected push (%s): %+v", c.name, msg)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
