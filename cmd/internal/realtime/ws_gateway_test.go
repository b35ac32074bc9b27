package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v1 "versaid/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

type staticOwner struct {
	versaID string
	cookie  string
}

func (o staticOwner) VersaIDForRequest(_ context.Context, r *http.Request) (string, bool) {
	c, err := r.Cookie("versa.sid")
	if err != nil || c.Value != o.cookie {
		return "", false
	}
	return o.versaID, true
}

func newTestGateway(t *testing.T, owner OwnershipResolver) *WSGateway {
	t.Helper()
	t.Setenv("VERSA_WS_ORIGIN_REQUIRED", "false")
	gw, err := NewWSGateway(discardLogger(), NewHub(discardLogger(), nil), owner)
	if err != nil {
		t.Fatalf("NewWSGateway: %v", err)
	}
	return gw
}

func startWSTestServer(t *testing.T, gw *WSGateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/api/ws", gw)
	return httptest.NewServer(mux)
}

func dialWS(t *testing.T, baseURL, origin string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/ws"

	if header == nil {
		header = http.Header{}
	}
	if origin != "" {
		header.Set("Origin", origin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
}

func mustDial(t *testing.T, baseURL string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := dialWS(t, baseURL, "", header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func writeText(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readSSORequest(t *testing.T, conn *websocket.Conn, timeout time.Duration) (v1.SSORequest, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		return v1.SSORequest{}, err
	}
	var m v1.SSORequest
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return m, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWSGateway_SubscribeAndReceiveSSORequest(t *testing.T) {
	gw := newTestGateway(t, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	const versaID = "VERSA-1a2b3c4d"
	matching := mustDial(t, ts.URL, nil)
	other := mustDial(t, ts.URL, nil)

	writeText(t, matching, `{"type":"subscribe","versaId":"VERSA-1a2b3c4d"}`)
	writeText(t, other, `{"type":"subscribe","versaId":"VERSA-99999999"}`)
	waitFor(t, "subscriptions", func() bool {
		return gw.Hub().SubscriberCount(versaID) == 1 && gw.Hub().SubscriberCount("VERSA-99999999") == 1
	})

	sent := v1.NewSSORequest("https://shop.example", time.Now())
	if n := gw.Hub().Publish(versaID, sent); n != 1 {
		t.Fatalf("delivered=%d want 1", n)
	}

	got, err := readSSORequest(t, matching, 3*time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != v1.TypeSSORequest || got.SiteOrigin != "https://shop.example" || got.Timestamp != sent.Timestamp {
		t.Fatalf("unexpected message: %+v", got)
	}

	if _, err := readSSORequest(t, other, 200*time.Millisecond); err == nil {
		t.Fatalf("connection subscribed under another VERSA-ID must not receive the request")
	}
}

func TestWSGateway_MalformedFramesKeepConnectionOpen(t *testing.T) {
	gw := newTestGateway(t, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn := mustDial(t, ts.URL, nil)

	writeText(t, conn, `{"type":`)
	writeText(t, conn, `{"type":"unknown"}`)
	writeText(t, conn, `{"type":"subscribe"}`)
	writeText(t, conn, `not json at all`)
	writeText(t, conn, `{"type":"subscribe","versaId":"VERSA-abcdef01"}`)

	waitFor(t, "subscription after malformed frames", func() bool {
		return gw.Hub().SubscriberCount("VERSA-abcdef01") == 1
	})

	gw.Hub().Publish("VERSA-abcdef01", v1.NewSSORequest("https://a.example", time.Now()))
	if _, err := readSSORequest(t, conn, 3*time.Second); err != nil {
		t.Fatalf("connection should still be open: %v", err)
	}
}

func TestWSGateway_DisconnectRemovesEntry(t *testing.T) {
	gw := newTestGateway(t, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn, resp, err := dialWS(t, ts.URL, "", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	writeText(t, conn, `{"type":"subscribe","versaId":"VERSA-abcdef01"}`)
	waitFor(t, "subscription", func() bool { return gw.Hub().SubscriberCount("VERSA-abcdef01") == 1 })

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, "unregister", func() bool { return gw.Hub().Count() == 0 })

	if n := gw.Hub().Publish("VERSA-abcdef01", v1.NewSSORequest("https://a.example", time.Now())); n != 0 {
		t.Fatalf("delivered=%d after disconnect", n)
	}
}

func TestWSGateway_RejectsForeignOrigin(t *testing.T) {
	t.Setenv("VERSA_WS_ALLOWED_ORIGINS", "http://localhost")
	gw := newTestGateway(t, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, "https://evil.example", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got resp=%v err=%v", resp, err)
	}
}

func TestWSGateway_OriginRequired(t *testing.T) {
	t.Setenv("VERSA_WS_ORIGIN_REQUIRED", "true")
	gw, err := NewWSGateway(discardLogger(), nil, nil)
	if err != nil {
		t.Fatalf("NewWSGateway: %v", err)
	}
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, "", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without origin, err=%v", err)
	}

	conn, resp, err := dialWS(t, ts.URL, "http://localhost:5173", nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func TestWSGateway_OwnershipRequired(t *testing.T) {
	t.Setenv("VERSA_WS_REQUIRE_OWNERSHIP", "true")
	owner := staticOwner{versaID: "VERSA-0000aaaa", cookie: "good"}
	gw := newTestGateway(t, owner)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	withCookie := func(v string) http.Header {
		h := http.Header{}
		h.Set("Cookie", "versa.sid="+v)
		return h
	}

	anon := mustDial(t, ts.URL, nil)
	foreign := mustDial(t, ts.URL, withCookie("good"))
	owned := mustDial(t, ts.URL, withCookie("good"))

	writeText(t, anon, `{"type":"subscribe","versaId":"VERSA-0000aaaa"}`)
	writeText(t, foreign, `{"type":"subscribe","versaId":"VERSA-0000bbbb"}`)
	writeText(t, owned, `{"type":"subscribe","versaId":"VERSA-0000AAAA"}`)

	waitFor(t, "owned subscription", func() bool { return gw.Hub().SubscriberCount("VERSA-0000aaaa") == 1 })
	// Give the denied frames time to be processed.
	time.Sleep(100 * time.Millisecond)

	if got := gw.Hub().SubscriberCount("VERSA-0000aaaa"); got != 1 {
		t.Fatalf("anonymous subscribe must be discarded, subscribers=%d", got)
	}
	if got := gw.Hub().SubscriberCount("VERSA-0000bbbb"); got != 0 {
		t.Fatalf("subscribe to a foreign VERSA-ID must be discarded, subscribers=%d", got)
	}
}

func TestNewWSGateway_OwnershipNeedsResolver(t *testing.T) {
	t.Setenv("VERSA_WS_REQUIRE_OWNERSHIP", "true")
	if _, err := NewWSGateway(discardLogger(), nil, nil); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestWSGateway_CloseAllDisconnects(t *testing.T) {
	gw := newTestGateway(t, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn := mustDial(t, ts.URL, nil)
	waitFor(t, "register", func() bool { return gw.Hub().Count() == 1 })

	gw.Hub().CloseAll()
	waitFor(t, "unregister", func() bool { return gw.Hub().Count() == 0 })

	if _, err := readSSORequest(t, conn, 2*time.Second); err == nil {
		t.Fatalf("expected closed connection")
	}
}

func TestWSGateway_SilentSubscriberOutlivesIdleTimeout(t *testing.T) {
	t.Setenv("VERSA_WS_READ_IDLE_TIMEOUT", "300ms")
	t.Setenv("VERSA_WS_HEARTBEAT_INTERVAL", "100ms")
	gw := newTestGateway(t, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	const versaID = "VERSA-5eed0001"
	conn := mustDial(t, ts.URL, nil)
	writeText(t, conn, `{"type":"subscribe","versaId":"`+versaID+`"}`)
	waitFor(t, "subscription", func() bool { return gw.Hub().SubscriberCount(versaID) == 1 })

	// Keep a read pending so heartbeat pings are answered, like a browser tab.
	type result struct {
		msg v1.SSORequest
		err error
	}
	got := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, b, err := conn.Read(ctx)
		var m v1.SSORequest
		if err == nil {
			err = json.Unmarshal(b, &m)
		}
		got <- result{m, err}
	}()

	time.Sleep(1200 * time.Millisecond)

	if n := gw.Hub().SubscriberCount(versaID); n != 1 {
		t.Fatalf("silent subscriber was dropped: subscribers=%d", n)
	}
	if n := gw.Hub().Publish(versaID, v1.NewSSORequest("https://shop.example", time.Now())); n != 1 {
		t.Fatalf("delivered=%d want 1", n)
	}

	r := <-got
	if r.err != nil {
		t.Fatalf("read: %v", r.err)
	}
	if r.msg.Type != v1.TypeSSORequest || r.msg.SiteOrigin != "https://shop.example" {
		t.Fatalf("unexpected message: %+v", r.msg)
	}
}

func TestWSGateway_UnsubscribedIdleConnectionIsClosed(t *testing.T) {
	t.Setenv("VERSA_WS_READ_IDLE_TIMEOUT", "200ms")
	gw := newTestGateway(t, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn := mustDial(t, ts.URL, nil)
	waitFor(t, "register", func() bool { return gw.Hub().Count() == 1 })
	waitFor(t, "idle close", func() bool { return gw.Hub().Count() == 0 })

	if _, err := readSSORequest(t, conn, time.Second); err == nil {
		t.Fatalf("expected closed connection")
	}
}
