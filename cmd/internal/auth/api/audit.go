package authapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Audit events are structured log records under "auth.audit" and feed the
// auth_events_total counter.
const (
	auditRegister      = "register"
	auditLogin         = "login"
	auditLogout        = "logout"
	auditConnectWallet = "connect_wallet"
	auditOTPVerify     = "otp_verify"
	auditSSOVerify     = "sso_verify"
	auditSSOToken      = "sso_token"
)

const (
	resultOK   = "ok"
	resultFail = "fail"
)

func (h *Handler) audit(ctx context.Context, r *http.Request, event, result string, attrs ...slog.Attr) {
	if h == nil {
		return
	}
	h.metrics.AuthEvent(event, result)

	base := []slog.Attr{
		slog.String("event", event),
		slog.String("result", result),
	}
	if r != nil {
		base = append(base,
			slog.String("ip", ipString(clientIP(r, h.cfg.TrustProxy))),
			slog.String("ua", strings.TrimSpace(r.UserAgent())),
		)
	}
	h.log.LogAttrs(ctx, slog.LevelInfo, "auth.audit", append(base, attrs...)...)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
