package authapi

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"versaid/cmd/identity"
	"versaid/cmd/internal/auth/sso"
)

// handleAuthenticate is the third-party entry point: a relying party names a
// VERSA-ID and gets back its redirect_uri carrying a signed access token.
func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeSSOError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	versaID := identity.NormalizeVersaID(req.VersaID)
	clientID := strings.TrimSpace(req.ClientID)
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if versaID == "" || clientID == "" || redirectURI == "" {
		writeSSOError(w, http.StatusBadRequest, "versa_id, client_id and redirect_uri are required")
		return
	}

	target, err := url.Parse(redirectURI)
	if err != nil || !target.IsAbs() || (target.Scheme != "http" && target.Scheme != "https") {
		writeSSOError(w, http.StatusBadRequest, "Invalid redirect_uri")
		return
	}

	ctx := r.Context()
	if _, err := h.users.GetUserByVersaID(ctx, versaID); err != nil {
		if identity.IsNotFound(err) {
			writeSSOError(w, http.StatusNotFound, "VERSA-ID not found")
			return
		}
		h.log.Error("sso.authenticate.lookup.fail", "err", err)
		writeSSOError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	tok, exp, err := h.sso.Issue(h.now(), sso.Grant{
		VersaID:  versaID,
		ClientID: clientID,
		Scope:    strings.TrimSpace(req.Scope),
	})
	if err != nil {
		h.log.Error("sso.authenticate.issue.fail", "err", err)
		writeSSOError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	q := target.Query()
	q.Set("token", tok)
	target.RawQuery = q.Encode()

	h.audit(ctx, r, auditSSOToken, resultOK,
		slog.String("versa_id", versaID),
		slog.String("client_id", clientID),
		slog.Time("expires_at", exp),
	)
	writeJSON(w, http.StatusOK, authenticateResponse{Redirect: target.String()})
}

func (h *Handler) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearerToken(r)
	if !ok {
		writeSSOError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
		return
	}

	claims, err := h.sso.Parse(raw, h.now())
	if err != nil {
		writeSSOError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	user, err := h.users.GetUserByVersaID(r.Context(), claims.VersaID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeSSOError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		h.log.Error("sso.userinfo.lookup.fail", "err", err)
		writeSSOError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, userinfoResponse{
		ID:       claims.VersaID,
		ClientID: claims.ClientID,
		Scope:    claims.Scope,
		Name:     user.FullName,
		Email:    user.Email,
	})
}

func (h *Handler) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := h.cfg.CORSAllowOrigin; origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		next.ServeHTTP(w, r)
	})
}

func handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
