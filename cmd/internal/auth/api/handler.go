// Package authapi serves the VERSA-ID HTTP API: session auth, wallet
// connection, OTPs, SSO push and the mock third-party SSO endpoints.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"versaid/cmd/identity"
	"versaid/cmd/internal/auth/session"
	"versaid/cmd/internal/auth/sso"
	"versaid/cmd/internal/metrics"
	"versaid/cmd/internal/otp"
	"versaid/cmd/security/password"
	v1 "versaid/shared/contracts/realtime/v1"
)

// Publisher delivers sso_request messages to subscribers of a VERSA-ID and
// reports how many connections accepted it. *realtime.Hub satisfies it.
type Publisher interface {
	Publish(versaID string, msg v1.SSORequest) int
}

// Services are the domain dependencies of the Handler. All are required.
type Services struct {
	Users     identity.Store
	Sessions  *session.Service
	Passwords password.Config
	OTP       *otp.Registry
	SSO       *sso.Issuer
	Publisher Publisher
}

// Handler wires HTTP endpoints to the identity, session, OTP and realtime services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users     identity.Store
	sessions  *session.Service
	passwords password.Config
	otps      *otp.Registry
	sso       *sso.Issuer
	publisher Publisher

	metrics *metrics.Metrics
	now     func() time.Time

	dummyHash string
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithMetrics records auth and OTP events on m.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil {
			return
		}
		h.metrics = m
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, svc Services, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	switch {
	case svc.Users == nil:
		return nil, errors.New("authapi: nil user store")
	case svc.Sessions == nil:
		return nil, errors.New("authapi: nil session service")
	case svc.OTP == nil:
		return nil, errors.New("authapi: nil otp registry")
	case svc.SSO == nil:
		return nil, errors.New("authapi: nil sso issuer")
	case svc.Publisher == nil:
		return nil, errors.New("authapi: nil publisher")
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = DefaultSessionCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:       log,
		cfg:       cfg,
		users:     svc.Users,
		sessions:  svc.Sessions,
		passwords: svc.Passwords,
		otps:      svc.OTP,
		sso:       svc.SSO,
		publisher: svc.Publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	// Dummy hash for timing-resistant login checks.
	h.dummyHash = h.passwords.DummyHash()

	return h, nil
}

// Register wires routes onto the provided mux. Method-qualified patterns make
// the mux answer 405 for other methods.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/register", h.handleRegister)
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("POST /api/logout", h.handleLogout)
	mux.HandleFunc("GET /api/user", h.handleCurrentUser)
	mux.HandleFunc("POST /api/connect-wallet", h.handleConnectWallet)
	mux.HandleFunc("POST /api/generate-otp", h.handleGenerateOTP)
	mux.HandleFunc("POST /api/verify-otp", h.handleVerifyOTP)
	mux.HandleFunc("GET /api/versa-id/{id}", h.handleCheckVersaID)
	mux.HandleFunc("POST /api/sso/verify", h.handleSSOVerify)

	mux.Handle("POST /v1/authenticate", h.withCORS(http.HandlerFunc(h.handleAuthenticate)))
	mux.Handle("GET /v1/userinfo", h.withCORS(http.HandlerFunc(h.handleUserinfo)))
	mux.Handle("OPTIONS /v1/", h.withCORS(http.HandlerFunc(handlePreflight)))
}

// VersaIDForRequest resolves the VERSA-ID of the user behind r's session
// cookie. It implements realtime.OwnershipResolver.
func (h *Handler) VersaIDForRequest(ctx context.Context, r *http.Request) (string, bool) {
	u, err := h.currentUser(ctx, r)
	if err != nil || !u.HasWallet() {
		return "", false
	}
	return *u.VersaID, true
}

// ---- session auth ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username := identity.NormalizeUsername(req.Username)
	email := identity.NormalizeEmail(req.Email)
	fullName := strings.TrimSpace(req.FullName)
	if username == "" || email == "" || fullName == "" || req.Password == "" || req.ConfirmPassword == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	ctx := r.Context()

	// English comment:
	// The pre-checks give the specific messages. The store still enforces
	// uniqueness atomically, so a concurrent duplicate surfaces as a conflict below.
	if _, err := h.users.GetUserByUsername(ctx, username); err == nil {
		h.audit(ctx, r, auditRegister, resultFail, slog.String("reason", "username_taken"))
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	} else if !identity.IsNotFound(err) {
		h.internalError(w, "auth.register.lookup.fail", err)
		return
	}
	if _, err := h.users.GetUserByEmail(ctx, email); err == nil {
		h.audit(ctx, r, auditRegister, resultFail, slog.String("reason", "email_taken"))
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	} else if !identity.IsNotFound(err) {
		h.internalError(w, "auth.register.lookup.fail", err)
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		if msg, ok := passwordPolicyMessage(err); ok {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		h.internalError(w, "auth.register.hash.fail", err)
		return
	}

	now := h.now()
	user, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Now:          now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			h.audit(ctx, r, auditRegister, resultFail, slog.String("reason", "conflict"))
			writeError(w, http.StatusBadRequest, conflictMessage(identity.ConflictField(err)))
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "All fields are required")
		default:
			h.internalError(w, "auth.register.create.fail", err)
		}
		return
	}

	if !h.startSession(w, r, now, user.ID, "auth.register.session.fail") {
		return
	}

	h.audit(ctx, r, auditRegister, resultOK, slog.Int64("user_id", user.ID))
	writeJSON(w, http.StatusCreated, userEnvelope{
		Success: true,
		Message: "Registration successful",
		User:    toUserResponse(user),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username := identity.NormalizeUsername(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	ctx := r.Context()
	user, err := h.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.internalError(w, "auth.login.lookup.fail", err)
			return
		}
		// Timing resistance: perform a dummy verify when user is missing.
		if h.dummyHash != "" {
			_, _ = h.passwords.Verify(h.dummyHash, req.Password)
		}
		h.audit(ctx, r, auditLogin, resultFail, slog.String("reason", "not_found"))
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	ok, err := h.passwords.Verify(user.PasswordHash, req.Password)
	if err != nil || !ok {
		if err != nil {
			h.log.Warn("auth.login.verify.fail", "user_id", user.ID, "err", err)
		}
		h.audit(ctx, r, auditLogin, resultFail, slog.String("reason", "bad_password"), slog.Int64("user_id", user.ID))
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	// Replace any session the client already holds.
	if old, ok := h.sessionTokenFromCookie(r); ok {
		if err := h.sessions.Destroy(ctx, old); err != nil {
			h.log.Warn("auth.login.destroy_old.fail", "err", err)
		}
	}

	if !h.startSession(w, r, h.now(), user.ID, "auth.login.session.fail") {
		return
	}

	h.audit(ctx, r, auditLogin, resultOK, slog.Int64("user_id", user.ID))
	writeJSON(w, http.StatusOK, userEnvelope{
		Success: true,
		Message: "Login successful",
		User:    toUserResponse(user),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if tok, ok := h.sessionTokenFromCookie(r); ok {
		if err := h.sessions.Destroy(ctx, tok); err != nil {
			// Logout never fails for the client; the cookie is cleared regardless.
			h.log.Error("auth.logout.destroy.fail", "err", err)
		}
		h.audit(ctx, r, auditLogout, resultOK)
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "Logout successful"})
}

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{Success: true, User: toUserResponse(user)})
}

func (h *Handler) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req connectWalletRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		writeError(w, http.StatusBadRequest, "Wallet address is required")
		return
	}

	ctx := r.Context()
	updated, err := h.users.ConnectWallet(ctx, identity.ConnectWalletInput{
		UserID:        user.ID,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		switch {
		case identity.IsNotFound(err):
			writeError(w, http.StatusNotFound, "User not found")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "Wallet address is required")
		default:
			h.internalError(w, "auth.connect_wallet.fail", err)
		}
		return
	}

	h.audit(ctx, r, auditConnectWallet, resultOK, slog.Int64("user_id", updated.ID), slog.String("versa_id", deref(updated.VersaID)))
	writeJSON(w, http.StatusOK, userEnvelope{
		Success: true,
		Message: "Wallet connected successfully",
		User:    toUserResponse(updated),
	})
}

// ---- session helpers ----

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, now time.Time, userID int64, failEvent string) bool {
	issued, err := h.sessions.Issue(r.Context(), now, userID)
	if err != nil {
		h.internalError(w, failEvent, err)
		return false
	}
	h.setSessionCookie(w, issued.Token, issued.ExpiresAt)
	return true
}

// currentUser resolves the session cookie to a user. A session whose user no
// longer exists counts as unauthenticated.
func (h *Handler) currentUser(ctx context.Context, r *http.Request) (identity.User, error) {
	tok, ok := h.sessionTokenFromCookie(r)
	if !ok {
		return identity.User{}, session.ErrSessionNotFound
	}
	row, err := h.sessions.Resolve(ctx, h.now(), tok)
	if err != nil {
		return identity.User{}, err
	}
	user, err := h.users.GetUserByID(ctx, row.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, session.ErrSessionNotFound
		}
		return identity.User{}, err
	}
	return user, nil
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	user, err := h.currentUser(r.Context(), r)
	if err != nil {
		if session.IsUnauthenticated(err) {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return identity.User{}, false
		}
		h.internalError(w, "auth.session.resolve.fail", err)
		return identity.User{}, false
	}
	return user, true
}

func (h *Handler) internalError(w http.ResponseWriter, event string, err error) {
	h.internalErrorMsg(w, event, err, "Internal server error")
}

func (h *Handler) internalErrorMsg(w http.ResponseWriter, event string, err error, msg string) {
	h.log.Error(event, "err", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func conflictMessage(field string) string {
	switch field {
	case "username":
		return "Username already exists"
	case "email":
		return "Email already exists"
	default:
		return "User already exists"
	}
}

func passwordPolicyMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "Password is too short", true
	case errors.Is(err, password.ErrPasswordTooLong):
		return "Password is too long", true
	case errors.Is(err, password.ErrWeakPassword):
		return "Password is too weak", true
	default:
		return "", false
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
