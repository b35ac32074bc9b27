package authapi

import (
	"log/slog"
	"net/http"
	"strings"

	"versaid/cmd/identity"
	v1 "versaid/shared/contracts/realtime/v1"
)

func (h *Handler) handleGenerateOTP(w http.ResponseWriter, r *http.Request) {
	const failMsg = "Error generating OTP"

	var req generateOTPRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	versaID := identity.NormalizeVersaID(req.VersaID)
	if versaID == "" {
		writeError(w, http.StatusBadRequest, "VERSA-ID is required")
		return
	}

	ctx := r.Context()
	if _, err := h.users.GetUserByVersaID(ctx, versaID); err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "VERSA-ID not found")
			return
		}
		h.internalErrorMsg(w, "otp.generate.lookup.fail", err, failMsg)
		return
	}

	code, err := h.otps.Issue(ctx, h.now(), versaID)
	if err != nil {
		h.internalErrorMsg(w, "otp.generate.fail", err, failMsg)
		return
	}
	h.metrics.OTPIssued()

	// The code is returned in the response body; this service simulates the
	// delivery channel.
	writeJSON(w, http.StatusOK, otpResponse{
		Success: true,
		Message: "OTP generated successfully",
		OTP:     code,
	})
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	const failMsg = "Error verifying OTP"

	var req verifyOTPRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	versaID := identity.NormalizeVersaID(req.VersaID)
	code := req.OTP
	if versaID == "" || code == "" {
		writeError(w, http.StatusBadRequest, "VERSA-ID and OTP are required")
		return
	}

	ctx := r.Context()
	valid, err := h.otps.Verify(ctx, h.now(), versaID, code)
	if err != nil {
		h.internalErrorMsg(w, "otp.verify.fail", err, failMsg)
		return
	}
	h.metrics.OTPVerified(valid)
	if !valid {
		h.audit(ctx, r, auditOTPVerify, resultFail, slog.String("versa_id", versaID))
		writeError(w, http.StatusUnauthorized, "Invalid or expired OTP")
		return
	}

	user, err := h.users.GetUserByVersaID(ctx, versaID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "VERSA-ID not found")
			return
		}
		h.internalErrorMsg(w, "otp.verify.lookup.fail", err, failMsg)
		return
	}

	h.audit(ctx, r, auditOTPVerify, resultOK, slog.String("versa_id", versaID), slog.Int64("user_id", user.ID))
	writeJSON(w, http.StatusOK, userEnvelope{
		Success: true,
		Message: "OTP verified successfully",
		User:    toUserResponse(user),
	})
}

func (h *Handler) handleCheckVersaID(w http.ResponseWriter, r *http.Request) {
	versaID := identity.NormalizeVersaID(r.PathValue("id"))

	if _, err := h.users.GetUserByVersaID(r.Context(), versaID); err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			writeError(w, http.StatusNotFound, "VERSA-ID not found")
			return
		}
		h.internalErrorMsg(w, "versa_id.check.fail", err, "Error checking VERSA-ID")
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Success: true, Exists: true})
}

func (h *Handler) handleSSOVerify(w http.ResponseWriter, r *http.Request) {
	var req ssoVerifyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	versaID := identity.NormalizeVersaID(req.VersaID)
	siteOrigin := strings.TrimSpace(req.SiteOrigin)
	if versaID == "" || siteOrigin == "" {
		writeError(w, http.StatusBadRequest, "VERSA-ID and site origin are required")
		return
	}

	ctx := r.Context()
	if _, err := h.users.GetUserByVersaID(ctx, versaID); err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "VERSA-ID not found")
			return
		}
		h.internalErrorMsg(w, "sso.verify.lookup.fail", err, "Error processing SSO verification")
		return
	}

	// Delivery is best effort: zero subscribers is still a success.
	delivered := h.publisher.Publish(versaID, v1.NewSSORequest(siteOrigin, h.now()))

	h.audit(ctx, r, auditSSOVerify, resultOK,
		slog.String("versa_id", versaID),
		slog.String("site_origin", siteOrigin),
		slog.Int("delivered", delivered),
	)
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "SSO verification request sent"})
}
