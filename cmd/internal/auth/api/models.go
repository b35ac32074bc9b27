package authapi

import "time"

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	FullName        string `json:"fullName"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type connectWalletRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type generateOTPRequest struct {
	VersaID string `json:"versaId"`
}

type verifyOTPRequest struct {
	VersaID string `json:"versaId"`
	OTP     string `json:"otp"`
}

type ssoVerifyRequest struct {
	VersaID    string `json:"versaId"`
	SiteOrigin string `json:"siteOrigin"`
}

// userResponse never carries the password hash.
type userResponse struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	WalletAddress *string   `json:"walletAddress"`
	VersaID       *string   `json:"versaId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type userEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    userResponse `json:"user"`
}

type otpResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OTP     string `json:"otp"`
}

type existsResponse struct {
	Success bool `json:"success"`
	Exists  bool `json:"exists"`
}

// ---- mock SSO API (/v1) ----

type authenticateRequest struct {
	VersaID     string `json:"versa_id"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope"`
}

type authenticateResponse struct {
	Redirect string `json:"redirect"`
}

type userinfoResponse struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}
