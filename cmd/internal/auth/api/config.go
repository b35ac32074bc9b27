package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// DefaultSessionCookieName is the cookie carrying the plain session token.
const DefaultSessionCookieName = "versa.sid"

// Config controls auth API behavior and cookie defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	SessionCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	// CORSAllowOrigin is sent on the mock SSO API (/v1/*) responses.
	CORSAllowOrigin string
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:        envBool("VERSA_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("VERSA_AUTH_MAX_BODY_BYTES", 64<<10), // 64 KiB
		SessionCookieName: envString("VERSA_AUTH_SESSION_COOKIE_NAME", DefaultSessionCookieName),
		CookiePath:        envString("VERSA_AUTH_COOKIE_PATH", "/"),
		CookieDomain:      strings.TrimSpace(os.Getenv("VERSA_AUTH_COOKIE_DOMAIN")),
		CookieSecure:      envBool("VERSA_AUTH_COOKIE_SECURE", false),
		CookieSameSite:    parseSameSite(os.Getenv("VERSA_AUTH_COOKIE_SAMESITE")),
		CORSAllowOrigin:   envString("VERSA_AUTH_CORS_ALLOW_ORIGIN", "*"),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	// Browsers reject SameSite=None without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}

	return cfg
}

// DefaultConfig returns the configuration used when no env is set.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      64 << 10,
		SessionCookieName: DefaultSessionCookieName,
		CookiePath:        "/",
		CookieSameSite:    http.SameSiteLaxMode,
		CORSAllowOrigin:   "*",
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
