package app

import (
	"errors"
	"fmt"

	"versaid/cmd/security/token"
)

// ValidateSecurityConfig enforces the server's key policy at startup.
//
// English comment:
// - Fail-fast is intentional: silently falling back to plain SHA-256 session digests in production is unacceptable.
// - The check reads the same env keys the session service and SSO issuer use.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 / HS256 key, measured in bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return fmt.Errorf("%w: VERSA_REQUIRE_TOKEN_HMAC=true but %s (or %s) is missing",
				ErrConfig, token.HMACEnvKey, token.SessionSecretEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("%w: VERSA_REQUIRE_TOKEN_HMAC=true but %s is too short (min 32 bytes)",
				ErrConfig, token.HMACEnvKey)
		default:
			return err
		}
	}
	return nil
}
