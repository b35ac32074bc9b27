package token

import "errors"

// HMACKeyFromEnv failures. Callers decide whether an unkeyed digest is
// acceptable: sessions fall back to plain SHA-256 unless a key is required.
var (
	// ErrHMACKeyMissing means neither VERSA_TOKEN_HMAC_KEY nor
	// VERSA_SESSION_SECRET is set.
	ErrHMACKeyMissing = errors.New("token: session digest key not configured")

	// ErrHMACKeyTooShort means the configured key is below the caller's minimum.
	ErrHMACKeyTooShort = errors.New("token: session digest key too short")
)
