// Package token provides session-token primitives for VERSA-ID.
//
// It is the single source of truth for how session ids are minted and how
// they are hashed before reaching a store.
//
// Design goals:
// - Default dev mode: SHA-256(token) when no key is configured.
// - Production mode: HMAC-SHA256(token, key) when a key is configured.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - VERSA_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// - VERSA_SESSION_SECRET: used as the HMAC key when VERSA_TOKEN_HMAC_KEY is unset.
package token
