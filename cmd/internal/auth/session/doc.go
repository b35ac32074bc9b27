// Package session implements VERSA-ID's server-side cookie sessions.
//
// A session is an opaque random token handed to the browser in a cookie.
// Stores only ever see the token's digest (HMAC-SHA256 when a secret is
// configured, SHA-256 otherwise), so a leaked store cannot be replayed.
//
// Sessions expire a fixed TTL (24h by default) after issuance. Expired sessions
// are treated as absent and deleted lazily on access; Prune sweeps the rest.
//
// Transport (HTTP cookies) is handled by the auth API, not here.
package session
