package session

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"versaid/cmd/security/token"
)

// Backend selects the session store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

// Config defines all runtime configuration for the session subsystem.
type Config struct {
	// TTL is the fixed lifetime of a session, counted from issuance.
	TTL time.Duration

	// TokenBytes is the number of random bytes in a session token.
	TokenBytes int

	// Secret keys the token digest. Empty means plain SHA-256.
	Secret []byte

	// Backend selects memory, Redis or Postgres storage.
	Backend Backend

	// RedisPrefix namespaces session keys in Redis.
	RedisPrefix string
}

// DefaultConfig returns the development defaults: 24h sessions in memory.
func DefaultConfig() Config {
	return Config{
		TTL:         24 * time.Hour,
		TokenBytes:  token.DefaultTokenBytes,
		Backend:     BackendMemory,
		RedisPrefix: "versa:session:",
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - VERSA_SESSION_TTL
//   - VERSA_SESSION_TOKEN_BYTES (32..64)
//   - VERSA_SESSION_STORE (memory|redis|postgres)
//   - VERSA_SESSION_REDIS_PREFIX
//   - VERSA_TOKEN_HMAC_KEY / VERSA_SESSION_SECRET (digest key)
//   - VERSA_SESSION_REQUIRE_SECRET (true enforces a key of at least 32 bytes)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("VERSA_SESSION_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := strings.TrimSpace(os.Getenv("VERSA_SESSION_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.TokenBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("VERSA_SESSION_STORE")); v != "" {
		switch b := Backend(strings.ToLower(v)); b {
		case BackendMemory, BackendRedis, BackendPostgres:
			cfg.Backend = b
		default:
			return Config{}, ErrConfig
		}
	}

	if v := strings.TrimSpace(os.Getenv("VERSA_SESSION_REDIS_PREFIX")); v != "" {
		cfg.RedisPrefix = v
	}

	requireSecret := false
	if v := strings.TrimSpace(os.Getenv("VERSA_SESSION_REQUIRE_SECRET")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		requireSecret = b
	}

	minBytes := 0
	if requireSecret {
		minBytes = 32
	}
	key, err := token.HMACKeyFromEnv(minBytes)
	switch {
	case err == nil:
		cfg.Secret = key
	case errors.Is(err, token.ErrHMACKeyMissing) && !requireSecret:
		// SHA-256 digests in development.
	default:
		return Config{}, ErrConfig
	}

	return cfg, nil
}
