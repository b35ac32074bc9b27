package otp

import (
	"os"
	"strings"
	"time"
)

// Backend selects the OTP store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config controls OTP lifetime and storage.
type Config struct {
	// TTL is the maximum age at which a code still verifies.
	TTL time.Duration

	Backend     Backend
	RedisPrefix string
}

// DefaultConfig returns 5 minute codes kept in memory.
func DefaultConfig() Config {
	return Config{
		TTL:         5 * time.Minute,
		Backend:     BackendMemory,
		RedisPrefix: "versa:otp:",
	}
}

// LoadConfigFromEnv loads OTP configuration.
//
// Optional:
//   - VERSA_OTP_TTL
//   - VERSA_OTP_STORE (memory|redis)
//   - VERSA_OTP_REDIS_PREFIX
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("VERSA_OTP_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := strings.TrimSpace(os.Getenv("VERSA_OTP_STORE")); v != "" {
		switch b := Backend(strings.ToLower(v)); b {
		case BackendMemory, BackendRedis:
			cfg.Backend = b
		default:
			return Config{}, ErrConfig
		}
	}

	if v := strings.TrimSpace(os.Getenv("VERSA_OTP_REDIS_PREFIX")); v != "" {
		cfg.RedisPrefix = v
	}

	return cfg, nil
}
