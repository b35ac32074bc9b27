package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Algorithm names the KDF used by Hash.
type Algorithm string

const (
	AlgorithmScrypt   Algorithm = "scrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

// ScryptParams controls scrypt hashing cost.
// SaltLength is the number of random bytes; the stored salt is their hex text.
type ScryptParams struct {
	N          int
	R          int
	P          int
	KeyLength  int
	SaltLength int
}

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Algorithm Algorithm
	Scrypt    ScryptParams
	Argon2id  Argon2idParams
	Policy    Policy
}

// DefaultConfig returns scrypt with N=16384, r=8, p=1 and a 64-byte key,
// the parameters existing VERSA-ID hashes were written with.
func DefaultConfig() Config {
	// English comment:
	// CPU-aware parallelism avoids extreme settings on multi-core hosts while keeping a safe baseline.
	// We clamp to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Algorithm: AlgorithmScrypt,
		Scrypt: ScryptParams{
			N:          16384,
			R:          8,
			P:          1,
			KeyLength:  64,
			SaltLength: 16,
		},
		Argon2id: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,              // reasonable default for interactive logins
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      1,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - VERSA_PASSWORD_ALGORITHM (scrypt|argon2id)
// - VERSA_PASSWORD_MIN_LEN
// - VERSA_PASSWORD_MAX_LEN
// - VERSA_PASSWORD_REJECT_VERY_WEAK (true/false)
// - VERSA_SCRYPT_N (power of two; non-default scrypt costs switch new hashes
//   to the "$scrypt$" encoding, existing "key.salt" hashes keep verifying)
// - VERSA_SCRYPT_R
// - VERSA_SCRYPT_P
// - VERSA_ARGON2_MEMORY_KIB
// - VERSA_ARGON2_ITERATIONS
// - VERSA_ARGON2_PARALLELISM
// - VERSA_ARGON2_SALT_LEN
// - VERSA_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("VERSA_PASSWORD_ALGORITHM"); ok {
		switch a := Algorithm(strings.ToLower(strings.TrimSpace(v))); a {
		case AlgorithmScrypt, AlgorithmArgon2id:
			cfg.Algorithm = a
		case "":
		default:
			return Config{}, fmt.Errorf("VERSA_PASSWORD_ALGORITHM: %w: %q", ErrUnsupportedAlgorithm, v)
		}
	}

	if v, ok := os.LookupEnv("VERSA_PASSWORD_MIN_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}

	if v, ok := os.LookupEnv("VERSA_PASSWORD_MAX_LEN"); ok {
		n, err := atoiPositiveInt(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}

	if v, ok := os.LookupEnv("VERSA_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_PASSWORD_REJECT_VERY_WEAK: %w", err)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if v, ok := os.LookupEnv("VERSA_SCRYPT_N"); ok {
		n, err := atoiPositiveInt(v, 1024, 1<<20)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_SCRYPT_N: %w", err)
		}
		if n&(n-1) != 0 {
			return Config{}, fmt.Errorf("VERSA_SCRYPT_N: must be a power of two")
		}
		cfg.Scrypt.N = n
	}

	if v, ok := os.LookupEnv("VERSA_SCRYPT_R"); ok {
		n, err := atoiPositiveInt(v, 1, 32)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_SCRYPT_R: %w", err)
		}
		cfg.Scrypt.R = n
	}

	if v, ok := os.LookupEnv("VERSA_SCRYPT_P"); ok {
		n, err := atoiPositiveInt(v, 1, 16)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_SCRYPT_P: %w", err)
		}
		cfg.Scrypt.P = n
	}

	if v, ok := os.LookupEnv("VERSA_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Argon2id.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("VERSA_ARGON2_ITERATIONS"); ok {
		u, err := atou32(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Argon2id.Iterations = u
	}

	if v, ok := os.LookupEnv("VERSA_ARGON2_PARALLELISM"); ok {
		u, err := atou32(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_ARGON2_PARALLELISM: %w", err)
		}
		p, err := u32ToU8(u)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Argon2id.Parallelism = p
	}

	if v, ok := os.LookupEnv("VERSA_ARGON2_SALT_LEN"); ok {
		u, err := atou32(v, 8, 64)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_ARGON2_SALT_LEN: %w", err)
		}
		cfg.Argon2id.SaltLength = u
	}

	if v, ok := os.LookupEnv("VERSA_ARGON2_KEY_LEN"); ok {
		u, err := atou32(v, 16, 64)
		if err != nil {
			return Config{}, fmt.Errorf("VERSA_ARGON2_KEY_LEN: %w", err)
		}
		cfg.Argon2id.KeyLength = u
	}

	// Final sanity.
	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiPositiveInt(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

func u32ToU8(u uint32) (uint8, error) {
	// Explicit overflow guard to satisfy static analyzers and future changes.
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes", "on", "ON", "On":
		return true, nil
	case "0", "false", "FALSE", "False", "no", "NO", "No", "off", "OFF", "Off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
