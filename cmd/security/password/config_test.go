package password

import (
	"errors"
	"os"
	"testing"
)

var passwordEnvKeys = []string{
	"VERSA_PASSWORD_ALGORITHM",
	"VERSA_PASSWORD_MIN_LEN",
	"VERSA_PASSWORD_MAX_LEN",
	"VERSA_PASSWORD_REJECT_VERY_WEAK",
	"VERSA_SCRYPT_N",
	"VERSA_SCRYPT_R",
	"VERSA_SCRYPT_P",
	"VERSA_ARGON2_MEMORY_KIB",
	"VERSA_ARGON2_ITERATIONS",
	"VERSA_ARGON2_PARALLELISM",
	"VERSA_ARGON2_SALT_LEN",
	"VERSA_ARGON2_KEY_LEN",
}

func TestFromEnv_Defaults(t *testing.T) {
	// Ensure env is clean for this test.
	for _, k := range passwordEnvKeys {
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Algorithm != AlgorithmScrypt {
		t.Fatalf("algorithm=%q want scrypt", cfg.Algorithm)
	}
	if cfg.Scrypt.N != 16384 || cfg.Scrypt.R != 8 || cfg.Scrypt.P != 1 || cfg.Scrypt.KeyLength != 64 {
		t.Fatalf("scrypt defaults changed: %+v", cfg.Scrypt)
	}
	if cfg.Policy.MinLength != 1 {
		t.Fatalf("min length=%d want 1", cfg.Policy.MinLength)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("VERSA_PASSWORD_ALGORITHM", "Argon2id")
	t.Setenv("VERSA_PASSWORD_MIN_LEN", "10")
	t.Setenv("VERSA_PASSWORD_MAX_LEN", "200")
	t.Setenv("VERSA_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("VERSA_SCRYPT_N", "32768")
	t.Setenv("VERSA_SCRYPT_R", "16")
	t.Setenv("VERSA_SCRYPT_P", "2")
	t.Setenv("VERSA_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("VERSA_ARGON2_ITERATIONS", "4")
	t.Setenv("VERSA_ARGON2_PARALLELISM", "2")
	t.Setenv("VERSA_ARGON2_SALT_LEN", "24")
	t.Setenv("VERSA_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Algorithm != AlgorithmArgon2id {
		t.Fatalf("algorithm override failed: %q", cfg.Algorithm)
	}
	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Scrypt.N != 32768 || cfg.Scrypt.R != 16 || cfg.Scrypt.P != 2 {
		t.Fatalf("scrypt override failed: %+v", cfg.Scrypt)
	}
	if cfg.Argon2id.MemoryKiB != 32768 || cfg.Argon2id.Iterations != 4 || cfg.Argon2id.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Argon2id)
	}
	if cfg.Argon2id.SaltLength != 24 || cfg.Argon2id.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Argon2id)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"min>max", map[string]string{"VERSA_PASSWORD_MIN_LEN": "20", "VERSA_PASSWORD_MAX_LEN": "10"}},
		{"scrypt N not pow2", map[string]string{"VERSA_SCRYPT_N": "20000"}},
		{"bad bool", map[string]string{"VERSA_PASSWORD_REJECT_VERY_WEAK": "maybe"}},
		{"unknown algorithm", map[string]string{"VERSA_PASSWORD_ALGORITHM": "md5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestFromEnv_UnknownAlgorithmWrapsSentinel(t *testing.T) {
	t.Setenv("VERSA_PASSWORD_ALGORITHM", "bcrypt")

	_, err := FromEnv()
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}
