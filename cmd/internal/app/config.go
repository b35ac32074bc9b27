package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfig is returned when startup configuration is invalid.
var ErrConfig = errors.New("invalid configuration")

// Config contains all runtime configuration. Values come from defaults, then
// the optional YAML file named by VERSA_CONFIG_FILE, then environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBMigrate   bool

	RedisURL string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, VERSA_TOKEN_HMAC_KEY (or VERSA_SESSION_SECRET) MUST be set (>= 32 bytes).
	RequireTokenHMAC bool

	// JanitorSchedule is a robfig/cron spec for pruning expired sessions and OTPs.
	// Empty disables the janitor.
	JanitorSchedule string

	MetricsEnabled bool
}

// fileConfig mirrors Config for the YAML overlay. Pointers distinguish
// "absent" from zero values.
type fileConfig struct {
	HTTPAddr  *string `yaml:"http_addr"`
	LogLevel  *string `yaml:"log_level"`
	LogFormat *string `yaml:"log_format"`

	ReadHeaderTimeout *time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       *time.Duration `yaml:"read_timeout"`
	WriteTimeout      *time.Duration `yaml:"write_timeout"`
	IdleTimeout       *time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   *time.Duration `yaml:"shutdown_timeout"`

	DatabaseURL *string `yaml:"database_url"`
	DBMaxConns  *int32  `yaml:"db_max_conns"`
	DBMinConns  *int32  `yaml:"db_min_conns"`
	DBMigrate   *bool   `yaml:"db_migrate"`

	RedisURL *string `yaml:"redis_url"`

	ReadinessRequireDB *bool   `yaml:"readiness_require_db"`
	RequireTokenHMAC   *bool   `yaml:"require_token_hmac"`
	JanitorSchedule    *string `yaml:"janitor_schedule"`
	MetricsEnabled     *bool   `yaml:"metrics_enabled"`

	// Env seeds VERSA_* variables read by sub-package loaders
	// (session, otp, auth, realtime). Real environment variables win.
	Env map[string]string `yaml:"env"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "0.0.0.0:5000",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBMaxConns: 10,
		DBMinConns: 0,
		DBMigrate:  true,

		JanitorSchedule: "@every 1m",
		MetricsEnabled:  true,
	}
}

// LoadConfig loads Config from defaults, the optional YAML file and the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := EnvString("VERSA_CONFIG_FILE", ""); path != "" {
		fc, err := readConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		fc.applyTo(&cfg)
		if err := fc.seedEnv(); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPAddr = EnvString("VERSA_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = EnvString("VERSA_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = EnvString("VERSA_LOG_FORMAT", cfg.LogFormat)

	cfg.ReadHeaderTimeout = EnvDuration("VERSA_HTTP_READ_HEADER_TIMEOUT", cfg.ReadHeaderTimeout)
	cfg.ReadTimeout = EnvDuration("VERSA_HTTP_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = EnvDuration("VERSA_HTTP_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = EnvDuration("VERSA_HTTP_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ShutdownTimeout = EnvDuration("VERSA_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MaxHeaderBytes = EnvInt("VERSA_HTTP_MAX_HEADER_BYTES", cfg.MaxHeaderBytes)

	cfg.DatabaseURL = EnvString("VERSA_DATABASE_URL", cfg.DatabaseURL)
	cfg.DBMaxConns = EnvInt32("VERSA_DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = EnvInt32("VERSA_DB_MIN_CONNS", cfg.DBMinConns)
	cfg.DBMigrate = EnvBool("VERSA_DB_MIGRATE", cfg.DBMigrate)

	cfg.RedisURL = EnvString("VERSA_REDIS_URL", cfg.RedisURL)

	cfg.ReadinessRequireDB = EnvBool("VERSA_READINESS_REQUIRE_DB", cfg.ReadinessRequireDB)
	cfg.RequireTokenHMAC = EnvBool("VERSA_REQUIRE_TOKEN_HMAC", cfg.RequireTokenHMAC)
	cfg.JanitorSchedule = EnvString("VERSA_JANITOR_SCHEDULE", cfg.JanitorSchedule)
	cfg.MetricsEnabled = EnvBool("VERSA_METRICS_ENABLED", cfg.MetricsEnabled)

	if strings.EqualFold(cfg.JanitorSchedule, "off") {
		cfg.JanitorSchedule = ""
	}

	return cfg, cfg.Validate()
}

// Validate reports configuration errors that would otherwise surface late.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%w: http addr is empty", ErrConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty", "text":
	default:
		return fmt.Errorf("%w: log format %q (want json|pretty|text)", ErrConfig, c.LogFormat)
	}
	if c.DBMinConns > c.DBMaxConns && c.DBMaxConns > 0 {
		return fmt.Errorf("%w: db min conns %d > max conns %d", ErrConfig, c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

func readConfigFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	return fc, nil
}

func (fc fileConfig) applyTo(cfg *Config) {
	setIf(&cfg.HTTPAddr, fc.HTTPAddr)
	setIf(&cfg.LogLevel, fc.LogLevel)
	setIf(&cfg.LogFormat, fc.LogFormat)
	setIf(&cfg.ReadHeaderTimeout, fc.ReadHeaderTimeout)
	setIf(&cfg.ReadTimeout, fc.ReadTimeout)
	setIf(&cfg.WriteTimeout, fc.WriteTimeout)
	setIf(&cfg.IdleTimeout, fc.IdleTimeout)
	setIf(&cfg.ShutdownTimeout, fc.ShutdownTimeout)
	setIf(&cfg.DatabaseURL, fc.DatabaseURL)
	setIf(&cfg.DBMaxConns, fc.DBMaxConns)
	setIf(&cfg.DBMinConns, fc.DBMinConns)
	setIf(&cfg.DBMigrate, fc.DBMigrate)
	setIf(&cfg.RedisURL, fc.RedisURL)
	setIf(&cfg.ReadinessRequireDB, fc.ReadinessRequireDB)
	setIf(&cfg.RequireTokenHMAC, fc.RequireTokenHMAC)
	setIf(&cfg.JanitorSchedule, fc.JanitorSchedule)
	setIf(&cfg.MetricsEnabled, fc.MetricsEnabled)
}

func (fc fileConfig) seedEnv() error {
	for k, v := range fc.Env {
		k = strings.TrimSpace(k)
		if !strings.HasPrefix(k, "VERSA_") {
			return fmt.Errorf("%w: env key %q must start with VERSA_", ErrConfig, k)
		}
		if cur, set := os.LookupEnv(k); set && strings.TrimSpace(cur) != "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
