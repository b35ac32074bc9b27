package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env overrides are applied last in LoadConfig. A blank or unparsable value
// keeps the current setting, so a bad VERSA_* variable never zeroes a field
// that the YAML file or the defaults already filled in.

func envValue[T any](key string, current T, parse func(string) (T, error), valid func(T) bool) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return current
	}
	v, err := parse(raw)
	if err != nil || (valid != nil && !valid(v)) {
		return current
	}
	return v
}

// EnvString returns the trimmed value of key, or current when unset.
func EnvString(key, current string) string {
	return envValue(key, current, func(s string) (string, error) { return s, nil }, nil)
}

// EnvBool accepts the strconv.ParseBool spellings.
func EnvBool(key string, current bool) bool {
	return envValue(key, current, strconv.ParseBool, nil)
}

// EnvInt accepts positive integers only.
func EnvInt(key string, current int) int {
	return envValue(key, current, strconv.Atoi, func(n int) bool { return n > 0 })
}

// EnvInt32 accepts non-negative values that fit in int32 (pool sizes).
func EnvInt32(key string, current int32) int32 {
	parse := func(s string) (int32, error) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	}
	return envValue(key, current, parse, func(n int32) bool { return n >= 0 })
}

// EnvDuration accepts positive time.ParseDuration values.
func EnvDuration(key string, current time.Duration) time.Duration {
	return envValue(key, current, time.ParseDuration, func(d time.Duration) bool { return d > 0 })
}
