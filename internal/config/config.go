// Package config reads the process environment into the settings the
// session binary needs. All values come from env vars so deployment stays
// a matter of an env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the env var's value, or fallback when unset or blank.
func String(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Int returns the env var parsed as int, or fallback when unset or
// unparseable.
func Int(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Float returns the env var parsed as float64, or fallback when unset or
// unparseable.
func Float(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Bool returns the env var parsed as bool, or fallback when unset or
// unparseable. Accepts the strconv.ParseBool forms.
func Bool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// Duration returns the env var parsed as a time.Duration, or fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
