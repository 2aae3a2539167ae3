// Package config centralizes the flag+env override pattern the teacher
// repeats in keysaver-server/main.go and go-node/main.go, so the three
// cmd/* binaries share one implementation instead of three copies.
package config

import (
	"os"
	"strconv"
	"time"
)

// EnvOr returns the value of the named environment variable, or def if it is
// unset or empty — mirrors the original Python processes reading PORT,
// DIRECTORY_NODE, THIS_NODE, TRACKING_ID, PUBLIC_KEY directly via os.getenv.
func EnvOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// EnvIntOr parses the named environment variable as an int, falling back to
// def on absence or parse failure.
func EnvIntOr(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// EnvDurationOr parses the named environment variable with
// time.ParseDuration, falling back to def on absence or parse failure.
func EnvDurationOr(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
