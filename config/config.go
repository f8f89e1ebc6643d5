// Package config loads component configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Getenv returns the variable or def when unset/empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetenvInt parses an integer variable, falling back to def on absence
// or parse failure.
func GetenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// GetenvFloat parses a float variable, falling back to def.
func GetenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// GetenvSeconds parses a float seconds variable into a duration.
func GetenvSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}

// GetenvBool treats "1", "true", "yes" as true.
func GetenvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}

// Common holds the settings every component shares.
type Common struct {
	RedisURL string
	LogLevel string
	LogJSON  bool
}

// LoadCommon reads the shared settings.
func LoadCommon() Common {
	return Common{
		RedisURL: Getenv("REDIS_URL", "redis://localhost:6379/0"),
		LogLevel: Getenv("LOG_LEVEL", "info"),
		LogJSON:  GetenvBool("LOG_JSON", false),
	}
}

// WorkerID returns WORKER_ID, generating a unique fallback id when the
// variable is unset so a misconfigured worker cannot collide with a
// configured one.
func WorkerID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
