// Package config provides environment configuration for the realtime client.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the client.
type Config struct {
	// Backend endpoints
	APIBaseURL string
	SocketURL  string

	// Session state
	StatePath string

	// Timeouts
	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	// Reconnect policy
	ReconnectDelay       time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMultiplier  float64
	ReconnectMaxAttempts int

	// Credential refresh
	RefreshSkew time.Duration

	// Logging
	LogLevel string

	// Debug endpoint (healthz + metrics); disabled when empty
	DebugAddr string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Backend
		APIBaseURL: getEnv("CHAT_API_URL", "http://localhost:8080"),
		SocketURL:  getEnv("CHAT_SOCKET_URL", "ws://localhost:8080/ws"),

		// Session state
		StatePath: getEnv("CHAT_STATE_FILE", defaultStatePath()),

		// Timeouts
		ConnectTimeout: getDurationEnv("CONNECT_TIMEOUT", 5*time.Second),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 10*time.Second),

		// Reconnect
		ReconnectDelay:       getDurationEnv("RECONNECT_DELAY", 5*time.Second),
		ReconnectMaxDelay:    getDurationEnv("RECONNECT_MAX_DELAY", 30*time.Second),
		ReconnectMultiplier:  getFloatEnv("RECONNECT_MULTIPLIER", 1.0),
		ReconnectMaxAttempts: getIntEnv("RECONNECT_MAX_ATTEMPTS", 5),

		// Refresh
		RefreshSkew: getDurationEnv("TOKEN_REFRESH_SKEW", 30*time.Second),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Debug endpoint
		DebugAddr: getEnv("DEBUG_ADDR", ""),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.json"
	}
	return filepath.Join(home, ".chatterline", "session.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
