package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Errorf("unexpected API URL: %s", cfg.APIBaseURL)
	}
	if cfg.SocketURL != "ws://localhost:8080/ws" {
		t.Errorf("unexpected socket URL: %s", cfg.SocketURL)
	}
	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("unexpected reconnect attempts: %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("unexpected reconnect delay: %v", cfg.ReconnectDelay)
	}
	if cfg.RefreshSkew != 30*time.Second {
		t.Errorf("unexpected refresh skew: %v", cfg.RefreshSkew)
	}
	if cfg.StatePath == "" {
		t.Error("state path should have a default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CHAT_API_URL", "https://api.example.com")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "9")
	t.Setenv("RECONNECT_MULTIPLIER", "1.5")
	t.Setenv("TOKEN_REFRESH_SKEW", "45s")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("unexpected API URL: %s", cfg.APIBaseURL)
	}
	if cfg.ReconnectMaxAttempts != 9 {
		t.Errorf("unexpected reconnect attempts: %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectMultiplier != 1.5 {
		t.Errorf("unexpected multiplier: %v", cfg.ReconnectMultiplier)
	}
	if cfg.RefreshSkew != 45*time.Second {
		t.Errorf("unexpected refresh skew: %v", cfg.RefreshSkew)
	}
	if !cfg.TracingEnabled {
		t.Error("tracing should be enabled")
	}
}

func TestMalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "many")
	t.Setenv("RECONNECT_DELAY", "soon")

	cfg := Load()

	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("expected default attempts, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("expected default delay, got %v", cfg.ReconnectDelay)
	}
}
