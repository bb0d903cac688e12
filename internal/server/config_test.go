package server

import (
	"testing"
	"time"
)

// TestNewConfigDefaults verifies the built-in defaults.
func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Env != "dev" {
		t.Errorf("Env = %q, want dev", cfg.Env)
	}
	if cfg.Port != ":8080" {
		t.Errorf("Port = %q, want :8080", cfg.Port)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want 4096", cfg.MaxMessageSize)
	}
	if cfg.StaticDir != "./public" {
		t.Errorf("StaticDir = %q, want ./public", cfg.StaticDir)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

// TestNewConfigFromEnv verifies that environment variables override the
// defaults and that a bare port number gains its colon.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("STATIC_DIR", "/srv/shell")
	t.Setenv("SHUTDOWN_TIMEOUT", "30")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")

	cfg := NewConfigFromEnv()

	if cfg.Env != "prod" {
		t.Errorf("Env = %q, want prod", cfg.Env)
	}
	if cfg.Port != ":9090" {
		t.Errorf("Port = %q, want :9090", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("MaxMessageSize = %d, want 1024", cfg.MaxMessageSize)
	}
	if cfg.StaticDir != "/srv/shell" {
		t.Errorf("StaticDir = %q", cfg.StaticDir)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.RateLimit.Burst != 10 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

// TestNewConfigFromEnvInvalidValues verifies that unparseable values
// fall back to the defaults instead of failing.
func TestNewConfigFromEnvInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("SHUTDOWN_TIMEOUT", "-5")
	t.Setenv("RATE_LIMIT_BURST", "0")

	cfg := NewConfigFromEnv()

	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want default 4096", cfg.MaxMessageSize)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 10s", cfg.ShutdownTimeout)
	}
	if cfg.RateLimit.Burst != 5 {
		t.Errorf("RateLimit.Burst = %d, want default 5", cfg.RateLimit.Burst)
	}
}

// TestSetConfigSanitizes verifies that applying a config with zero
// values restores safe defaults, and that nil resets entirely.
func TestSetConfigSanitizes(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{})
	cfg := currentConfig()
	if cfg.Port != ":8080" || cfg.MaxMessageSize != 4096 || cfg.RateLimit.Burst != 5 {
		t.Errorf("sanitized config = %+v", cfg)
	}

	SetConfig(&Config{Port: ":7000", MaxMessageSize: 256})
	cfg = currentConfig()
	if cfg.Port != ":7000" || cfg.MaxMessageSize != 256 {
		t.Errorf("custom config = %+v", cfg)
	}

	SetConfig(nil)
	cfg = currentConfig()
	if cfg.Port != ":8080" {
		t.Errorf("reset config Port = %q, want :8080", cfg.Port)
	}
}
