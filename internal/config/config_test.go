package config

import (
	"testing"
	"time"
)

// TestLoadDefaults verifies that Load without a config file yields the
// documented defaults.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("http_addr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.Worker.PollInterval != 5*time.Second {
		t.Errorf("poll_interval = %v, want 5s", cfg.Worker.PollInterval)
	}
	if cfg.Worker.MaxAttempts != 5 {
		t.Errorf("max_attempts = %d, want 5", cfg.Worker.MaxAttempts)
	}
	if cfg.FromEmail == "" || cfg.CheckEmail == "" {
		t.Error("mail addresses defaulted empty")
	}
}

// TestLoadEnvOverride verifies that an OPENRECORDS_ environment variable
// wins over the default.
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OPENRECORDS_HTTP_ADDR", ":9090")
	t.Setenv("OPENRECORDS_SMTP_ADDR", "mail.example.com:587")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("http_addr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.SMTP.Addr != "mail.example.com:587" {
		t.Errorf("smtp addr = %q", cfg.SMTP.Addr)
	}
}
