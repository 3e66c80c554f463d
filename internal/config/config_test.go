package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // no user config file

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.ReconnectInterval != 3*time.Second || cfg.ReconnectMaxAttempts != 10 {
		t.Errorf("reconnect = %v x%d", cfg.ReconnectInterval, cfg.ReconnectMaxAttempts)
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
	if cfg.RuleCap != 10 {
		t.Errorf("RuleCap = %d", cfg.RuleCap)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "api_url: https://engine.example.com\npoll_interval: 5s\nreconnect_max_attempts: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "https://engine.example.com" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.ReconnectMaxAttempts != 3 {
		t.Errorf("ReconnectMaxAttempts = %d", cfg.ReconnectMaxAttempts)
	}
	// Untouched keys keep defaults.
	if cfg.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LINKMESH_API_URL", "http://10.0.0.5:8000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "http://10.0.0.5:8000" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(c *Config) {}, nil},
		{"empty url", func(c *Config) { c.APIBaseURL = " " }, ErrMissingAPIBaseURL},
		{"bad poll", func(c *Config) { c.PollInterval = 0 }, ErrInvalidPollInterval},
		{"bad reconnect interval", func(c *Config) { c.ReconnectInterval = -time.Second }, ErrInvalidReconnect},
		{"bad reconnect attempts", func(c *Config) { c.ReconnectMaxAttempts = 0 }, ErrInvalidReconnect},
		{"bad heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, ErrInvalidHeartbeat},
		{"bad timeout", func(c *Config) { c.RequestTimeout = 0 }, ErrInvalidRequestTimeout},
		{"bad cap", func(c *Config) { c.RuleCap = 0 }, ErrInvalidRuleCap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
