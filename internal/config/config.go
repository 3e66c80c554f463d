// Package config provides configuration management for LinkMesh.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable of the client. Components receive it (or the
// values derived from it) at construction; there is no process-wide state.
//
// Config file location: ~/.linkmesh/config.yaml, overridable with --config.
//
// YAML format:
//
//	api_url: http://localhost:8000
//	poll_interval: 3s
//	reconnect_interval: 3s
//	reconnect_max_attempts: 10
//	heartbeat_interval: 15s
//	rule_cap: 10
type Config struct {
	// APIBaseURL is the base URL of the analysis engine.
	APIBaseURL string

	// PollInterval is the fixed interval of the polling fallback.
	PollInterval time.Duration

	// ReconnectInterval is the fixed wait between streaming reconnect attempts.
	ReconnectInterval time.Duration

	// ReconnectMaxAttempts bounds streaming reconnect attempts before the
	// synchronizer falls back to polling for good.
	ReconnectMaxAttempts int

	// HeartbeatInterval is the keepalive ping interval while streaming.
	HeartbeatInterval time.Duration

	// RequestTimeout bounds a single HTTP request to the engine.
	RequestTimeout time.Duration

	// RuleCap is the upper bound clamped onto rule-matrix inputs.
	RuleCap int
}

// Validation errors.
var (
	ErrMissingAPIBaseURL     = errors.New("api_url is required")
	ErrInvalidPollInterval   = errors.New("poll_interval must be positive")
	ErrInvalidReconnect      = errors.New("reconnect_interval must be positive and reconnect_max_attempts at least 1")
	ErrInvalidHeartbeat      = errors.New("heartbeat_interval must be positive")
	ErrInvalidRuleCap        = errors.New("rule_cap must be at least 1")
	ErrInvalidRequestTimeout = errors.New("request_timeout must be positive")
)

// Default values. The reconnect policy matches the web client this tool
// replaces: retry every 3 seconds, at most 10 times.
const (
	DefaultAPIBaseURL           = "http://localhost:8000"
	DefaultPollInterval         = 3 * time.Second
	DefaultReconnectInterval    = 3 * time.Second
	DefaultReconnectMaxAttempts = 10
	DefaultHeartbeatInterval    = 15 * time.Second
	DefaultRequestTimeout       = 30 * time.Second
	DefaultRuleCap              = 10
)

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		APIBaseURL:           DefaultAPIBaseURL,
		PollInterval:         DefaultPollInterval,
		ReconnectInterval:    DefaultReconnectInterval,
		ReconnectMaxAttempts: DefaultReconnectMaxAttempts,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		RequestTimeout:       DefaultRequestTimeout,
		RuleCap:              DefaultRuleCap,
	}
}

// DefaultConfigDir returns ~/.linkmesh, or "." when the home directory is
// unknown.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".linkmesh")
}

// Load reads configuration from a file (optional) and LINKMESH_* environment
// variables, on top of the defaults. cfgFile may be empty, in which case
// ~/.linkmesh/config.yaml is tried.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_url", DefaultAPIBaseURL)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("reconnect_interval", DefaultReconnectInterval)
	v.SetDefault("reconnect_max_attempts", DefaultReconnectMaxAttempts)
	v.SetDefault("heartbeat_interval", DefaultHeartbeatInterval)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("rule_cap", DefaultRuleCap)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DefaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LINKMESH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one is not.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		APIBaseURL:           v.GetString("api_url"),
		PollInterval:         v.GetDuration("poll_interval"),
		ReconnectInterval:    v.GetDuration("reconnect_interval"),
		ReconnectMaxAttempts: v.GetInt("reconnect_max_attempts"),
		HeartbeatInterval:    v.GetDuration("heartbeat_interval"),
		RequestTimeout:       v.GetDuration("request_timeout"),
		RuleCap:              v.GetInt("rule_cap"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return ErrMissingAPIBaseURL
	}
	if cfg.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if cfg.ReconnectInterval <= 0 || cfg.ReconnectMaxAttempts < 1 {
		return ErrInvalidReconnect
	}
	if cfg.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeat
	}
	if cfg.RequestTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}
	if cfg.RuleCap < 1 {
		return ErrInvalidRuleCap
	}
	return nil
}
