// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the companion configuration.
type Config struct {
	Session   SessionConfig   `toml:"session"`
	Policy    PolicyConfig    `toml:"policy"`
	Executor  ExecutorConfig  `toml:"executor"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Events    EventsConfig    `toml:"events"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// SessionConfig contains session persistence and default capability settings.
type SessionConfig struct {
	Dir            string `toml:"dir"`             // Directory for session logs
	NetworkEnabled bool   `toml:"network_enabled"` // Default network capability for new sessions
	SafetyEnabled  bool   `toml:"safety_enabled"`  // Default safety capability for new sessions
}

// PolicyConfig contains operator extensions to the built-in guard rules.
type PolicyConfig struct {
	ExtraPatterns   []string `toml:"extra_patterns"`   // Additional blocked content patterns (regex)
	ProtectedPaths  []string `toml:"protected_paths"`  // Additional protected path prefixes
	ConsentRequired bool     `toml:"consent_required"` // Prompt before each directive dispatch
}

// ExecutorConfig contains directive handler settings.
type ExecutorConfig struct {
	RunTimeout     int    `toml:"run_timeout"`      // run command timeout in seconds (default 30)
	MediaDir       string `toml:"media_dir"`        // Download directory for fetch_media
	SearchURL      string `toml:"search_url"`       // HTML search endpoint
	MediaSearchURL string `toml:"media_search_url"` // Media lookup API endpoint
}

// HeartbeatConfig contains scheduled task settings.
type HeartbeatConfig struct {
	Dir       string `toml:"dir"`        // Directory of per-site task configs
	StatePath string `toml:"state_path"` // Per-site run state file
	TickSecs  int    `toml:"tick_secs"`  // Scheduler tick interval in seconds (default 60)
}

// EventsConfig contains violation alert publishing settings.
type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // Broker URL, empty disables publishing
	Subject string `toml:"subject"`  // Subject prefix for alerts
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc (default) or http
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Session: SessionConfig{
			Dir:            "~/.local/companion/sessions",
			NetworkEnabled: true,
			SafetyEnabled:  true,
		},
		Executor: ExecutorConfig{
			RunTimeout: 30,
			MediaDir:   "media",
		},
		Heartbeat: HeartbeatConfig{
			Dir:       "heartbeats",
			StatePath: "~/.local/companion/heartbeat-state.json",
			TickSecs:  60,
		},
		Events: EventsConfig{
			Subject: "companion.violations",
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from companion.toml in the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	return LoadFile(filepath.Join(cwd, "companion.toml"))
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
