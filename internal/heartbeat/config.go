// Package heartbeat schedules per-site task lists declared in
// operator-editable config files and runs them through the sandbox.
package heartbeat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/companion/internal/policy"
)

// Task is one declared action inside a site config. Immutable once
// loaded.
type Task struct {
	Action      string                 `json:"action" yaml:"action"`
	Params      map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
}

// Config is one site's declarative heartbeat definition. A config is
// either fully accepted into the registry or fully rejected; replaced
// wholesale on reload, never patched field by field.
type Config struct {
	SiteID                  string  `json:"site_id" yaml:"site_id"`
	DisplayName             string  `json:"display_name" yaml:"display_name"`
	IntervalHours           float64 `json:"interval_hours" yaml:"interval_hours"`
	APIKeyName              string  `json:"api_key_name,omitempty" yaml:"api_key_name,omitempty"`
	Tasks                   []Task  `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Enabled                 bool    `json:"enabled" yaml:"enabled"`
	MaxRequestsPerHeartbeat uint32  `json:"max_requests_per_heartbeat" yaml:"max_requests_per_heartbeat"`
	TimeoutSeconds          uint32  `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// defaults returns a config pre-filled with the documented field
// defaults; decoding a file over it keeps them for absent fields.
func defaults() *Config {
	return &Config{
		IntervalHours:           4.0,
		Enabled:                 true,
		MaxRequestsPerHeartbeat: 10,
		TimeoutSeconds:          30,
	}
}

// LoadConfigFile parses one site config. JSON and YAML are both
// accepted, keyed on the file extension.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", filepath.Base(path), err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", filepath.Base(path), err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
	return cfg, nil
}

// Validate applies identifier shape checks and the content-pattern
// scan to every nested string field. The api_key_name field is the
// one designated exception: key names legitimately contain the
// substring "key".
func (c *Config) Validate(guard *policy.Guard) error {
	if guard == nil {
		guard = policy.NewGuard(nil)
	}

	if !policy.ValidIdentifier(c.SiteID) {
		return fmt.Errorf("invalid site_id %q", c.SiteID)
	}
	if strings.TrimSpace(c.DisplayName) == "" {
		return fmt.Errorf("site %q: display_name is required", c.SiteID)
	}
	if v := guard.CheckContent(c.DisplayName); !v.Allowed {
		return fmt.Errorf("site %q: display_name: %s", c.SiteID, v.Reason)
	}
	if c.IntervalHours < 0 {
		return fmt.Errorf("site %q: interval_hours must not be negative", c.SiteID)
	}
	if c.MaxRequestsPerHeartbeat < 1 {
		return fmt.Errorf("site %q: max_requests_per_heartbeat must be at least 1", c.SiteID)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("site %q: timeout_seconds must be at least 1", c.SiteID)
	}

	for i, task := range c.Tasks {
		if !policy.ValidIdentifier(task.Action) {
			return fmt.Errorf("site %q: task %d: invalid action %q", c.SiteID, i, task.Action)
		}
		if task.Description != "" {
			if v := guard.CheckContent(task.Description); !v.Allowed {
				return fmt.Errorf("site %q: task %d: description: %s", c.SiteID, i, v.Reason)
			}
		}
		if v := guard.CheckParams(task.Params); !v.Allowed {
			return fmt.Errorf("site %q: task %d (%s): %s", c.SiteID, i, task.Action, v.Reason)
		}
	}
	return nil
}
