// Package config holds all butler configuration. Configuration is read
// from a YAML file, then overridden by environment variables so deploys
// can tune a single knob without editing the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all butler configuration.
type Config struct {
	// Core settings
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`

	// Orchestrator loop settings
	Agent AgentConfig `yaml:"agent"`

	// Completed-response cache
	Cache CacheConfig `yaml:"cache"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// AgentConfig configures the orchestrator loop.
type AgentConfig struct {
	// MaxIterations bounds the plan-act loop per request.
	MaxIterations int `yaml:"max_iterations"`

	// TurnTimeout bounds one request end to end ("0" disables it, which
	// matches the historical behavior of no per-turn deadline).
	TurnTimeout string `yaml:"turn_timeout"`

	// MaxToolResultBytes limits how much tool output is folded back
	// into planner context.
	MaxToolResultBytes int `yaml:"max_tool_result_bytes"`

	// HistoryLimit trims the per-request action history handed to the
	// planner.
	HistoryLimit int `yaml:"history_limit"`
}

// CacheConfig configures the requestId -> response cache.
type CacheConfig struct {
	MaxEntries int    `yaml:"max_entries"`
	TTL        string `yaml:"ttl"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name:     "butler",
		Timezone: "Local",
		Agent: AgentConfig{
			MaxIterations:      5,
			TurnTimeout:        "0",
			MaxToolResultBytes: 8192,
			HistoryLimit:       20,
		},
		Cache: CacheConfig{
			MaxEntries: 1024,
			TTL:        "24h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, falling back to defaults for any
// field the file leaves unset, then applies environment overrides.
// A missing file is not an error; defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies BUTLER_* environment variables on top of the
// loaded file. Unset or malformed values leave the field untouched.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BUTLER_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("BUTLER_TURN_TIMEOUT"); v != "" {
		c.Agent.TurnTimeout = v
	}
	if v := os.Getenv("BUTLER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BUTLER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("BUTLER_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("BUTLER_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.HistoryLimit < 1 {
		return fmt.Errorf("agent.history_limit must be at least 1, got %d", c.Agent.HistoryLimit)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be at least 1, got %d", c.Cache.MaxEntries)
	}
	if _, err := c.TurnTimeout(); err != nil {
		return err
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	return nil
}

// TurnTimeout parses agent.turn_timeout. Zero means no deadline.
func (c *Config) TurnTimeout() (time.Duration, error) {
	return parseDuration("agent.turn_timeout", c.Agent.TurnTimeout)
}

// CacheTTL parses cache.ttl. Zero means entries never expire.
func (c *Config) CacheTTL() (time.Duration, error) {
	return parseDuration("cache.ttl", c.Cache.TTL)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, value)
	}
	return d, nil
}
