// Package config holds the threshold, retention, cache and probe
// configuration for the health engine, with YAML file loading and
// range-checked validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheConfig holds the memoization TTLs that bound the cost of expensive
// probes. Evaluation is request-driven; these TTLs are the only staleness
// control.
type CacheConfig struct {
	// Overall is the TTL of the full aggregate evaluation. Default: 60s.
	Overall time.Duration `yaml:"overall"`

	// Temperature bounds sensor reads. Default: 60s.
	Temperature time.Duration `yaml:"temperature"`

	// Network bounds latency probes. Default: 60s.
	Network time.Duration `yaml:"network"`

	// Logs bounds journal scans. Default: 300s.
	Logs time.Duration `yaml:"logs"`

	// Updates bounds package-manager queries. Default: 600s.
	Updates time.Duration `yaml:"updates"`

	// Certificates bounds certificate expiry checks. Default: 24h.
	Certificates time.Duration `yaml:"certificates"`
}

// DefaultCache returns the default memoization TTLs.
func DefaultCache() CacheConfig {
	return CacheConfig{
		Overall:      60 * time.Second,
		Temperature:  60 * time.Second,
		Network:      60 * time.Second,
		Logs:         300 * time.Second,
		Updates:      600 * time.Second,
		Certificates: 24 * time.Hour,
	}
}

// Validate checks if the configuration has valid values
func (c CacheConfig) Validate() error {
	for name, ttl := range map[string]time.Duration{
		"overall": c.Overall, "temperature": c.Temperature, "network": c.Network,
		"logs": c.Logs, "updates": c.Updates, "certificates": c.Certificates,
	} {
		if ttl < time.Second || ttl > 7*24*time.Hour {
			return fmt.Errorf("cache.%s must be between 1s and 7d (got %s)", name, ttl)
		}
	}
	return nil
}

// ProbeConfig bounds the external probe calls.
type ProbeConfig struct {
	// CommandTimeout is the hard timeout for each shelled-out probe.
	// Default: 5s. Range: 1s-10s.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// SensorInterval rate-limits sensor/journal invocations as a second
	// line of defense behind the TTL caches. Default: 60s.
	SensorInterval time.Duration `yaml:"sensor_interval"`

	// LogWindow is the trailing window of log lines fetched per scan.
	// Default: 3m (the cascade/spike comparison window).
	LogWindow time.Duration `yaml:"log_window"`

	// WatchedUnits are the systemd units whose active state feeds the
	// services category.
	WatchedUnits []string `yaml:"watched_units"`
}

// DefaultProbe returns the default probe bounds.
func DefaultProbe() ProbeConfig {
	return ProbeConfig{
		CommandTimeout: 5 * time.Second,
		SensorInterval: 60 * time.Second,
		LogWindow:      3 * time.Minute,
		WatchedUnits: []string{
			"pve-cluster", "pvedaemon", "pveproxy", "pvestatd",
		},
	}
}

// Validate checks if the configuration has valid values
func (c ProbeConfig) Validate() error {
	if c.CommandTimeout < time.Second || c.CommandTimeout > 10*time.Second {
		return fmt.Errorf("probe.command_timeout must be between 1s and 10s (got %s)", c.CommandTimeout)
	}
	if c.SensorInterval < time.Second {
		return fmt.Errorf("probe.sensor_interval must be at least 1s (got %s)", c.SensorInterval)
	}
	if c.LogWindow < 30*time.Second || c.LogWindow > time.Hour {
		return fmt.Errorf("probe.log_window must be between 30s and 1h (got %s)", c.LogWindow)
	}
	return nil
}

// Config is the full engine configuration.
type Config struct {
	// DBPath is the SQLite database file path.
	// Default: "/var/lib/proxmon/errors.db".
	// Special value ":memory:" creates an in-memory database (tests).
	DBPath string `yaml:"db_path"`

	Thresholds ThresholdConfig `yaml:"thresholds"`
	Retention  RetentionConfig `yaml:"retention"`
	Cache      CacheConfig     `yaml:"cache"`
	Probe      ProbeConfig     `yaml:"probe"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:     "/var/lib/proxmon/errors.db",
		Thresholds: DefaultThresholds(),
		Retention:  DefaultRetention(),
		Cache:      DefaultCache(),
		Probe:      DefaultProbe(),
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Retention.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Probe.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error: defaults apply unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}
