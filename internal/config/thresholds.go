package config

import (
	"fmt"
	"time"
)

// MetricThreshold holds the hysteresis parameters for one metric. A status
// only changes after the threshold has been breached for the configured
// duration with at least MinSamples samples, and only clears after the
// recovery condition has held.
type MetricThreshold struct {
	// Warn is the warning threshold (percent or degrees C).
	Warn float64 `yaml:"warn"`

	// Crit is the critical threshold. Must be >= Warn.
	Crit float64 `yaml:"crit"`

	// WarnDuration is how long Warn must be sustained before WARNING.
	WarnDuration time.Duration `yaml:"warn_duration"`

	// CritDuration is how long Crit must be sustained before CRITICAL.
	CritDuration time.Duration `yaml:"crit_duration"`

	// Recover is the recovery threshold. Samples below it count toward
	// clearing a WARNING. Must be <= Warn.
	Recover float64 `yaml:"recover"`

	// RecoverDuration is the window in which recovery samples are counted.
	RecoverDuration time.Duration `yaml:"recover_duration"`

	// MinSamples is the minimum number of breaching samples required for a
	// transition. Default: 3.
	MinSamples int `yaml:"min_samples"`
}

// Validate checks if the threshold has valid field values
func (t MetricThreshold) Validate() error {
	if t.Crit < t.Warn {
		return fmt.Errorf("crit threshold (%.1f) must be >= warn threshold (%.1f)", t.Crit, t.Warn)
	}
	if t.Recover > t.Warn {
		return fmt.Errorf("recover threshold (%.1f) must be <= warn threshold (%.1f)", t.Recover, t.Warn)
	}
	if t.WarnDuration <= 0 || t.CritDuration <= 0 {
		return fmt.Errorf("warn/crit durations must be positive (got %s/%s)", t.WarnDuration, t.CritDuration)
	}
	if t.MinSamples < 1 {
		return fmt.Errorf("min_samples must be at least 1 (got %d)", t.MinSamples)
	}
	return nil
}

// ThresholdConfig is the per-metric hysteresis parameter table.
type ThresholdConfig struct {
	// CPU usage percent.
	// Default: warn 85%/300s, crit 95%/300s, recover 75%/120s, 3 samples.
	CPU MetricThreshold `yaml:"cpu"`

	// Memory usage percent.
	// Default: warn 85%/60s, crit 90%/60s, 2 samples.
	Memory MetricThreshold `yaml:"memory"`

	// Swap used as a percent of total RAM.
	// Default: crit 20%/120s sustained over 2 samples.
	Swap MetricThreshold `yaml:"swap"`

	// Temperature in degrees C (hottest sensor).
	// Default: warn 80C/300s, crit 90C/300s, 3 samples over the 5 minute
	// window, sampled at most once per 60s.
	Temperature MetricThreshold `yaml:"temperature"`

	// MaxWindow bounds how long samples are retained per metric.
	// Default: 600s. Range: must cover the longest configured duration.
	MaxWindow time.Duration `yaml:"max_window"`

	// FilesystemWarnPercent and FilesystemCritPercent gate per-filesystem
	// usage. Defaults: 85 / 95.
	FilesystemWarnPercent float64 `yaml:"filesystem_warn_percent"`
	FilesystemCritPercent float64 `yaml:"filesystem_crit_percent"`

	// CertExpiryWarnDays triggers a warning when a certificate expires
	// within this many days. Default: 14.
	CertExpiryWarnDays int `yaml:"cert_expiry_warn_days"`

	// FailedLoginWarnCount triggers a warning when this many failed logins
	// are seen in the recent auth window. Default: 10.
	FailedLoginWarnCount int `yaml:"failed_login_warn_count"`

	// LatencyWarnMillis triggers a network warning when gateway latency
	// exceeds this value. Default: 300.
	LatencyWarnMillis float64 `yaml:"latency_warn_millis"`
}

// DefaultThresholds returns the hysteresis parameter table used when no
// config file overrides it. The durations are deliberately conservative:
// a single noisy sample never changes a verdict.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		CPU: MetricThreshold{
			Warn: 85, Crit: 95,
			WarnDuration: 300 * time.Second, CritDuration: 300 * time.Second,
			Recover: 75, RecoverDuration: 120 * time.Second,
			MinSamples: 3,
		},
		Memory: MetricThreshold{
			Warn: 85, Crit: 90,
			WarnDuration: 60 * time.Second, CritDuration: 60 * time.Second,
			Recover: 80, RecoverDuration: 60 * time.Second,
			MinSamples: 2,
		},
		Swap: MetricThreshold{
			Warn: 20, Crit: 20,
			WarnDuration: 120 * time.Second, CritDuration: 120 * time.Second,
			Recover: 10, RecoverDuration: 120 * time.Second,
			MinSamples: 2,
		},
		Temperature: MetricThreshold{
			Warn: 80, Crit: 90,
			WarnDuration: 300 * time.Second, CritDuration: 300 * time.Second,
			Recover: 70, RecoverDuration: 120 * time.Second,
			MinSamples: 3,
		},
		MaxWindow:             600 * time.Second,
		FilesystemWarnPercent: 85,
		FilesystemCritPercent: 95,
		CertExpiryWarnDays:    14,
		FailedLoginWarnCount:  10,
		LatencyWarnMillis:     300,
	}
}

// Validate checks if the configuration has valid values
func (c ThresholdConfig) Validate() error {
	for name, t := range map[string]MetricThreshold{
		"cpu": c.CPU, "memory": c.Memory, "swap": c.Swap, "temperature": c.Temperature,
	} {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("thresholds.%s: %w", name, err)
		}
		if t.WarnDuration > c.MaxWindow || t.CritDuration > c.MaxWindow {
			return fmt.Errorf("thresholds.%s: durations exceed max_window (%s)", name, c.MaxWindow)
		}
	}
	if c.FilesystemWarnPercent <= 0 || c.FilesystemWarnPercent > 100 {
		return fmt.Errorf("filesystem_warn_percent must be between 0 and 100 (got %.1f)", c.FilesystemWarnPercent)
	}
	if c.FilesystemCritPercent < c.FilesystemWarnPercent || c.FilesystemCritPercent > 100 {
		return fmt.Errorf("filesystem_crit_percent must be between filesystem_warn_percent and 100 (got %.1f)", c.FilesystemCritPercent)
	}
	if c.CertExpiryWarnDays < 1 || c.CertExpiryWarnDays > 365 {
		return fmt.Errorf("cert_expiry_warn_days must be between 1 and 365 (got %d)", c.CertExpiryWarnDays)
	}
	if c.FailedLoginWarnCount < 1 {
		return fmt.Errorf("failed_login_warn_count must be at least 1 (got %d)", c.FailedLoginWarnCount)
	}
	if c.LatencyWarnMillis <= 0 {
		return fmt.Errorf("latency_warn_millis must be positive (got %.1f)", c.LatencyWarnMillis)
	}
	return nil
}
