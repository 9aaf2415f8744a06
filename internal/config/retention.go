package config

import (
	"fmt"
	"time"
)

// RetentionConfig holds the retention and auto-resolution policy for the
// error store. Cleanup is driven by CleanupOldErrors, which the CLI and the
// aggregator invoke opportunistically; there is no background scheduler.
type RetentionConfig struct {
	// ResolvedRetention is how long resolved records are kept before
	// deletion. Default: 7 days.
	ResolvedRetention time.Duration `yaml:"resolved_retention"`

	// EventRetention is how long audit events are kept.
	// Default: 30 days.
	EventRetention time.Duration `yaml:"event_retention"`

	// AckImmunity is how long an acknowledged key is immune to
	// re-insertion via RecordError. Default: 24 hours.
	AckImmunity time.Duration `yaml:"ack_immunity"`

	// AutoResolveAfter maps a category to the age (measured from
	// first_seen) after which an unacknowledged record is auto-resolved.
	// Categories absent from the map are never auto-resolved.
	// Defaults: vms 48h, disks 48h, logs 24h.
	AutoResolveAfter map[string]time.Duration `yaml:"auto_resolve_after"`
}

// DefaultRetention returns the default retention policy.
//
// These defaults are chosen to:
// - Keep resolved records long enough for a week of dashboard history
// - Keep the audit trail for a month of incident review
// - Let transient VM/disk flaps age out after two days
// - Let log-pattern issues age out after one day (logs churn fast)
func DefaultRetention() RetentionConfig {
	return RetentionConfig{
		ResolvedRetention: 7 * 24 * time.Hour,
		EventRetention:    30 * 24 * time.Hour,
		AckImmunity:       24 * time.Hour,
		AutoResolveAfter: map[string]time.Duration{
			"vms":   48 * time.Hour,
			"disks": 48 * time.Hour,
			"logs":  24 * time.Hour,
		},
	}
}

// Validate checks if the configuration has valid values
func (c RetentionConfig) Validate() error {
	if c.ResolvedRetention < time.Hour || c.ResolvedRetention > 365*24*time.Hour {
		return fmt.Errorf("resolved_retention must be between 1h and 365d (got %s)", c.ResolvedRetention)
	}
	if c.EventRetention < time.Hour || c.EventRetention > 730*24*time.Hour {
		return fmt.Errorf("event_retention must be between 1h and 730d (got %s)", c.EventRetention)
	}
	if c.EventRetention < c.ResolvedRetention {
		return fmt.Errorf("event_retention (%s) must be >= resolved_retention (%s)",
			c.EventRetention, c.ResolvedRetention)
	}
	if c.AckImmunity < time.Minute || c.AckImmunity > 30*24*time.Hour {
		return fmt.Errorf("ack_immunity must be between 1m and 30d (got %s)", c.AckImmunity)
	}
	for category, age := range c.AutoResolveAfter {
		if age < time.Hour {
			return fmt.Errorf("auto_resolve_after.%s must be at least 1h (got %s)", category, age)
		}
	}
	return nil
}
