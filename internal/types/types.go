// Package types defines the shared domain types for the health engine:
// statuses, category results, persisted error records and audit events.
package types

import (
	"fmt"
	"time"
)

// Status is the health verdict for a category or for the whole host.
type Status string

const (
	// StatusOK indicates the category is healthy.
	StatusOK Status = "OK"
	// StatusInfo indicates a healthy category with a noteworthy condition
	// (e.g. pending non-security updates). Folded into OK when merging.
	StatusInfo Status = "INFO"
	// StatusWarning indicates a sustained but non-fatal problem.
	StatusWarning Status = "WARNING"
	// StatusCritical indicates a condition requiring immediate attention.
	StatusCritical Status = "CRITICAL"
	// StatusUnknown indicates the check itself could not run (probe failure
	// or timeout).
	StatusUnknown Status = "UNKNOWN"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusOK, StatusInfo, StatusWarning, StatusCritical, StatusUnknown:
		return true
	}
	return false
}

// Rank orders statuses for merge decisions:
// CRITICAL > WARNING > UNKNOWN > INFO > OK.
func (s Status) Rank() int {
	switch s {
	case StatusCritical:
		return 4
	case StatusWarning:
		return 3
	case StatusUnknown:
		return 2
	case StatusInfo:
		return 1
	default:
		return 0
	}
}

// Severity is the persisted severity of an error record. Only WARNING and
// CRITICAL conditions are ever persisted.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// CategoryResult is the outcome of a single category check. Produced fresh
// on every evaluation and never persisted directly; only derived error
// records are durable.
type CategoryResult struct {
	Status  Status         `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Metrics map[string]any `json:"metrics,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorRecord is a durable, deduplicated record of an active or resolved
// issue. ErrorKey is the stable dedupe key, e.g. "vm_104",
// "storage_unavailable_local-lvm", "log_critical_a1b2c3d4".
type ErrorRecord struct {
	ErrorKey         string         `json:"error_key"`
	Category         string         `json:"category"`
	Severity         Severity       `json:"severity"`
	Reason           string         `json:"reason"`
	Details          map[string]any `json:"details,omitempty"`
	FirstSeen        time.Time      `json:"first_seen"`
	LastSeen         time.Time      `json:"last_seen"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	Acknowledged     bool           `json:"acknowledged"`
	NotificationSent bool           `json:"notification_sent"`
}

// Validate checks if the record has valid field values
func (r *ErrorRecord) Validate() error {
	if r.ErrorKey == "" {
		return fmt.Errorf("error_key is required")
	}
	if r.Category == "" {
		return fmt.Errorf("category is required")
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", r.Severity)
	}
	return nil
}

// Active reports whether the record is still unresolved.
func (r *ErrorRecord) Active() bool {
	return r.ResolvedAt == nil
}

// EventType classifies an audit trail entry.
type EventType string

const (
	EventNew          EventType = "new"
	EventUpdated      EventType = "updated"
	EventEscalated    EventType = "escalated"
	EventResolved     EventType = "resolved"
	EventAcknowledged EventType = "acknowledged"
)

// Event is one append-only audit trail entry, written alongside every
// error record mutation. Events are purged after the event retention period.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"event_type"`
	ErrorKey  string         `json:"error_key"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// RecordOutcome describes what RecordError did with a detection.
type RecordOutcome string

const (
	// OutcomeNew means a fresh record was inserted.
	OutcomeNew RecordOutcome = "new"
	// OutcomeUpdated means an existing unresolved record was refreshed.
	OutcomeUpdated RecordOutcome = "updated"
	// OutcomeEscalated means an existing record went WARNING -> CRITICAL.
	OutcomeEscalated RecordOutcome = "escalated"
	// OutcomeSkippedAcknowledged means the key was acknowledged recently and
	// the detection was suppressed.
	OutcomeSkippedAcknowledged RecordOutcome = "skipped_acknowledged"
)

// RecordResult is returned by RecordError so callers can decide whether a
// notification needs to be dispatched. The engine only marks the need; it
// never delivers notifications itself.
type RecordResult struct {
	Outcome           RecordOutcome `json:"outcome"`
	NeedsNotification bool          `json:"needs_notification"`
}

// OverallStatus is the top-level verdict exposed to the dashboard layer.
type OverallStatus struct {
	Status        Status    `json:"status"`
	Summary       string    `json:"summary"`
	CriticalCount int       `json:"critical_count"`
	WarningCount  int       `json:"warning_count"`
	OKCount       int       `json:"ok_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// DetailedStatus is the full per-category breakdown. Details always contains
// exactly the fixed category set, even when every underlying probe fails.
type DetailedStatus struct {
	Overall   Status                    `json:"overall"`
	Summary   string                    `json:"summary"`
	Details   map[string]CategoryResult `json:"details"`
	Timestamp time.Time                 `json:"timestamp"`
}
