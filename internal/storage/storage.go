// Package storage defines the durable error-tracking interface and the
// factory for the concrete backend. Error records and audit events are
// exclusively owned by this layer; check code references records by key and
// never touches the database directly.
package storage

import (
	"context"
	"errors"

	"github.com/MacRimi/proxmon/internal/config"
	"github.com/MacRimi/proxmon/internal/storage/sqlite"
	"github.com/MacRimi/proxmon/internal/types"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = sqlite.ErrNotFound

// Store is the durable, deduplicated error bookkeeping interface. All
// mutations on a given error key are linearizable; operations on different
// keys proceed independently. Every operation is a single short transaction
// so cleanup can run concurrently with recording without lost updates.
type Store interface {
	// RecordError upserts a detection. An acknowledged record resolved
	// within the ack-immunity window suppresses the detection entirely.
	RecordError(ctx context.Context, key, category string, severity types.Severity, reason string, details map[string]any) (*types.RecordResult, error)

	// ResolveError marks a record resolved if it is currently unresolved.
	// Idempotent: resolving a resolved or missing key is a no-op.
	ResolveError(ctx context.Context, key, reason string) error

	// AcknowledgeError marks a record acknowledged and resolved
	// unconditionally. The key becomes immune to re-insertion for the
	// ack-immunity window. Idempotent.
	AcknowledgeError(ctx context.Context, key string) error

	// MarkNotified flips notification_sent once the external notifier has
	// delivered. The engine never delivers notifications itself.
	MarkNotified(ctx context.Context, key string) error

	// GetError fetches one record by key, resolved or not.
	GetError(ctx context.Context, key string) (*types.ErrorRecord, error)

	// GetActiveErrors lists unresolved records, optionally filtered by
	// category, ordered by severity desc then recency desc.
	GetActiveErrors(ctx context.Context, category string) ([]*types.ErrorRecord, error)

	// GetRecentEvents returns the newest audit events, newest first.
	GetRecentEvents(ctx context.Context, limit int) ([]*types.Event, error)

	// CleanupOldErrors enforces retention: deletes old resolved records,
	// auto-resolves stale unacknowledged records per category policy, and
	// purges old events. Returns a summary of what was touched.
	CleanupOldErrors(ctx context.Context, policy config.RetentionConfig) (*sqlite.CleanupStats, error)

	// Lifecycle
	Close() error
}

// NewStore creates the SQLite-backed store. cfg.DBPath ":memory:" creates
// an in-memory database (tests).
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	path := cfg.DBPath
	if path == "" {
		path = config.Default().DBPath
	}
	store, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	store.SetAckImmunity(cfg.Retention.AckImmunity)
	return store, nil
}
