package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/MacRimi/proxmon/internal/config"
	"github.com/MacRimi/proxmon/internal/types"
)

// CleanupStats summarizes one retention pass.
type CleanupStats struct {
	ResolvedDeleted int `json:"resolved_deleted"`
	AutoResolved    int `json:"auto_resolved"`
	EventsDeleted   int `json:"events_deleted"`
}

// CleanupOldErrors enforces the retention policy:
//
//  1. resolved records older than ResolvedRetention are deleted;
//  2. unacknowledged active records whose category has an auto-resolve age
//     and whose first_seen is older than that age are resolved (with a
//     resolved event, so the audit trail shows why they disappeared);
//  3. events older than EventRetention are deleted.
//
// Each step is its own short transaction, keyed on current row state, so a
// concurrent RecordError/ResolveError on the same key cannot be lost: an
// auto-resolve only fires on rows still matching the staleness predicate.
func (s *SQLiteStore) CleanupOldErrors(ctx context.Context, policy config.RetentionConfig) (*CleanupStats, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retention policy: %w", err)
	}

	stats := &CleanupStats{}
	now := s.now().UTC()

	// Step 1: drop resolved records past retention.
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM health_errors WHERE resolved_at IS NOT NULL AND resolved_at < ?",
		now.Add(-policy.ResolvedRetention))
	if err != nil {
		return stats, fmt.Errorf("failed to delete old resolved errors: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		stats.ResolvedDeleted = int(n)
	}

	// Step 2: auto-resolve stale unacknowledged records per category.
	for category, age := range policy.AutoResolveAfter {
		n, err := s.autoResolveCategory(ctx, category, now.Add(-age))
		if err != nil {
			return stats, err
		}
		stats.AutoResolved += n
	}

	// Step 3: purge old audit events.
	res, err = s.db.ExecContext(ctx,
		"DELETE FROM health_events WHERE created_at < ?",
		now.Add(-policy.EventRetention))
	if err != nil {
		return stats, fmt.Errorf("failed to delete old events: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		stats.EventsDeleted = int(n)
	}

	return stats, nil
}

// autoResolveCategory resolves every stale unacknowledged record in one
// category, one transaction per key so each resolution commits atomically
// with its audit event.
func (s *SQLiteStore) autoResolveCategory(ctx context.Context, category string, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT error_key FROM health_errors
		WHERE category = ? AND resolved_at IS NULL AND acknowledged = 0
		  AND first_seen < ?`,
		category, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to query stale %s errors: %w", category, err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan stale error key: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate stale %s errors: %w", category, err)
	}

	resolved := 0
	for _, key := range keys {
		if err := s.autoResolveKey(ctx, key, cutoff); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

// autoResolveKey resolves one stale key, re-checking the staleness
// predicate inside the transaction so a concurrent acknowledge, resolve or
// fresh detection between the scan and this write wins.
func (s *SQLiteStore) autoResolveKey(ctx context.Context, key string, cutoff time.Time) error {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE health_errors SET resolved_at = ?
		WHERE error_key = ? AND resolved_at IS NULL AND acknowledged = 0
		  AND first_seen < ?`,
		now, key, cutoff)
	if err != nil {
		return fmt.Errorf("failed to auto-resolve %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check auto-resolve result for %s: %w", key, err)
	}
	if affected == 0 {
		return nil
	}

	if err := s.appendEvent(ctx, tx, types.EventResolved, key, map[string]any{
		"reason": "auto-resolved: issue did not recur within retention window",
	}); err != nil {
		return err
	}
	return tx.Commit()
}
