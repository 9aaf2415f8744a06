package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MacRimi/proxmon/internal/types"
)

// RecordError upserts a detection for key. The whole decision runs in one
// transaction so concurrent detections of the same key linearize:
//
//   - acknowledged record resolved within the immunity window: suppressed,
//     no event, outcome skipped_acknowledged.
//   - existing unresolved, unacknowledged record: refresh last_seen,
//     severity, reason and details; WARNING -> CRITICAL emits an escalated
//     event that needs notification, otherwise an updated event.
//   - existing resolved, unacknowledged record: the fault came back after
//     resolution; reset to a fresh active record and emit new.
//   - no record: insert and emit new (needs notification).
func (s *SQLiteStore) RecordError(ctx context.Context, key, category string, severity types.Severity, reason string, details map[string]any) (*types.RecordResult, error) {
	rec := &types.ErrorRecord{
		ErrorKey: key,
		Category: category,
		Severity: severity,
		Reason:   reason,
		Details:  details,
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid error record: %w", err)
	}

	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.scanRecord(tx.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM health_errors WHERE error_key = ?", key))
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query error record %s: %w", key, err)
	}

	result := &types.RecordResult{}
	switch {
	case existing == nil:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO health_errors (error_key, category, severity, reason, details,
			                           first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key, category, severity, reason, detailsJSON, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert error record %s: %w", key, err)
		}
		result.Outcome = types.OutcomeNew
		result.NeedsNotification = true
		if err := s.appendEvent(ctx, tx, types.EventNew, key, map[string]any{
			"category": category, "severity": string(severity), "reason": reason,
		}); err != nil {
			return nil, err
		}

	case existing.Acknowledged:
		// Acknowledged implies resolved; suppress while inside the
		// immunity window.
		if existing.ResolvedAt != nil && now.Sub(*existing.ResolvedAt) < s.ackImmunity {
			result.Outcome = types.OutcomeSkippedAcknowledged
			return result, tx.Commit()
		}
		// Immunity expired: the fault is back, start a fresh record.
		if err := s.resetRecord(ctx, tx, key, category, severity, reason, detailsJSON, now); err != nil {
			return nil, err
		}
		result.Outcome = types.OutcomeNew
		result.NeedsNotification = true
		if err := s.appendEvent(ctx, tx, types.EventNew, key, map[string]any{
			"category": category, "severity": string(severity), "reason": reason,
		}); err != nil {
			return nil, err
		}

	case existing.ResolvedAt != nil:
		// Previously resolved without acknowledgement; reactivate fresh.
		if err := s.resetRecord(ctx, tx, key, category, severity, reason, detailsJSON, now); err != nil {
			return nil, err
		}
		result.Outcome = types.OutcomeNew
		result.NeedsNotification = true
		if err := s.appendEvent(ctx, tx, types.EventNew, key, map[string]any{
			"category": category, "severity": string(severity), "reason": reason,
		}); err != nil {
			return nil, err
		}

	default:
		escalated := existing.Severity == types.SeverityWarning && severity == types.SeverityCritical
		_, err = tx.ExecContext(ctx, `
			UPDATE health_errors
			SET last_seen = ?, severity = ?, reason = ?, details = ?
			WHERE error_key = ?`,
			now, severity, reason, detailsJSON, key)
		if err != nil {
			return nil, fmt.Errorf("failed to update error record %s: %w", key, err)
		}

		if escalated {
			result.Outcome = types.OutcomeEscalated
			result.NeedsNotification = true
			err = s.appendEvent(ctx, tx, types.EventEscalated, key, map[string]any{
				"from": string(existing.Severity), "to": string(severity), "reason": reason,
			})
		} else {
			result.Outcome = types.OutcomeUpdated
			err = s.appendEvent(ctx, tx, types.EventUpdated, key, map[string]any{
				"severity": string(severity), "reason": reason,
			})
		}
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit record for %s: %w", key, err)
	}
	return result, nil
}

// resetRecord overwrites an existing row with a fresh active record.
func (s *SQLiteStore) resetRecord(ctx context.Context, tx *sql.Tx, key, category string, severity types.Severity, reason, detailsJSON string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE health_errors
		SET category = ?, severity = ?, reason = ?, details = ?,
		    first_seen = ?, last_seen = ?, resolved_at = NULL,
		    acknowledged = 0, notification_sent = 0
		WHERE error_key = ?`,
		category, severity, reason, detailsJSON, now, now, key)
	if err != nil {
		return fmt.Errorf("failed to reset error record %s: %w", key, err)
	}
	return nil
}

// ResolveError marks the record resolved if it is currently unresolved.
// Idempotent: a resolved or missing key is a no-op and emits nothing.
func (s *SQLiteStore) ResolveError(ctx context.Context, key, reason string) error {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE health_errors SET resolved_at = ?
		WHERE error_key = ? AND resolved_at IS NULL`,
		now, key)
	if err != nil {
		return fmt.Errorf("failed to resolve error %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check resolve result for %s: %w", key, err)
	}
	if affected == 0 {
		return nil
	}

	if err := s.appendEvent(ctx, tx, types.EventResolved, key, map[string]any{
		"reason": reason,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AcknowledgeError marks the record acknowledged and resolved
// unconditionally: it disappears from the active list and RecordError
// suppresses the key for the immunity window. Acknowledging an already
// acknowledged key is a no-op.
func (s *SQLiteStore) AcknowledgeError(ctx context.Context, key string) error {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE health_errors SET acknowledged = 1, resolved_at = ?
		WHERE error_key = ? AND acknowledged = 0`,
		now, key)
	if err != nil {
		return fmt.Errorf("failed to acknowledge error %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check acknowledge result for %s: %w", key, err)
	}
	if affected == 0 {
		// Missing or already acknowledged: idempotent success.
		return nil
	}

	if err := s.appendEvent(ctx, tx, types.EventAcknowledged, key, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkNotified flips notification_sent after external delivery.
func (s *SQLiteStore) MarkNotified(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE health_errors SET notification_sent = 1 WHERE error_key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to mark %s notified: %w", key, err)
	}
	return nil
}

// GetError fetches one record by key, resolved or not.
func (s *SQLiteStore) GetError(ctx context.Context, key string) (*types.ErrorRecord, error) {
	rec, err := s.scanRecord(s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM health_errors WHERE error_key = ?", key))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query error record %s: %w", key, err)
	}
	return rec, nil
}

// GetActiveErrors lists unresolved records ordered by severity descending,
// then most recently seen first. Category "" means all categories.
func (s *SQLiteStore) GetActiveErrors(ctx context.Context, category string) ([]*types.ErrorRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM health_errors
		WHERE resolved_at IS NULL`
	args := []any{}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += `
		ORDER BY CASE severity WHEN 'CRITICAL' THEN 0 ELSE 1 END,
		         last_seen DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active errors: %w", err)
	}
	defer rows.Close()

	var records []*types.ErrorRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate active errors: %w", err)
	}
	return records, nil
}
