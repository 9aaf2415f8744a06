package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MacRimi/proxmon/internal/types"
)

// appendEvent writes one audit row inside the caller's transaction so the
// event commits atomically with the record mutation it describes.
func (s *SQLiteStore) appendEvent(ctx context.Context, tx *sql.Tx, eventType types.EventType, key string, data map[string]any) error {
	dataJSON, err := marshalDetails(data)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO health_events (id, event_type, error_key, created_at, data)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), eventType, key, s.now().UTC(), dataJSON)
	if err != nil {
		return fmt.Errorf("failed to append %s event for %s: %w", eventType, key, err)
	}
	return nil
}

// GetRecentEvents returns the newest audit events, newest first.
func (s *SQLiteStore) GetRecentEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, error_key, created_at, data
		FROM health_events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var ev types.Event
		var data string
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.ErrorKey, &ev.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
				s.logger.Warn("dropping malformed event data", "event_id", ev.ID, "err", err)
			}
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
