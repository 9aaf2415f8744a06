// Package sqlite implements the durable error store on an embedded SQLite
// database. Every mutation runs in its own transaction so concurrent
// category checks and cleanup passes cannot lose updates.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MacRimi/proxmon/internal/types"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("error record not found")

// SQLiteStore implements the storage.Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// now is swappable for tests that need deterministic clocks.
	now func() time.Time

	// ackImmunity is the window during which an acknowledged key suppresses
	// re-insertion. Kept here rather than per-call so RecordError's contract
	// does not depend on the caller passing policy.
	ackImmunity time.Duration
}

// New creates a new SQLite store at path. The parent directory is created
// if needed. ":memory:" opens an in-memory database.
func New(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL mode for concurrent readers during the short write transactions
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The sqlite3 driver opens a new connection per query by default; an
	// in-memory database would vanish between them. Writes serialize per
	// connection anyway, so one connection is the simplest correct setting.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:          db,
		logger:      slog.Default().With("component", "storage"),
		now:         time.Now,
		ackImmunity: 24 * time.Hour,
	}, nil
}

// SetClock overrides the store's clock. Tests only.
func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

// SetAckImmunity overrides the acknowledged-key suppression window.
func (s *SQLiteStore) SetAckImmunity(d time.Duration) {
	if d > 0 {
		s.ackImmunity = d
	}
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// marshalDetails serializes a details map, tolerating nil.
func marshalDetails(details map[string]any) (string, error) {
	if details == nil {
		return "{}", nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to marshal details: %w", err)
	}
	return string(data), nil
}

// unmarshalDetails deserializes a details blob. A malformed blob is a
// config inconsistency: logged and dropped, never surfaced to the caller.
func (s *SQLiteStore) unmarshalDetails(key, blob string) map[string]any {
	if blob == "" || blob == "{}" {
		return nil
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(blob), &details); err != nil {
		s.logger.Warn("dropping malformed details blob", "error_key", key, "err", err)
		return nil
	}
	return details
}

// scanRecord reads one error record row.
func (s *SQLiteStore) scanRecord(row interface{ Scan(...any) error }) (*types.ErrorRecord, error) {
	var rec types.ErrorRecord
	var details string
	var resolvedAt sql.NullTime
	err := row.Scan(
		&rec.ErrorKey,
		&rec.Category,
		&rec.Severity,
		&rec.Reason,
		&details,
		&rec.FirstSeen,
		&rec.LastSeen,
		&resolvedAt,
		&rec.Acknowledged,
		&rec.NotificationSent,
	)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	rec.Details = s.unmarshalDetails(rec.ErrorKey, details)
	return &rec, nil
}

const recordColumns = `error_key, category, severity, reason, details,
       first_seen, last_seen, resolved_at, acknowledged, notification_sent`
