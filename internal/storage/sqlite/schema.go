package sqlite

const schema = `
-- Error records: one row per dedupe key
CREATE TABLE IF NOT EXISTS health_errors (
    error_key TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    severity TEXT NOT NULL CHECK(severity IN ('WARNING', 'CRITICAL')),
    reason TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '{}',
    first_seen DATETIME NOT NULL,
    last_seen DATETIME NOT NULL,
    resolved_at DATETIME,
    acknowledged INTEGER NOT NULL DEFAULT 0,
    notification_sent INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_health_errors_category ON health_errors(category);
CREATE INDEX IF NOT EXISTS idx_health_errors_resolved ON health_errors(resolved_at);
CREATE INDEX IF NOT EXISTS idx_health_errors_first_seen ON health_errors(first_seen);

-- Audit trail: append-only, one row per record mutation
CREATE TABLE IF NOT EXISTS health_events (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL CHECK(event_type IN ('new', 'updated', 'escalated', 'resolved', 'acknowledged')),
    error_key TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_health_events_key ON health_events(error_key);
CREATE INDEX IF NOT EXISTS idx_health_events_created_at ON health_events(created_at);
`
