package db

// SchemaVersion is the current local database schema version. A database
// recorded at any other version is treated as unreadable and rebuilt.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    caregiver_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL DEFAULT '',
    start_at TEXT NOT NULL DEFAULT '',
    end_at TEXT,
    notes TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT '',
    last_modified_by TEXT NOT NULL DEFAULT '',
    deleted INTEGER NOT NULL DEFAULT 0
);

-- Pending operations in submission order
CREATE TABLE IF NOT EXISTS pending_operations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    op_id TEXT UNIQUE NOT NULL,
    event_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    payload TEXT NOT NULL,
    queued_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL,
    operation_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    fields TEXT NOT NULL DEFAULT '',
    winner TEXT NOT NULL,
    reason TEXT NOT NULL,
    resolved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS caregivers (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

-- Key/value client state: server version, current caregiver, network mode
CREATE TABLE IF NOT EXISTS client_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conflicts_event ON conflicts(event_id);
CREATE INDEX IF NOT EXISTS idx_conflicts_operation ON conflicts(operation_id);
CREATE INDEX IF NOT EXISTS idx_pending_event ON pending_operations(event_id);
`
