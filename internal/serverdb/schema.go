package serverdb

// ServerSchemaVersion is the current server database schema version
const ServerSchemaVersion = 2

const serverSchema = `
-- Canonical events, tombstones included
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    caregiver_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL DEFAULT '',
    start_at TEXT NOT NULL DEFAULT '',
    end_at TEXT,
    notes TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 1,
    updated_at TEXT NOT NULL,
    last_modified_by TEXT NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);

-- Every operation the authority has resolved, applied or rejected
CREATE TABLE IF NOT EXISTS applied_operations (
    op_id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    outcome TEXT NOT NULL CHECK(outcome IN ('applied', 'conflict')),
    server_version INTEGER NOT NULL,
    resolved_at TEXT NOT NULL
);

-- Single-row authoritative counter
CREATE TABLE IF NOT EXISTS server_state (
    id INTEGER PRIMARY KEY CHECK(id = 1),
    version INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO server_state (id, version) VALUES (1, 0);

-- Per-device sync position
CREATE TABLE IF NOT EXISTS device_cursors (
    device_id TEXT PRIMARY KEY,
    last_version INTEGER NOT NULL DEFAULT 0,
    last_sync_at TEXT
);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_applied_operations_event ON applied_operations(event_id);
CREATE INDEX IF NOT EXISTS idx_events_deleted ON events(deleted);
`

// Migration defines a server database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all server database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add conflicts audit table",
		SQL: `CREATE TABLE IF NOT EXISTS conflicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			operation_id TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			fields TEXT NOT NULL DEFAULT '',
			winner TEXT NOT NULL CHECK(winner IN ('local', 'remote')),
			reason TEXT NOT NULL,
			resolved_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conflicts_event ON conflicts(event_id);
		CREATE INDEX IF NOT EXISTS idx_conflicts_actor ON conflicts(actor_id);`,
	},
}
