package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	dataDir = ".carelog"
	dbFile  = "carelog.db"
)

// ErrNotInitialized is returned by Open when no local database exists.
var ErrNotInitialized = errors.New("database not found: run 'carelog init' first")

// DB is the client's local store: the event cache, the pending operation
// queue, the conflict log, caregivers and sync bookkeeping.
type DB struct {
	conn    *sql.DB
	baseDir string
	rebuilt bool
}

// Path returns the database file location for baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, dataDir, dbFile)
}

// Open opens an existing local database. A database that SQLite reports as
// corrupt, that fails the integrity check or that carries an unknown schema
// version is discarded and rebuilt empty; Rebuilt reports when that
// happened. Any other failure is returned and the file is left alone.
func Open(baseDir string) (*DB, error) {
	if _, err := os.Stat(Path(baseDir)); os.IsNotExist(err) {
		return nil, ErrNotInitialized
	}

	db, err := openConn(baseDir)
	if err != nil {
		if !isCorrupt(err) {
			return nil, err
		}
		slog.Warn("local database unreadable, rebuilding", "err", err, "path", Path(baseDir))
	} else {
		reason, err := db.check()
		if err != nil {
			db.conn.Close()
			return nil, err
		}
		if reason == "" {
			return db, nil
		}
		slog.Warn("local database unreadable, rebuilding", "reason", reason, "path", Path(baseDir))
		db.conn.Close()
	}

	if err := removeFiles(baseDir); err != nil {
		return nil, err
	}
	db, err = Initialize(baseDir)
	if err != nil {
		return nil, err
	}
	db.rebuilt = true
	return db, nil
}

// Initialize creates the database if needed and applies the schema.
func Initialize(baseDir string) (*DB, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, dataDir), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := open(baseDir)
	if err != nil {
		return nil, err
	}
	if _, err := db.conn.Exec(schema); err != nil {
		db.conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if db.schemaVersion() == 0 {
		if _, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
			fmt.Sprintf("%d", SchemaVersion)); err != nil {
			db.conn.Close()
			return nil, fmt.Errorf("set schema version: %w", err)
		}
	}
	return db, nil
}

func open(baseDir string) (*DB, error) {
	conn, err := sql.Open("sqlite", Path(baseDir))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	return &DB{conn: conn, baseDir: baseDir}, nil
}

// check returns a non-empty reason when the database cannot be trusted.
// Errors that say nothing about the file itself, a busy database for one,
// are returned instead.
func (db *DB) check() (string, error) {
	var result string
	if err := db.conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		if isCorrupt(err) {
			return "integrity check failed: " + err.Error(), nil
		}
		return "", fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return "integrity check: " + result, nil
	}
	v, err := db.readSchemaVersion()
	if err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	if v != SchemaVersion {
		return fmt.Sprintf("schema version %d, want %d", v, SchemaVersion), nil
	}
	return "", nil
}

func (db *DB) schemaVersion() int {
	v, _ := db.readSchemaVersion()
	return v
}

// readSchemaVersion returns 0 when no version is recorded. Only a busy or
// locked database is an error.
func (db *DB) readSchemaVersion() (int, error) {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err != nil {
		if isBusy(err) {
			return 0, err
		}
		return 0, nil
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v, nil
}

// openConn is swapped in tests to simulate open failures.
var openConn = open

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0, false
	}
	return se.Code() & 0xff, true
}

// isCorrupt reports whether err says the file is not a usable database.
func isCorrupt(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_CORRUPT || code == sqlite3.SQLITE_NOTADB)
}

func isBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED)
}

func removeFiles(baseDir string) error {
	p := Path(baseDir)
	for _, f := range []string{p, p + "-wal", p + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", f, err)
		}
	}
	return nil
}

// Rebuilt reports whether Open discarded an unreadable database.
func (db *DB) Rebuilt() bool {
	return db.rebuilt
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// BaseDir returns the base directory for the database
func (db *DB) BaseDir() string {
	return db.baseDir
}

// Reset wipes every table but keeps caregivers so the device stays usable.
func (db *DB) Reset() error {
	return db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, stmt := range []string{
			`DELETE FROM events`,
			`DELETE FROM pending_operations`,
			`DELETE FROM conflicts`,
			`DELETE FROM client_state WHERE key IN ('server_version', 'last_sync_at')`,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
		}
		return tx.Commit()
	})
}

// withWriteLock runs fn while holding the cross-process write lock.
func (db *DB) withWriteLock(fn func() error) error {
	l := newFileLock(db.baseDir)
	if err := l.lock(lockTimeout); err != nil {
		return err
	}
	defer l.unlock()
	return fn()
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
