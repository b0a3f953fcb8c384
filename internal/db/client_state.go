package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	keyServerVersion    = "server_version"
	keyCurrentCaregiver = "current_caregiver"
	keyOffline          = "offline"
	keyLastSyncAt       = "last_sync_at"
)

func (db *DB) getState(key string) (string, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM client_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

func (db *DB) setState(key, value string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`INSERT OR REPLACE INTO client_state (key, value) VALUES (?, ?)`, key, value)
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		return nil
	})
}

// ServerVersion returns the last authoritative counter this client saw.
func (db *DB) ServerVersion() (int64, error) {
	v, err := db.getState(keyServerVersion)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// SetServerVersion records the authoritative counter.
func (db *DB) SetServerVersion(version int64) error {
	return db.setState(keyServerVersion, strconv.FormatInt(version, 10))
}

// Offline reports the persisted network mode.
func (db *DB) Offline() (bool, error) {
	v, err := db.getState(keyOffline)
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// SetOffline persists the network mode.
func (db *DB) SetOffline(offline bool) error {
	v := "0"
	if offline {
		v = "1"
	}
	return db.setState(keyOffline, v)
}

// LastSyncAt returns when the last successful sync finished, or nil.
func (db *DB) LastSyncAt() (*time.Time, error) {
	v, err := db.getState(keyLastSyncAt)
	if err != nil || v == "" {
		return nil, err
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetLastSyncAt records a successful sync.
func (db *DB) SetLastSyncAt(t time.Time) error {
	return db.setState(keyLastSyncAt, formatTime(t))
}
