package serverdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DeviceCursor tracks the last counter value a device has seen.
type DeviceCursor struct {
	DeviceID    string     `json:"device_id"`
	LastVersion int64      `json:"last_version"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
}

// UpsertDeviceCursor records that deviceID has synced up to version.
func (db *ServerDB) UpsertDeviceCursor(ctx context.Context, deviceID string, version int64) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO device_cursors (device_id, last_version, last_sync_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id)
		DO UPDATE SET last_version = excluded.last_version, last_sync_at = excluded.last_sync_at
	`, deviceID, version, formatTime(db.now()))
	if err != nil {
		return fmt.Errorf("upsert device cursor: %w", err)
	}
	return nil
}

// GetDeviceCursor returns the cursor for deviceID, or nil if not found.
func (db *ServerDB) GetDeviceCursor(ctx context.Context, deviceID string) (*DeviceCursor, error) {
	c := &DeviceCursor{}
	var last sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT device_id, last_version, last_sync_at FROM device_cursors WHERE device_id = ?`,
		deviceID,
	).Scan(&c.DeviceID, &c.LastVersion, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device cursor: %w", err)
	}
	if last.Valid {
		t, err := parseTime(last.String)
		if err != nil {
			return nil, fmt.Errorf("device cursor time: %w", err)
		}
		c.LastSyncAt = &t
	}
	return c, nil
}

// ListDeviceCursors returns every known device ordered by id.
func (db *ServerDB) ListDeviceCursors(ctx context.Context) ([]DeviceCursor, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT device_id, last_version, last_sync_at FROM device_cursors ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list device cursors: %w", err)
	}
	defer rows.Close()

	var out []DeviceCursor
	for rows.Next() {
		var c DeviceCursor
		var last sql.NullString
		if err := rows.Scan(&c.DeviceID, &c.LastVersion, &last); err != nil {
			return nil, fmt.Errorf("scan device cursor: %w", err)
		}
		if last.Valid {
			t, err := parseTime(last.String)
			if err != nil {
				return nil, fmt.Errorf("device cursor time: %w", err)
			}
			c.LastSyncAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
