package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marcus/carelog/internal/models"
)

// PendingOperations returns queued operations in submission order.
func (db *DB) PendingOperations() ([]models.Operation, error) {
	rows, err := db.conn.Query(`SELECT payload FROM pending_operations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var op models.Operation
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			return nil, fmt.Errorf("decode pending operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// AppendOperation adds op to the tail of the queue.
func (db *DB) AppendOperation(op models.Operation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO pending_operations (op_id, event_id, kind, payload, queued_at)
			VALUES (?, ?, ?, ?, ?)`,
			op.ID, op.EventID, string(op.Kind), string(payload), formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("queue operation: %w", err)
		}
		return nil
	})
}

// RemoveOperations drops the given operation ids from the queue.
func (db *DB) RemoveOperations(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return db.withWriteLock(func() error {
		if _, err := db.conn.Exec(`DELETE FROM pending_operations WHERE op_id IN (`+marks+`)`, args...); err != nil {
			return fmt.Errorf("remove operations: %w", err)
		}
		return nil
	})
}

// ClearPendingOperations empties the queue.
func (db *DB) ClearPendingOperations() error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`DELETE FROM pending_operations`)
		return err
	})
}

// PendingCount returns the queue length.
func (db *DB) PendingCount() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM pending_operations`).Scan(&n)
	return n, err
}
