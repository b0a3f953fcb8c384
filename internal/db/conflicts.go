package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/marcus/carelog/internal/models"
)

// AppendConflicts adds records to the durable conflict log. A record whose
// operation is already logged is skipped, so a replayed batch result does
// not log the same conflict twice.
func (db *DB) AppendConflicts(records []models.ConflictRecord) error {
	if len(records) == 0 {
		return nil
	}
	return db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, c := range records {
			if _, err := tx.Exec(`
				INSERT INTO conflicts (event_id, operation_id, actor_id, fields, winner, reason, resolved_at)
				SELECT ?, ?, ?, ?, ?, ?, ?
				WHERE NOT EXISTS (SELECT 1 FROM conflicts WHERE operation_id = ?)`,
				c.EventID, c.OperationID, c.ActorID, strings.Join(c.Fields, ","),
				string(c.Winner), c.Reason, formatTime(c.ResolvedAt), c.OperationID); err != nil {
				return fmt.Errorf("append conflict: %w", err)
			}
		}
		return tx.Commit()
	})
}

// RecentConflicts returns logged conflicts, newest first. If since is
// non-nil, only conflicts resolved at or after it are returned.
func (db *DB) RecentConflicts(limit int, since *time.Time) ([]models.ConflictRecord, error) {
	query := `SELECT event_id, operation_id, actor_id, fields, winner, reason, resolved_at FROM conflicts`
	var args []any
	if since != nil {
		query += ` WHERE resolved_at >= ?`
		args = append(args, formatTime(*since))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return scanConflicts(rows)
}

// ConflictsForEvent returns every logged conflict for one event, oldest first.
func (db *DB) ConflictsForEvent(eventID string) ([]models.ConflictRecord, error) {
	rows, err := db.conn.Query(`
		SELECT event_id, operation_id, actor_id, fields, winner, reason, resolved_at
		FROM conflicts WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return scanConflicts(rows)
}

func scanConflicts(rows *sql.Rows) ([]models.ConflictRecord, error) {
	defer rows.Close()
	var out []models.ConflictRecord
	for rows.Next() {
		var c models.ConflictRecord
		var fields, winner, resolved string
		if err := rows.Scan(&c.EventID, &c.OperationID, &c.ActorID, &fields, &winner, &c.Reason, &resolved); err != nil {
			return nil, err
		}
		if fields != "" {
			c.Fields = strings.Split(fields, ",")
		}
		c.Winner = models.Winner(winner)
		t, err := parseTime(resolved)
		if err != nil {
			return nil, err
		}
		c.ResolvedAt = t
		out = append(out, c)
	}
	return out, rows.Err()
}
