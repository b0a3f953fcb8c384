package serverdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/marcus/carelog/internal/models"
)

func insertConflict(ctx context.Context, tx *sql.Tx, c models.ConflictRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conflicts (event_id, operation_id, actor_id, fields, winner, reason, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.EventID, c.OperationID, c.ActorID, strings.Join(c.Fields, ","),
		string(c.Winner), c.Reason, formatTime(c.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

// ConflictFilter narrows a conflict audit query. Empty fields match everything.
type ConflictFilter struct {
	EventID string
	ActorID string
	Limit   int
}

// QueryConflicts returns audited conflict records, newest first.
func (db *ServerDB) QueryConflicts(ctx context.Context, f ConflictFilter) ([]models.ConflictRecord, error) {
	query := "SELECT event_id, operation_id, actor_id, fields, winner, reason, resolved_at FROM conflicts"
	var conditions []string
	var args []any

	if f.EventID != "" {
		conditions = append(conditions, "event_id = ?")
		args = append(args, f.EventID)
	}
	if f.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	var out []models.ConflictRecord
	for rows.Next() {
		var c models.ConflictRecord
		var fields, winner, resolved string
		if err := rows.Scan(&c.EventID, &c.OperationID, &c.ActorID, &fields, &winner, &c.Reason, &resolved); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		if fields != "" {
			c.Fields = strings.Split(fields, ",")
		}
		c.Winner = models.Winner(winner)
		if c.ResolvedAt, err = parseTime(resolved); err != nil {
			return nil, fmt.Errorf("conflict resolved_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
