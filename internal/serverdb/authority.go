package serverdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcus/carelog/internal/models"
	clsync "github.com/marcus/carelog/internal/sync"
)

var _ clsync.Authority = (*ServerDB)(nil)

const eventColumns = `id, caregiver_id, type, start_at, end_at, notes, version, updated_at, last_modified_by, deleted`

// Apply resolves a batch of operations and commits the resulting event
// changes, ledger entries, conflict records and counter in one transaction.
func (db *ServerDB) Apply(ctx context.Context, ops []models.Operation) (models.SyncResult, error) {
	db.applyMu.Lock()
	defer db.applyMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	st, err := loadState(ctx, tx, ops)
	if err != nil {
		return models.SyncResult{}, err
	}

	now := db.now()
	br := clsync.ApplyBatch(st, ops, now)

	for id := range br.Touched {
		if err := upsertEvent(ctx, tx, st.Events[id]); err != nil {
			return models.SyncResult{}, err
		}
	}
	for _, d := range br.Decisions {
		if d.Duplicate {
			continue
		}
		outcome := "conflict"
		if d.Applied {
			outcome = "applied"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO applied_operations (op_id, event_id, actor_id, kind, outcome, server_version, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.Op.ID, d.Op.EventID, d.Op.ActorID, string(d.Op.Kind), outcome, st.Version, formatTime(now),
		); err != nil {
			return models.SyncResult{}, fmt.Errorf("record operation %s: %w", d.Op.ID, err)
		}
	}
	for _, d := range br.Decisions {
		if d.Duplicate || d.Conflict == nil {
			continue
		}
		if err := insertConflict(ctx, tx, *d.Conflict); err != nil {
			return models.SyncResult{}, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE server_state SET version = ? WHERE id = 1`, st.Version); err != nil {
		return models.SyncResult{}, fmt.Errorf("update counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.SyncResult{}, fmt.Errorf("commit: %w", err)
	}

	slog.Debug("batch applied",
		"ops", len(ops),
		"applied", len(br.Result.Applied),
		"conflicts", len(br.Result.Conflicts),
		"duplicates", len(br.Result.Duplicates),
		"version", st.Version)
	return br.Result, nil
}

// loadState reads only what the batch can touch: the referenced events,
// ledger entries for the batch's operation ids and the counter.
func loadState(ctx context.Context, tx *sql.Tx, ops []models.Operation) (*clsync.State, error) {
	st := clsync.NewState()
	if err := tx.QueryRowContext(ctx, `SELECT version FROM server_state WHERE id = 1`).Scan(&st.Version); err != nil {
		return nil, fmt.Errorf("read counter: %w", err)
	}
	if len(ops) == 0 {
		return st, nil
	}

	eventIDs := make([]any, 0, len(ops))
	opIDs := make([]any, 0, len(ops))
	seen := make(map[string]bool)
	for _, op := range ops {
		if !seen[op.EventID] {
			seen[op.EventID] = true
			eventIDs = append(eventIDs, op.EventID)
		}
		opIDs = append(opIDs, op.ID)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id IN (`+placeholders(len(eventIDs))+`)`, eventIDs...)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		st.Events[ev.ID] = &ev
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// A rejected or contested operation keeps its conflict so a resubmission
	// can report it again.
	ledger, err := tx.QueryContext(ctx, `
		SELECT a.op_id, c.event_id, c.actor_id, c.fields, c.winner, c.reason, c.resolved_at
		FROM applied_operations a
		LEFT JOIN conflicts c ON c.operation_id = a.op_id
		WHERE a.op_id IN (`+placeholders(len(opIDs))+`)`, opIDs...)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer ledger.Close()
	for ledger.Next() {
		var id string
		var eventID, actorID, fields, winner, reason, resolved sql.NullString
		if err := ledger.Scan(&id, &eventID, &actorID, &fields, &winner, &reason, &resolved); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		if !reason.Valid {
			st.Seen[id] = nil
			continue
		}
		c := &models.ConflictRecord{
			EventID:     eventID.String,
			OperationID: id,
			ActorID:     actorID.String,
			Winner:      models.Winner(winner.String),
			Reason:      reason.String,
		}
		if fields.String != "" {
			c.Fields = strings.Split(fields.String, ",")
		}
		if c.ResolvedAt, err = parseTime(resolved.String); err != nil {
			return nil, fmt.Errorf("ledger %s resolved_at: %w", id, err)
		}
		st.Seen[id] = c
	}
	return st, ledger.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (models.Event, error) {
	var ev models.Event
	var typ, start, updated string
	var end sql.NullString
	var deleted int
	if err := r.Scan(&ev.ID, &ev.CaregiverID, &typ, &start, &end, &ev.Notes,
		&ev.Version, &updated, &ev.LastModifiedBy, &deleted); err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}
	ev.Type = models.EventType(typ)
	ev.Deleted = deleted != 0

	var err error
	if ev.Start, err = parseTime(start); err != nil {
		return ev, fmt.Errorf("event %s start: %w", ev.ID, err)
	}
	if ev.UpdatedAt, err = parseTime(updated); err != nil {
		return ev, fmt.Errorf("event %s updated_at: %w", ev.ID, err)
	}
	if end.Valid && end.String != "" {
		t, err := parseTime(end.String)
		if err != nil {
			return ev, fmt.Errorf("event %s end: %w", ev.ID, err)
		}
		ev.End = &t
	}
	return ev, nil
}

func upsertEvent(ctx context.Context, tx *sql.Tx, ev *models.Event) error {
	var end any
	if ev.End != nil {
		end = formatTime(*ev.End)
	}
	deleted := 0
	if ev.Deleted {
		deleted = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			caregiver_id = excluded.caregiver_id,
			type = excluded.type,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			notes = excluded.notes,
			version = excluded.version,
			updated_at = excluded.updated_at,
			last_modified_by = excluded.last_modified_by,
			deleted = excluded.deleted`,
		ev.ID, ev.CaregiverID, string(ev.Type), formatTime(ev.Start), end, ev.Notes,
		ev.Version, formatTime(ev.UpdatedAt), ev.LastModifiedBy, deleted,
	)
	if err != nil {
		return fmt.Errorf("save event %s: %w", ev.ID, err)
	}
	return nil
}

// State returns every live event, every tombstone and the counter.
func (db *ServerDB) State(ctx context.Context) (models.ServerState, error) {
	var state models.ServerState
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return state, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT version FROM server_state WHERE id = 1`).Scan(&state.Version); err != nil {
		return state, fmt.Errorf("read counter: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY start_at, id`)
	if err != nil {
		return state, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	state.Events = []models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return state, err
		}
		if ev.Deleted {
			state.Tombstones = append(state.Tombstones, ev)
		} else {
			state.Events = append(state.Events, ev)
		}
	}
	return state, rows.Err()
}

// Event returns one event, tombstoned or not, or nil if it does not exist.
func (db *ServerDB) Event(ctx context.Context, id string) (*models.Event, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// Reset wipes every event, ledger entry, conflict and cursor and sets the
// counter back to zero.
func (db *ServerDB) Reset(ctx context.Context) error {
	db.applyMu.Lock()
	defer db.applyMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM events`,
		`DELETE FROM applied_operations`,
		`DELETE FROM conflicts`,
		`DELETE FROM device_cursors`,
		`UPDATE server_state SET version = 0 WHERE id = 1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Info("authority reset")
	return nil
}

// Version returns the current authoritative counter.
func (db *ServerDB) Version(ctx context.Context) (int64, error) {
	var v int64
	if err := db.conn.QueryRowContext(ctx, `SELECT version FROM server_state WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return v, nil
}
