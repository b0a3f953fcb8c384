package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/marcus/carelog/internal/models"
)

const eventColumns = `id, caregiver_id, type, start_at, end_at, notes, version, updated_at, last_modified_by, deleted`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (models.Event, error) {
	var ev models.Event
	var typ, start, updated string
	var end sql.NullString
	var deleted int
	if err := s.Scan(&ev.ID, &ev.CaregiverID, &typ, &start, &end, &ev.Notes,
		&ev.Version, &updated, &ev.LastModifiedBy, &deleted); err != nil {
		return ev, err
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

// Events returns the cached event list, tombstones included, in stored order.
func (db *DB) Events() ([]models.Event, error) {
	rows, err := db.conn.Query(`SELECT ` + eventColumns + ` FROM events ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveEvents replaces the cached event list.
func (db *DB) SaveEvents(events []models.Event) error {
	return db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM events`); err != nil {
			return fmt.Errorf("clear events: %w", err)
		}
		stmt, err := tx.Prepare(`INSERT INTO events (position, ` + eventColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, ev := range events {
			var end any
			if ev.End != nil {
				end = formatTime(*ev.End)
			}
			deleted := 0
			if ev.Deleted {
				deleted = 1
			}
			if _, err := stmt.Exec(i, ev.ID, ev.CaregiverID, string(ev.Type), formatTime(ev.Start), end,
				ev.Notes, ev.Version, formatTime(ev.UpdatedAt), ev.LastModifiedBy, deleted); err != nil {
				return fmt.Errorf("save event %s: %w", ev.ID, err)
			}
		}
		return tx.Commit()
	})
}

// GetEvent returns a cached event by id, or nil if it is not cached.
func (db *DB) GetEvent(id string) (*models.Event, error) {
	row := db.conn.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &ev, nil
}

// FindEvent resolves a full id or a unique id prefix.
func (db *DB) FindEvent(idOrPrefix string) (*models.Event, error) {
	if ev, err := db.GetEvent(idOrPrefix); ev != nil || err != nil {
		return ev, err
	}
	rows, err := db.conn.Query(`SELECT `+eventColumns+` FROM events WHERE id LIKE ? || '%' LIMIT 2`, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	defer rows.Close()
	var matches []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	}
	return nil, fmt.Errorf("event id %q is ambiguous", idOrPrefix)
}
