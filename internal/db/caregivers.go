package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/carelog/internal/models"
)

// DefaultCaregivers are seeded by init.
var DefaultCaregivers = []string{"Parent", "Partner", "Nanny"}

// AddCaregiver creates a caregiver with a fresh id.
func (db *DB) AddCaregiver(name, deviceID string) (*models.Caregiver, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("caregiver name is required")
	}
	c := &models.Caregiver{ID: uuid.NewString(), Name: name, DeviceID: deviceID}
	err := db.withWriteLock(func() error {
		_, err := db.conn.Exec(`INSERT INTO caregivers (id, name, device_id, created_at) VALUES (?, ?, ?, ?)`,
			c.ID, c.Name, c.DeviceID, formatTime(time.Now()))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add caregiver %q: %w", name, err)
	}
	return c, nil
}

// ListCaregivers returns caregivers in creation order.
func (db *DB) ListCaregivers() ([]models.Caregiver, error) {
	rows, err := db.conn.Query(`SELECT id, name, device_id FROM caregivers ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list caregivers: %w", err)
	}
	defer rows.Close()
	var out []models.Caregiver
	for rows.Next() {
		var c models.Caregiver
		if err := rows.Scan(&c.ID, &c.Name, &c.DeviceID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindCaregiver looks a caregiver up by id or case-insensitive name.
func (db *DB) FindCaregiver(idOrName string) (*models.Caregiver, error) {
	var c models.Caregiver
	err := db.conn.QueryRow(`SELECT id, name, device_id FROM caregivers WHERE id = ? OR lower(name) = lower(?)`,
		idOrName, idOrName).Scan(&c.ID, &c.Name, &c.DeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find caregiver: %w", err)
	}
	return &c, nil
}

// SeedCaregivers adds the default caregivers when none exist and selects
// the first one. It returns the caregivers that were created.
func (db *DB) SeedCaregivers(deviceID string) ([]models.Caregiver, error) {
	existing, err := db.ListCaregivers()
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}
	var created []models.Caregiver
	for _, name := range DefaultCaregivers {
		c, err := db.AddCaregiver(name, deviceID)
		if err != nil {
			return created, err
		}
		created = append(created, *c)
	}
	if err := db.SetCurrentCaregiver(created[0].ID); err != nil {
		return created, err
	}
	return created, nil
}

// CurrentCaregiver returns the selected caregiver, or nil if none is set.
func (db *DB) CurrentCaregiver() (*models.Caregiver, error) {
	id, err := db.getState(keyCurrentCaregiver)
	if err != nil || id == "" {
		return nil, err
	}
	return db.FindCaregiver(id)
}

// SetCurrentCaregiver selects the caregiver that originates new operations.
func (db *DB) SetCurrentCaregiver(id string) error {
	return db.setState(keyCurrentCaregiver, id)
}
