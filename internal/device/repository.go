package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByRoom retrieves all devices in a room (exact match).
	ListByRoom(ctx context.Context, room string) ([]Device, error)

	// ListByType retrieves all devices of a type.
	ListByType(ctx context.Context, t DeviceType) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by ID. Historical points cascade.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateProperties replaces only the properties of a device.
	// This is optimised for the frequent command and telemetry writes.
	UpdateProperties(ctx context.Context, id string, properties map[string]Property) error

	// UpdateStatus updates the status and last seen timestamp.
	UpdateStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, type, room, status, last_seen,
		properties, controls, thresholds, capabilities, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`
	return r.queryDevices(ctx, query)
}

// ListByRoom retrieves all devices in a room.
// SQLite string comparison is case-sensitive by default, matching the
// registry's exact-match semantics.
func (r *SQLiteRepository) ListByRoom(ctx context.Context, room string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE room = ? ORDER BY name`
	return r.queryDevices(ctx, query, room)
}

// ListByType retrieves all devices of a type.
func (r *SQLiteRepository) ListByType(ctx context.Context, t DeviceType) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE type = ? ORDER BY name`
	return r.queryDevices(ctx, query, string(t))
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	propsJSON, controlsJSON, thresholdsJSON, capsJSON, err := marshalDeviceFields(device)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, name, type, room, status, last_seen,
			properties, controls, thresholds, capabilities, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		string(device.Type),
		device.Room,
		string(device.Status),
		nullableTime(device.LastSeen),
		propsJSON,
		controlsJSON,
		thresholdsJSON,
		capsJSON,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	propsJSON, controlsJSON, thresholdsJSON, capsJSON, err := marshalDeviceFields(device)
	if err != nil {
		return err
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, room = ?, status = ?, last_seen = ?,
			properties = ?, controls = ?, thresholds = ?, capabilities = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.Name,
		device.Room,
		string(device.Status),
		nullableTime(device.LastSeen),
		propsJSON,
		controlsJSON,
		thresholdsJSON,
		capsJSON,
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	return checkRowsAffected(result)
}

// Delete removes a device by ID.
// ON DELETE CASCADE on historical_data removes the device's points.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return checkRowsAffected(result)
}

// UpdateProperties replaces the properties JSON of a device.
func (r *SQLiteRepository) UpdateProperties(ctx context.Context, id string, properties map[string]Property) error {
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("marshalling properties: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET properties = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(propsJSON),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device properties: %w", err)
	}

	return checkRowsAffected(result)
}

// UpdateStatus updates the status and last seen timestamp.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, lastSeen time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	return checkRowsAffected(result)
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var lastSeen sql.NullString
	var propsJSON, controlsJSON, capsJSON string
	var thresholdsJSON sql.NullString
	var deviceType, status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&deviceType,
		&d.Room,
		&status,
		&lastSeen,
		&propsJSON,
		&controlsJSON,
		&thresholdsJSON,
		&capsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = DeviceType(deviceType)
	d.Status = Status(status)

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			d.LastSeen = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(propsJSON), &d.Properties); err != nil {
		return nil, fmt.Errorf("unmarshalling properties: %w", err)
	}
	if d.Properties == nil {
		d.Properties = make(map[string]Property)
	}

	if err := json.Unmarshal([]byte(controlsJSON), &d.Controls); err != nil {
		return nil, fmt.Errorf("unmarshalling controls: %w", err)
	}

	if thresholdsJSON.Valid && thresholdsJSON.String != "" {
		if err := json.Unmarshal([]byte(thresholdsJSON.String), &d.Thresholds); err != nil {
			return nil, fmt.Errorf("unmarshalling thresholds: %w", err)
		}
	}

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}

	return &d, nil
}

// marshalDeviceFields marshals the JSON-typed columns of a device.
func marshalDeviceFields(device *Device) (props, controls, thresholds, caps string, err error) {
	propsJSON, err := json.Marshal(device.Properties)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling properties: %w", err)
	}

	controlsJSON, err := json.Marshal(device.Controls)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling controls: %w", err)
	}

	thresholdsJSON, err := json.Marshal(device.Thresholds)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling thresholds: %w", err)
	}

	capsJSON, err := json.Marshal(device.Capabilities)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling capabilities: %w", err)
	}

	return string(propsJSON), string(controlsJSON), string(thresholdsJSON), string(capsJSON), nil
}

// checkRowsAffected maps a zero-row UPDATE/DELETE to ErrDeviceNotFound.
func checkRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
