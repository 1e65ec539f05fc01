package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"hivebrain/internal/model"
)

// RegisterDevice upserts a device record and refreshes last_seen.
func (s *SQLiteBackend) RegisterDevice(ctx context.Context, d *model.DeviceContext) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if d == nil || d.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidArgument)
	}

	caps, err := marshalJSON(d.Capabilities, "[]")
	if err != nil {
		return err
	}
	meta, err := marshalJSON(d.Metadata, "{}")
	if err != nil {
		return err
	}

	lastSeen := d.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO devices
		(device_id, hardware_tier, capabilities, specialization, location, hostname, ip_address, last_seen, status, version, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, string(d.HardwareTier), caps, d.Specialization, d.Location,
		d.Hostname, d.IPAddress, formatTime(lastSeen), string(d.Status), d.Version, meta,
	)
	if err != nil {
		return fmt.Errorf("registering device %s: %w", d.DeviceID, err)
	}
	return nil
}

// GetDevice returns (nil, nil) when the device is unknown.
func (s *SQLiteBackend) GetDevice(ctx context.Context, deviceID string) (*model.DeviceContext, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT device_id, hardware_tier, capabilities, specialization, location, hostname, ip_address, last_seen, status, version, metadata
		FROM devices WHERE device_id = ?`, deviceID)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// ListDevices returns all registered devices, most recently seen first.
func (s *SQLiteBackend) ListDevices(ctx context.Context) ([]*model.DeviceContext, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT device_id, hardware_tier, capabilities, specialization, location, hostname, ip_address, last_seen, status, version, metadata
		FROM devices ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var out []*model.DeviceContext
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) GetDeviceCount(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return count, nil
}

func scanDevice(r rowScanner) (*model.DeviceContext, error) {
	var (
		d        model.DeviceContext
		tier     string
		caps     string
		lastSeen string
		status   string
		meta     string
	)
	if err := r.Scan(&d.DeviceID, &tier, &caps, &d.Specialization, &d.Location,
		&d.Hostname, &d.IPAddress, &lastSeen, &status, &d.Version, &meta); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device row: %w", err)
	}

	d.HardwareTier = model.HardwareTier(tier)
	d.Status = model.DeviceStatus(status)

	var err error
	if d.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(caps), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("%w: bad capabilities json: %v", ErrStorageFatal, err)
	}
	if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
		return nil, fmt.Errorf("%w: bad metadata json: %v", ErrStorageFatal, err)
	}
	return &d, nil
}
