package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dispatch-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// LocationStore keeps the latest known position per driver
type LocationStore struct {
	db *sqlx.DB
}

func NewLocationStore(db *sqlx.DB) *LocationStore {
	return &LocationStore{db: db}
}

// Upsert saves the driver's latest position and marks them connected
func (s *LocationStore) Upsert(ctx context.Context, loc *models.DriverLocation) error {
	if loc.UpdatedAt == 0 {
		loc.UpdatedAt = time.Now().Unix()
	}
	loc.IsConnected = true

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO driver_current_location
			(driver_id, latitude, longitude, heading, speed, accuracy, timestamp, is_connected, updated_at)
		VALUES
			(:driver_id, :latitude, :longitude, :heading, :speed, :accuracy, :timestamp, :is_connected, :updated_at)
		ON CONFLICT (driver_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			heading = EXCLUDED.heading,
			speed = EXCLUDED.speed,
			accuracy = EXCLUDED.accuracy,
			timestamp = EXCLUDED.timestamp,
			is_connected = EXCLUDED.is_connected,
			updated_at = EXCLUDED.updated_at`, loc)
	if err != nil {
		return fmt.Errorf("failed to upsert driver location: %w", err)
	}
	return nil
}

func (s *LocationStore) Get(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	var loc models.DriverLocation
	err := s.db.GetContext(ctx, &loc, `SELECT * FROM driver_current_location WHERE driver_id = $1`, driverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver location: %w", err)
	}
	return &loc, nil
}

// SetConnected flips the driver's connection flag, e.g. when their websocket drops
func (s *LocationStore) SetConnected(ctx context.Context, driverID string, connected bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE driver_current_location SET is_connected = $1, updated_at = $2 WHERE driver_id = $3`,
		connected, time.Now().Unix(), driverID)
	if err != nil {
		return fmt.Errorf("failed to update driver connection: %w", err)
	}
	return nil
}
