package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dispatch-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

const stopColumns = `id, assigned_to, customer_name, customer_email, address, latitude, longitude,
	window_start, window_end, weight, status, tracking_code, delivered_at, proof_notes,
	proof_signature, proof_photo, failure_reason, created_at, updated_at`

// StopStore reads and updates delivery stops
type StopStore struct {
	db *sqlx.DB
}

func NewStopStore(db *sqlx.DB) *StopStore {
	return &StopStore{db: db}
}

// ActiveStopsForDriver returns the requested stops that are assigned to driverID and still
// active, in the order the IDs were given. Unknown, foreign or completed IDs are dropped.
func (s *StopStore) ActiveStopsForDriver(ctx context.Context, driverID string, ids []string) ([]models.Stop, error) {
	if len(ids) == 0 {
		return []models.Stop{}, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+stopColumns+` FROM deliveries
		 WHERE id IN (?) AND assigned_to = ? AND status IN (?)`,
		ids, driverID, models.ActiveStatuses,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build stop query: %w", err)
	}

	var found []models.Stop
	if err := s.db.SelectContext(ctx, &found, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get stops: %w", err)
	}

	byID := make(map[string]models.Stop, len(found))
	for _, stop := range found {
		byID[stop.ID] = stop
	}

	ordered := make([]models.Stop, 0, len(found))
	for _, id := range ids {
		if stop, ok := byID[id]; ok {
			ordered = append(ordered, stop)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// ListDriverDeliveries returns every active stop assigned to driverID, oldest first
func (s *StopStore) ListDriverDeliveries(ctx context.Context, driverID string) ([]models.Stop, error) {
	query, args, err := sqlx.In(
		`SELECT `+stopColumns+` FROM deliveries
		 WHERE assigned_to = ? AND status IN (?)
		 ORDER BY created_at ASC`,
		driverID, models.ActiveStatuses,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build delivery query: %w", err)
	}

	stops := []models.Stop{}
	if err := s.db.SelectContext(ctx, &stops, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return stops, nil
}

func (s *StopStore) GetStop(ctx context.Context, id string) (*models.Stop, error) {
	var stop models.Stop
	err := s.db.GetContext(ctx, &stop, `SELECT `+stopColumns+` FROM deliveries WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return &stop, nil
}

// FindByTrackingCode resolves the legacy code stored on the delivery row itself
func (s *StopStore) FindByTrackingCode(ctx context.Context, code string) (*models.Stop, error) {
	var stop models.Stop
	err := s.db.GetContext(ctx, &stop, `SELECT `+stopColumns+` FROM deliveries WHERE tracking_code = $1 LIMIT 1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find delivery by tracking code: %w", err)
	}
	return &stop, nil
}

// UpdateStatus applies change only if the stored status is still change.From.
// It reports false when another writer moved the stop first.
func (s *StopStore) UpdateStatus(ctx context.Context, id string, change models.StatusChange) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET status = $1,
		    delivered_at = COALESCE($2, delivered_at),
		    proof_notes = COALESCE($3, proof_notes),
		    failure_reason = COALESCE($4, failure_reason),
		    updated_at = $5
		WHERE id = $6 AND status = $7`,
		change.To, change.DeliveredAt, change.ProofNotes, change.FailureReason,
		change.UpdatedAt, id, change.From,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update delivery status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return rows == 1, nil
}

// SaveProof merges proof into a delivered stop owned by driverID. Nil fields keep the
// stored value. It reports false when the stop is not delivered or not the driver's.
func (s *StopStore) SaveProof(ctx context.Context, id, driverID string, proof models.DeliveryProof, updatedAt int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET proof_signature = COALESCE($1, proof_signature),
		    proof_photo = COALESCE($2, proof_photo),
		    proof_notes = COALESCE($3, proof_notes),
		    updated_at = $4
		WHERE id = $5 AND assigned_to = $6 AND status = $7`,
		proof.Signature, proof.Photo, proof.Notes, updatedAt, id, driverID, models.StatusDelivered,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save delivery proof: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read proof result: %w", err)
	}
	return rows == 1, nil
}

// countsQuery counts a driver's deliveries for the day [$2, $3) in unix seconds
const countsQuery = `
	SELECT
		COUNT(*) FILTER (WHERE status IN ('assigned', 'picked-up', 'in-transit')) AS total_assigned,
		COUNT(*) FILTER (WHERE status = 'delivered' AND delivered_at >= $2 AND delivered_at < $3) AS completed_today,
		COUNT(*) FILTER (WHERE status IN ('assigned', 'picked-up', 'in-transit')
			AND window_start >= $2 AND window_start < $3) AS pending_today,
		COUNT(*) FILTER (WHERE status = 'failed' AND updated_at >= $2 AND updated_at < $3) AS failed_today
	FROM deliveries
	WHERE assigned_to = $1`

// DeliveryCounts returns driverID's counters for the day starting at dayStart
func (s *StopStore) DeliveryCounts(ctx context.Context, driverID string, dayStart, dayEnd int64) (models.DeliveryCounts, error) {
	var counts models.DeliveryCounts
	if err := s.db.GetContext(ctx, &counts, countsQuery, driverID, dayStart, dayEnd); err != nil {
		return counts, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return counts, nil
}
