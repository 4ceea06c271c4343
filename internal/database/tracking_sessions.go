package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dispatch-backend/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	activeDeliveryIndex = "idx_tracking_sessions_active_delivery"
	trackingCodeKey     = "tracking_sessions_tracking_code_key"
)

// TrackingSessionStore persists tracking sessions in Postgres. Uniqueness is enforced by
// the database: a unique constraint on tracking_code and a partial unique index on
// delivery_id WHERE is_active.
type TrackingSessionStore struct {
	db *sqlx.DB
}

func NewTrackingSessionStore(db *sqlx.DB) *TrackingSessionStore {
	return &TrackingSessionStore{db: db}
}

// FindActiveByDelivery returns the delivery's active session if it has not expired at now
func (s *TrackingSessionStore) FindActiveByDelivery(ctx context.Context, deliveryID string, now time.Time) (*models.TrackingSession, error) {
	var session models.TrackingSession
	err := s.db.GetContext(ctx, &session, `
		SELECT * FROM tracking_sessions
		WHERE delivery_id = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`, deliveryID, now.Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tracking session: %w", err)
	}
	return &session, nil
}

// FindActiveByCode returns the session for code if it is active and unexpired at now
func (s *TrackingSessionStore) FindActiveByCode(ctx context.Context, code string, now time.Time) (*models.TrackingSession, error) {
	var session models.TrackingSession
	err := s.db.GetContext(ctx, &session, `
		SELECT * FROM tracking_sessions
		WHERE tracking_code = $1 AND is_active = TRUE AND expires_at > $2`, code, now.Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tracking session: %w", err)
	}
	return &session, nil
}

// Create inserts session as the delivery's active session. Expired rows that still carry
// is_active are retired in the same transaction so they do not block the partial index.
//
// Returns ErrCodeTaken when the code was issued before, and ErrActiveSessionExists when
// a concurrent request won the race for this delivery.
func (s *TrackingSessionStore) Create(ctx context.Context, session *models.TrackingSession, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE tracking_sessions SET is_active = FALSE
		WHERE delivery_id = $1 AND is_active = TRUE AND expires_at <= $2`,
		session.DeliveryID, now.Unix()); err != nil {
		return fmt.Errorf("failed to retire expired sessions: %w", err)
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO tracking_sessions (id, tracking_code, delivery_id, driver_id, is_active, expires_at, created_at)
		VALUES (:id, :tracking_code, :delivery_id, :driver_id, :is_active, :expires_at, :created_at)`,
		session); err != nil {
		return classifyInsertError(err)
	}

	if err := tx.Commit(); err != nil {
		return classifyInsertError(err)
	}
	return nil
}

// Deactivate retires every active session of the delivery
func (s *TrackingSessionStore) Deactivate(ctx context.Context, deliveryID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracking_sessions SET is_active = FALSE WHERE delivery_id = $1 AND is_active = TRUE`,
		deliveryID)
	if err != nil {
		return fmt.Errorf("failed to deactivate tracking sessions: %w", err)
	}
	return nil
}

// classifyInsertError maps unique violations to the sentinel the session manager retries on
func classifyInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case trackingCodeKey:
			return ErrCodeTaken
		case activeDeliveryIndex:
			return ErrActiveSessionExists
		}
	}
	return fmt.Errorf("failed to create tracking session: %w", err)
}
