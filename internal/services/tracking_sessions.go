package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"dispatch-backend/internal/database"
	"dispatch-backend/internal/models"

	"github.com/google/uuid"
)

const (
	trackingCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	trackingCodeLength   = 6

	// DefaultSessionTTL is how long a tracking code stays valid after creation
	DefaultSessionTTL = 24 * time.Hour

	maxCreateAttempts = 10
)

// SessionStore persists tracking sessions. Create must be an atomic insert-if-absent:
// it returns database.ErrCodeTaken when the code was ever issued, and
// database.ErrActiveSessionExists when the delivery already has a live session.
type SessionStore interface {
	FindActiveByDelivery(ctx context.Context, deliveryID string, now time.Time) (*models.TrackingSession, error)
	FindActiveByCode(ctx context.Context, code string, now time.Time) (*models.TrackingSession, error)
	Create(ctx context.Context, session *models.TrackingSession, now time.Time) error
	Deactivate(ctx context.Context, deliveryID string) error
}

// DeliveryCodeResolver finds a delivery by the tracking code stored on the delivery itself
type DeliveryCodeResolver interface {
	FindByTrackingCode(ctx context.Context, code string) (*models.Stop, error)
}

// ResolvedSession is what a tracking code grants access to
type ResolvedSession struct {
	TrackingCode string
	DeliveryID   string
	DriverID     string
	ExpiresAt    int64 // Unix timestamp; watchers are dropped after it
	// Degraded is set when the code matched a delivery row rather than a live session
	Degraded bool
}

// TrackingSessionManager issues, reuses and resolves public tracking codes
type TrackingSessionManager struct {
	store    SessionStore
	legacy   DeliveryCodeResolver
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

// TrackingConfig tunes a TrackingSessionManager
type TrackingConfig struct {
	TTL      time.Duration
	Now      func() time.Time
	Generate func() (string, error)
}

// NewTrackingSessionManager creates a manager over store. legacy may be nil.
func NewTrackingSessionManager(store SessionStore, legacy DeliveryCodeResolver, cfg TrackingConfig) *TrackingSessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Generate == nil {
		cfg.Generate = GenerateTrackingCode
	}
	return &TrackingSessionManager{
		store:    store,
		legacy:   legacy,
		ttl:      cfg.TTL,
		now:      cfg.Now,
		generate: cfg.Generate,
	}
}

// GenerateTrackingCode draws a 6 character uppercase alphanumeric code from crypto/rand
func GenerateTrackingCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(trackingCodeAlphabet)))
	var sb strings.Builder
	sb.Grow(trackingCodeLength)
	for i := 0; i < trackingCodeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate tracking code: %w", err)
		}
		sb.WriteByte(trackingCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// GetOrCreateSession returns the delivery's live session, or creates one.
// Repeated calls within the TTL return the same code. A lost creation race re-reads
// the winner's session; a code collision draws a new code.
func (m *TrackingSessionManager) GetOrCreateSession(ctx context.Context, deliveryID, driverID string) (*models.TrackingSession, error) {
	if deliveryID == "" || driverID == "" {
		return nil, fmt.Errorf("%w: delivery and driver are required", ErrInvalidInput)
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		now := m.now()

		existing, err := m.store.FindActiveByDelivery(ctx, deliveryID, now)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}

		code, err := m.generate()
		if err != nil {
			return nil, err
		}

		session := &models.TrackingSession{
			ID:           uuid.New().String(),
			TrackingCode: code,
			DeliveryID:   deliveryID,
			DriverID:     driverID,
			IsActive:     true,
			ExpiresAt:    now.Add(m.ttl).Unix(),
			CreatedAt:    now.Unix(),
		}

		err = m.store.Create(ctx, session, now)
		switch {
		case err == nil:
			log.Printf("🔑 [TRACKING] Issued code %s for delivery %s (expires %s)",
				code, deliveryID, time.Unix(session.ExpiresAt, 0).UTC().Format(time.RFC3339))
			return session, nil
		case errors.Is(err, database.ErrCodeTaken):
			log.Printf("⚠️  [TRACKING] Code collision on %s, redrawing", code)
		case errors.Is(err, database.ErrActiveSessionExists):
			log.Printf("ℹ️  [TRACKING] Session for delivery %s created concurrently, re-reading", deliveryID)
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to create tracking session for delivery %s after %d attempts", deliveryID, maxCreateAttempts)
}

// ResolveSession maps a code to its delivery and driver. Expired or inactive sessions never
// match. When no session matches, a code stored directly on a delivery row is accepted as a
// degraded result before giving up with ErrSessionNotFound.
func (m *TrackingSessionManager) ResolveSession(ctx context.Context, code string) (*ResolvedSession, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrSessionNotFound
	}

	session, err := m.store.FindActiveByCode(ctx, code, m.now())
	if err == nil {
		return &ResolvedSession{
			TrackingCode: session.TrackingCode,
			DeliveryID:   session.DeliveryID,
			DriverID:     session.DriverID,
			ExpiresAt:    session.ExpiresAt,
		}, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if m.legacy == nil {
		return nil, ErrSessionNotFound
	}

	stop, err := m.legacy.FindByTrackingCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if stop.DriverID == nil {
		return nil, ErrSessionNotFound
	}

	log.Printf("⚠️  [TRACKING] Code %s resolved through delivery %s (no live session)", code, stop.ID)
	return &ResolvedSession{
		TrackingCode: code,
		DeliveryID:   stop.ID,
		DriverID:     *stop.DriverID,
		ExpiresAt:    m.now().Add(m.ttl).Unix(),
		Degraded:     true,
	}, nil
}

// ActiveCode returns the delivery's live tracking code, if any
func (m *TrackingSessionManager) ActiveCode(ctx context.Context, deliveryID string) (string, bool, error) {
	session, err := m.store.FindActiveByDelivery(ctx, deliveryID, m.now())
	if errors.Is(err, database.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return session.TrackingCode, true, nil
}

// Invalidate ends the delivery's tracking session before it expires
func (m *TrackingSessionManager) Invalidate(ctx context.Context, deliveryID string) error {
	if err := m.store.Deactivate(ctx, deliveryID); err != nil {
		return err
	}
	log.Printf("🔒 [TRACKING] Session closed for delivery %s", deliveryID)
	return nil
}
