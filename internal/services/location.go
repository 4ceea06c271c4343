package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dispatch-backend/internal/events"
	"dispatch-backend/internal/models"
)

const (
	// MinPositionDelta is the minimum movement (meters) that counts as a new position
	MinPositionDelta = 1.0

	// MaxTimeSinceLastBroadcast forces an update after this long even without movement,
	// so watchers never see a stale marker for a stopped driver
	MaxTimeSinceLastBroadcast = 2 * time.Second

	// MaxAccuracy rejects fixes with a worse GPS accuracy radius (meters)
	MaxAccuracy = 100.0
)

// LocationThrottle filters a driver's GPS stream down to significant updates
type LocationThrottle struct {
	lastPositions map[string]lastPosition // Key: driver_id
	mutex         sync.Mutex

	accepted int64
	skipped  int64
}

type lastPosition struct {
	coord     models.Coordinate
	timestamp int64 // ms
}

func NewLocationThrottle() *LocationThrottle {
	return &LocationThrottle{
		lastPositions: make(map[string]lastPosition),
	}
}

// Allow reports whether a fix at timestampMs should be stored and broadcast.
// The first fix per driver always passes; later ones need MinPositionDelta of movement or
// MaxTimeSinceLastBroadcast of silence.
func (t *LocationThrottle) Allow(driverID string, coord models.Coordinate, accuracy *float64, timestampMs int64) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if accuracy != nil && *accuracy > MaxAccuracy {
		t.skipped++
		return false
	}

	last, exists := t.lastPositions[driverID]
	if !exists {
		t.remember(driverID, coord, timestampMs)
		return true
	}

	distance := distanceBetween(last.coord, coord)
	elapsed := time.Duration(timestampMs-last.timestamp) * time.Millisecond

	if distance >= MinPositionDelta || elapsed > MaxTimeSinceLastBroadcast {
		t.remember(driverID, coord, timestampMs)
		return true
	}

	t.skipped++
	return false
}

func (t *LocationThrottle) remember(driverID string, coord models.Coordinate, timestampMs int64) {
	t.lastPositions[driverID] = lastPosition{coord: coord, timestamp: timestampMs}
	t.accepted++
}

// Forget drops the driver's last position, e.g. when their connection closes
func (t *LocationThrottle) Forget(driverID string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.lastPositions, driverID)
}

// Stats returns accepted and skipped counts
func (t *LocationThrottle) Stats() (accepted, skipped int64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.accepted, t.skipped
}

// LocationStore keeps the latest position per driver
type LocationStore interface {
	Upsert(ctx context.Context, loc *models.DriverLocation) error
	Get(ctx context.Context, driverID string) (*models.DriverLocation, error)
	SetConnected(ctx context.Context, driverID string, connected bool) error
}

// LocationService records driver positions and fans them out to watchers
type LocationService struct {
	store    LocationStore
	throttle *LocationThrottle
	notifier events.Notifier
	now      func() time.Time
}

func NewLocationService(store LocationStore, throttle *LocationThrottle, notifier events.Notifier) *LocationService {
	if throttle == nil {
		throttle = NewLocationThrottle()
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &LocationService{store: store, throttle: throttle, notifier: notifier, now: time.Now}
}

// Update validates and records a fix. It returns false when the throttle dropped it.
func (s *LocationService) Update(ctx context.Context, driverID string, req models.LocationUpdateRequest) (bool, error) {
	coord := models.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude}
	if !coord.Valid() {
		return false, fmt.Errorf("%w: location (%v, %v) out of range", ErrInvalidInput, req.Latitude, req.Longitude)
	}

	now := s.now()
	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = now.UnixMilli()
	}

	if !s.throttle.Allow(driverID, coord, req.Accuracy, timestamp) {
		return false, nil
	}

	loc := &models.DriverLocation{
		DriverID:  driverID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Heading:   req.Heading,
		Speed:     req.Speed,
		Accuracy:  req.Accuracy,
		Timestamp: timestamp,
		UpdatedAt: now.Unix(),
	}
	if err := s.store.Upsert(ctx, loc); err != nil {
		return false, err
	}

	s.notifier.Notify(ctx, events.Event{
		Type:     events.LocationUpdated,
		DriverID: driverID,
		Data: events.LocationData{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Heading:   loc.Heading,
			Speed:     loc.Speed,
			Accuracy:  loc.Accuracy,
			Timestamp: loc.Timestamp,
		},
		Timestamp: now,
	})
	return true, nil
}

// Disconnect forgets the driver's throttle state and marks them offline.
// Their last position is kept for watchers.
func (s *LocationService) Disconnect(ctx context.Context, driverID string) {
	s.throttle.Forget(driverID)
	if err := s.store.SetConnected(ctx, driverID, false); err != nil {
		log.Printf("❌ Error marking driver %s as disconnected: %v", driverID, err)
		return
	}
	log.Printf("🔴 Driver %s marked as disconnected (last position preserved)", driverID)
}
