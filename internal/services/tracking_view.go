package services

import (
	"context"
	"errors"
	"fmt"

	"dispatch-backend/internal/database"
	"dispatch-backend/internal/models"
)

// DriverLookup resolves a driver's display details
type DriverLookup interface {
	GetByID(ctx context.Context, id string) (*models.Driver, error)
}

// TrackingService answers customer-facing tracking queries
type TrackingService struct {
	sessions  *TrackingSessionManager
	stops     StopStore
	locations LocationStore
	drivers   DriverLookup
	optimizer *RouteOptimizer
}

func NewTrackingService(sessions *TrackingSessionManager, stops StopStore, locations LocationStore, drivers DriverLookup, optimizer *RouteOptimizer) *TrackingService {
	return &TrackingService{
		sessions:  sessions,
		stops:     stops,
		locations: locations,
		drivers:   drivers,
		optimizer: optimizer,
	}
}

// View returns the delivery, driver and last known driver position behind a tracking code
func (s *TrackingService) View(ctx context.Context, code string) (*models.TrackingView, error) {
	resolved, err := s.sessions.ResolveSession(ctx, code)
	if err != nil {
		return nil, err
	}

	stop, err := s.stops.GetStop(ctx, resolved.DeliveryID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	view := &models.TrackingView{
		TrackingCode:  resolved.TrackingCode,
		Delivery:      *stop,
		DriverID:      resolved.DriverID,
		StatusMessage: StatusMessage(stop.Status),
	}

	if driver, err := s.drivers.GetByID(ctx, resolved.DriverID); err == nil {
		view.DriverName = driver.Name
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	loc, err := s.locations.Get(ctx, resolved.DriverID)
	switch {
	case err == nil:
		view.DriverLocation = loc
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	return view, nil
}

// ETA estimates when the driver behind code reaches the delivery
func (s *TrackingService) ETA(ctx context.Context, code string) (*models.ETAResponse, error) {
	resolved, err := s.sessions.ResolveSession(ctx, code)
	if err != nil {
		return nil, err
	}

	stop, err := s.stops.GetStop(ctx, resolved.DeliveryID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	destination, ok := stop.Coordinate()
	if !ok {
		return nil, fmt.Errorf("%w: delivery %s has no coordinates", ErrInvalidInput, stop.ID)
	}

	loc, err := s.locations.Get(ctx, resolved.DriverID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrLocationUnavailable
	}
	if err != nil {
		return nil, err
	}

	return s.optimizer.EstimateArrival(ctx, loc.Coordinate(), destination)
}
