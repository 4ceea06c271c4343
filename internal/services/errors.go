package services

import (
	"errors"
	"fmt"

	"dispatch-backend/internal/models"
)

var (
	// ErrInvalidInput rejects malformed coordinates or locations before any provider call
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoValidStops means no stop survived coordinate filtering
	ErrNoValidStops = fmt.Errorf("%w: no deliveries with valid coordinates", ErrInvalidInput)

	// ErrProviderHard is an unrecoverable provider failure that no fallback replaced
	ErrProviderHard = errors.New("route provider failed")

	// ErrInvalidTransition is returned when a status change is not allowed from the current state
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDeliveryNotFound covers both missing deliveries and deliveries assigned to someone else
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrLocationUnavailable means the driver has not reported a position yet
	ErrLocationUnavailable = errors.New("driver location unavailable")

	// ErrSessionNotFound means a tracking code resolved to nothing
	ErrSessionNotFound = errors.New("invalid or expired tracking code")

	// ErrDeliveryNotCompleted rejects proof for a delivery that is not delivered
	ErrDeliveryNotCompleted = errors.New("delivery not found or not completed")

	// ErrTrackingDisabled means the service was built without a tracking session manager
	ErrTrackingDisabled = errors.New("tracking is not configured")
)

// TransitionError describes a rejected delivery status change
type TransitionError struct {
	From models.DeliveryStatus
	To   models.DeliveryStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
