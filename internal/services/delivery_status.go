package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"dispatch-backend/internal/database"
	"dispatch-backend/internal/events"
	"dispatch-backend/internal/models"
)

// transitions lists the statuses each state may move to through a driver status update.
// pending is only left through assignment, never through this path.
var transitions = map[models.DeliveryStatus][]models.DeliveryStatus{
	models.StatusAssigned:  {models.StatusPickedUp},
	models.StatusPickedUp:  {models.StatusInTransit},
	models.StatusInTransit: {models.StatusDelivered, models.StatusFailed},
}

// TransitionResult is a validated status change plus the side effects the caller owes
type TransitionResult struct {
	From models.DeliveryStatus
	To   models.DeliveryStatus

	RecordCompletion    bool // stamp delivered_at
	CaptureProof        bool // keep the driver's proof notes
	AttachFailureReason bool
	InvalidateTracking  bool // terminal states close the public tracking session
}

// ApplyTransition validates current -> requested. It persists nothing.
func ApplyTransition(current, requested models.DeliveryStatus) (TransitionResult, error) {
	allowed := false
	for _, next := range transitions[current] {
		if next == requested {
			allowed = true
			break
		}
	}
	if !allowed {
		return TransitionResult{}, &TransitionError{From: current, To: requested}
	}

	return TransitionResult{
		From:                current,
		To:                  requested,
		RecordCompletion:    requested == models.StatusDelivered,
		CaptureProof:        requested == models.StatusDelivered,
		AttachFailureReason: requested == models.StatusFailed,
		InvalidateTracking:  requested.IsTerminal(),
	}, nil
}

// StatusMessage is the customer-facing text for a status
func StatusMessage(status models.DeliveryStatus) string {
	switch status {
	case models.StatusPickedUp:
		return "Your package has been picked up"
	case models.StatusInTransit:
		return "Your package is on the way"
	case models.StatusDelivered:
		return "Your package has been delivered"
	case models.StatusFailed:
		return "Delivery attempt failed"
	default:
		return "Status updated"
	}
}

// StopStore is the slice of delivery storage the dispatch services need
type StopStore interface {
	GetStop(ctx context.Context, id string) (*models.Stop, error)
	ListDriverDeliveries(ctx context.Context, driverID string) ([]models.Stop, error)
	UpdateStatus(ctx context.Context, id string, change models.StatusChange) (bool, error)
	SaveProof(ctx context.Context, id, driverID string, proof models.DeliveryProof, updatedAt int64) (bool, error)
	DeliveryCounts(ctx context.Context, driverID string, dayStart, dayEnd int64) (models.DeliveryCounts, error)
}

// DeliveryService applies driver-initiated changes to their deliveries
type DeliveryService struct {
	stops    StopStore
	tracking *TrackingSessionManager
	notifier events.Notifier
	now      func() time.Time
}

func NewDeliveryService(stops StopStore, tracking *TrackingSessionManager, notifier events.Notifier) *DeliveryService {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &DeliveryService{
		stops:    stops,
		tracking: tracking,
		notifier: notifier,
		now:      time.Now,
	}
}

// UpdateStatus moves one of driverID's deliveries to the requested status and performs the
// side effects the transition calls for. The stored status is unchanged on any error.
func (s *DeliveryService) UpdateStatus(ctx context.Context, driverID, deliveryID string, req models.UpdateStatusRequest) (*models.Stop, error) {
	stop, err := s.ownedStop(ctx, driverID, deliveryID)
	if err != nil {
		return nil, err
	}

	result, err := ApplyTransition(stop.Status, req.Status)
	if err != nil {
		return nil, err
	}

	now := s.now()
	change := models.StatusChange{
		From:      result.From,
		To:        result.To,
		UpdatedAt: now.Unix(),
	}
	if result.RecordCompletion {
		deliveredAt := now.Unix()
		change.DeliveredAt = &deliveredAt
	}
	if result.CaptureProof && req.Notes != "" {
		notes := req.Notes
		change.ProofNotes = &notes
	}
	if result.AttachFailureReason {
		reason := req.FailureReason
		if reason == "" {
			reason = req.Notes
		}
		if reason == "" {
			reason = "No reason provided"
		}
		change.FailureReason = &reason
	}

	updated, err := s.stops.UpdateStatus(ctx, deliveryID, change)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Someone else moved the delivery between our read and write
		latest, err := s.stops.GetStop(ctx, deliveryID)
		if err != nil {
			return nil, err
		}
		return nil, &TransitionError{From: latest.Status, To: req.Status}
	}

	stop.Status = change.To
	stop.UpdatedAt = change.UpdatedAt
	if change.DeliveredAt != nil {
		stop.DeliveredAt = change.DeliveredAt
	}
	if change.ProofNotes != nil {
		stop.ProofNotes = change.ProofNotes
	}
	if change.FailureReason != nil {
		stop.FailureReason = change.FailureReason
	}

	log.Printf("📦 Delivery %s: %s → %s (driver %s)", deliveryID, result.From, result.To, driverID)

	trackingCode := ""
	if s.tracking != nil {
		if code, ok, err := s.tracking.ActiveCode(ctx, deliveryID); err == nil && ok {
			trackingCode = code
		}
		if result.InvalidateTracking {
			if err := s.tracking.Invalidate(ctx, deliveryID); err != nil {
				log.Printf("⚠️  [TRACKING] Failed to invalidate session for delivery %s: %v", deliveryID, err)
			}
		}
	}

	s.notifier.Notify(ctx, events.Event{
		Type:         events.StatusChanged,
		DriverID:     driverID,
		DeliveryID:   deliveryID,
		TrackingCode: trackingCode,
		Data: events.StatusData{
			Status:         string(result.To),
			PreviousStatus: string(result.From),
			Message:        StatusMessage(result.To),
		},
		Timestamp: now,
	})

	return stop, nil
}

// ListDriverDeliveries returns the driver's active deliveries with their live tracking code attached
func (s *DeliveryService) ListDriverDeliveries(ctx context.Context, driverID string) ([]models.StopWithTracking, error) {
	stops, err := s.stops.ListDriverDeliveries(ctx, driverID)
	if err != nil {
		return nil, err
	}

	out := make([]models.StopWithTracking, len(stops))
	for i, stop := range stops {
		out[i] = models.StopWithTracking{Stop: stop}
		if s.tracking == nil {
			continue
		}
		code, ok, err := s.tracking.ActiveCode(ctx, stop.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i].ActiveTrackingCode = &code
		}
	}
	return out, nil
}

// IssueTrackingCode returns the delivery's active tracking session, creating one if needed
func (s *DeliveryService) IssueTrackingCode(ctx context.Context, driverID, deliveryID string) (*models.TrackingSession, error) {
	stop, err := s.ownedStop(ctx, driverID, deliveryID)
	if err != nil {
		return nil, err
	}
	if !stop.Status.IsActive() {
		return nil, fmt.Errorf("%w: delivery is %s", ErrInvalidInput, stop.Status)
	}
	if s.tracking == nil {
		return nil, ErrTrackingDisabled
	}
	return s.tracking.GetOrCreateSession(ctx, deliveryID, driverID)
}

// UploadProof attaches signature, photo or notes to a delivered stop. Empty request fields
// keep the stored value; at least one field must be set.
func (s *DeliveryService) UploadProof(ctx context.Context, driverID, deliveryID string, req models.UploadProofRequest) (*models.DeliveryProof, error) {
	var proof models.DeliveryProof
	if v := strings.TrimSpace(req.Signature); v != "" {
		proof.Signature = &v
	}
	if v := strings.TrimSpace(req.Photo); v != "" {
		proof.Photo = &v
	}
	if v := strings.TrimSpace(req.Notes); v != "" {
		proof.Notes = &v
	}
	if proof.Signature == nil && proof.Photo == nil && proof.Notes == nil {
		return nil, fmt.Errorf("%w: signature, photo or notes is required", ErrInvalidInput)
	}

	stop, err := s.ownedStop(ctx, driverID, deliveryID)
	if errors.Is(err, ErrDeliveryNotFound) {
		return nil, ErrDeliveryNotCompleted
	}
	if err != nil {
		return nil, err
	}
	if stop.Status != models.StatusDelivered {
		return nil, ErrDeliveryNotCompleted
	}

	saved, err := s.stops.SaveProof(ctx, deliveryID, driverID, proof, s.now().Unix())
	if err != nil {
		return nil, err
	}
	if !saved {
		return nil, ErrDeliveryNotCompleted
	}

	merged := stop.Proof()
	if proof.Signature != nil {
		merged.Signature = proof.Signature
	}
	if proof.Photo != nil {
		merged.Photo = proof.Photo
	}
	if proof.Notes != nil {
		merged.Notes = proof.Notes
	}

	log.Printf("📸 Proof saved for delivery %s (driver %s)", deliveryID, driverID)
	return &merged, nil
}

// Stats summarizes the driver's active load and today's outcomes. "Today" is the
// calendar day of the service clock's location.
func (s *DeliveryService) Stats(ctx context.Context, driverID string) (*models.DeliveryStats, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	counts, err := s.stops.DeliveryCounts(ctx, driverID, dayStart.Unix(), dayEnd.Unix())
	if err != nil {
		return nil, err
	}

	stats := &models.DeliveryStats{
		TotalAssigned:  counts.TotalAssigned,
		CompletedToday: counts.CompletedToday,
		PendingToday:   counts.PendingToday,
		FailedToday:    counts.FailedToday,
	}
	if finished := counts.CompletedToday + counts.FailedToday; finished > 0 {
		rate := float64(counts.CompletedToday) / float64(finished) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

func (s *DeliveryService) ownedStop(ctx context.Context, driverID, deliveryID string) (*models.Stop, error) {
	stop, err := s.stops.GetStop(ctx, deliveryID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, err
	}
	if stop.DriverID == nil || *stop.DriverID != driverID {
		return nil, ErrDeliveryNotFound
	}
	return stop, nil
}
