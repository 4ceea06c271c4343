package models

import "math"

// DeliveryStatus is the lifecycle state of a single delivery stop
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusAssigned  DeliveryStatus = "assigned"
	StatusPickedUp  DeliveryStatus = "picked-up"
	StatusInTransit DeliveryStatus = "in-transit"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// ActiveStatuses are the states in which a stop still needs to be visited
var ActiveStatuses = []DeliveryStatus{StatusAssigned, StatusPickedUp, StatusInTransit}

// IsActive reports whether a stop in this state is eligible for routing
func (s DeliveryStatus) IsActive() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Coordinate is a WGS84 point
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside the WGS84 ranges
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Stop is one delivery's drop-off point plus its scheduling constraints.
// Latitude/Longitude are nullable because deliveries may be created before geocoding completes.
type Stop struct {
	ID            string         `json:"id" db:"id"`
	DriverID      *string        `json:"driver_id,omitempty" db:"assigned_to"`
	CustomerName  string         `json:"customer_name" db:"customer_name"`
	CustomerEmail *string        `json:"customer_email,omitempty" db:"customer_email"`
	Address       string         `json:"address" db:"address"`
	Latitude      *float64       `json:"latitude,omitempty" db:"latitude"`
	Longitude     *float64       `json:"longitude,omitempty" db:"longitude"`
	WindowStart   *int64         `json:"window_start,omitempty" db:"window_start"` // Unix timestamp
	WindowEnd     *int64         `json:"window_end,omitempty" db:"window_end"`     // Unix timestamp
	Weight        float64        `json:"weight" db:"weight"`
	Status        DeliveryStatus `json:"status" db:"status"`
	TrackingCode  *string        `json:"tracking_code,omitempty" db:"tracking_code"` // legacy denormalized code
	DeliveredAt   *int64         `json:"delivered_at,omitempty" db:"delivered_at"`
	ProofNotes    *string        `json:"proof_notes,omitempty" db:"proof_notes"`
	ProofSig      *string        `json:"proof_signature,omitempty" db:"proof_signature"`
	ProofPhoto    *string        `json:"proof_photo,omitempty" db:"proof_photo"`
	FailureReason *string        `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     int64          `json:"created_at" db:"created_at"`
	UpdatedAt     int64          `json:"updated_at" db:"updated_at"`
}

// Coordinate returns the stop position and whether it is usable for routing
func (s Stop) Coordinate() (Coordinate, bool) {
	if s.Latitude == nil || s.Longitude == nil {
		return Coordinate{}, false
	}
	c := Coordinate{Latitude: *s.Latitude, Longitude: *s.Longitude}
	return c, c.Valid()
}

// LoadWeight returns the stop weight, defaulting to 1 when unset or negative
func (s Stop) LoadWeight() float64 {
	if s.Weight <= 0 {
		return 1
	}
	return s.Weight
}

// StopWithTracking is a stop plus its currently active tracking code (never persisted)
type StopWithTracking struct {
	Stop
	ActiveTrackingCode *string `json:"active_tracking_code"`
}

// UpdateStatusRequest is the request body for PUT /api/driver/deliveries/:id/status
type UpdateStatusRequest struct {
	Status        DeliveryStatus `json:"status"`
	Notes         string         `json:"notes,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// StatusChange is a validated transition plus the side-effect columns it sets.
// The update only applies while the stored status still equals From.
type StatusChange struct {
	From          DeliveryStatus
	To            DeliveryStatus
	DeliveredAt   *int64
	ProofNotes    *string
	FailureReason *string
	UpdatedAt     int64
}

// DeliveryProof is the evidence a driver attaches to a delivered stop
type DeliveryProof struct {
	Signature *string `json:"signature,omitempty" db:"proof_signature"`
	Photo     *string `json:"photo,omitempty" db:"proof_photo"`
	Notes     *string `json:"notes,omitempty" db:"proof_notes"`
}

// Proof returns the stop's stored proof fields
func (s Stop) Proof() DeliveryProof {
	return DeliveryProof{Signature: s.ProofSig, Photo: s.ProofPhoto, Notes: s.ProofNotes}
}

// UploadProofRequest carries proof fields; empty fields keep what is stored
type UploadProofRequest struct {
	Signature string `json:"signature"`
	Photo     string `json:"photo"` // URL or base64 data URI
	Notes     string `json:"notes"`
}

// DeliveryCounts are a driver's raw counters for one day
type DeliveryCounts struct {
	TotalAssigned  int `db:"total_assigned"`
	CompletedToday int `db:"completed_today"`
	PendingToday   int `db:"pending_today"`
	FailedToday    int `db:"failed_today"`
}

// DeliveryStats summarizes a driver's day
type DeliveryStats struct {
	TotalAssigned  int     `json:"total_assigned"`
	CompletedToday int     `json:"completed_today"`
	PendingToday   int     `json:"pending_today"`
	FailedToday    int     `json:"failed_today"`
	SuccessRate    float64 `json:"success_rate"` // percent of today's finished deliveries that succeeded
}
