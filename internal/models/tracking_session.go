package models

import "time"

// TrackingSession binds a public tracking code to one delivery and its driver until ExpiresAt
type TrackingSession struct {
	ID           string `json:"id" db:"id"`
	TrackingCode string `json:"tracking_code" db:"tracking_code"`
	DeliveryID   string `json:"delivery_id" db:"delivery_id"`
	DriverID     string `json:"driver_id" db:"driver_id"`
	IsActive     bool   `json:"is_active" db:"is_active"`
	ExpiresAt    int64  `json:"expires_at" db:"expires_at"` // Unix timestamp
	CreatedAt    int64  `json:"created_at" db:"created_at"` // Unix timestamp
}

// IsLiveAt reports whether the session is active and not yet expired at now
func (s *TrackingSession) IsLiveAt(now time.Time) bool {
	return s.IsActive && s.ExpiresAt > now.Unix()
}

// TrackingCodeResponse is returned when a driver requests a tracking code
type TrackingCodeResponse struct {
	TrackingCode string `json:"tracking_code"`
	ExpiresAt    int64  `json:"expires_at"`
}

// TrackingView is what a customer sees when resolving a tracking code
type TrackingView struct {
	TrackingCode   string          `json:"tracking_code"`
	Delivery       Stop            `json:"delivery"`
	DriverID       string          `json:"driver_id"`
	DriverName     string          `json:"driver_name,omitempty"`
	DriverLocation *DriverLocation `json:"driver_location,omitempty"`
	StatusMessage  string          `json:"status_message"`
}

// ETAResponse is returned by GET /api/tracking/:code/eta
type ETAResponse struct {
	IsRealtime               bool      `json:"is_realtime"`
	DistanceRemainingMeters  int       `json:"distance_remaining_meters"`
	DurationRemainingSeconds int       `json:"duration_remaining_seconds"`
	EstimatedArrival         time.Time `json:"estimated_arrival"`
}
