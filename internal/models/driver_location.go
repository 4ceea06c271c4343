package models

// DriverLocation is the latest GPS position reported by a driver (one row per driver)
type DriverLocation struct {
	DriverID    string   `json:"driver_id" db:"driver_id"`
	Latitude    float64  `json:"latitude" db:"latitude"`
	Longitude   float64  `json:"longitude" db:"longitude"`
	Heading     *float64 `json:"heading,omitempty" db:"heading"`   // Direction of travel (0-360 degrees)
	Speed       *float64 `json:"speed,omitempty" db:"speed"`       // Speed in m/s
	Accuracy    *float64 `json:"accuracy,omitempty" db:"accuracy"` // GPS accuracy in meters
	Timestamp   int64    `json:"timestamp" db:"timestamp"`         // Client-side timestamp (ms)
	IsConnected bool     `json:"is_connected" db:"is_connected"`
	UpdatedAt   int64    `json:"updated_at" db:"updated_at"` // Server-side timestamp
}

// Coordinate returns the reported position
func (l DriverLocation) Coordinate() Coordinate {
	return Coordinate{Latitude: l.Latitude, Longitude: l.Longitude}
}

// LocationUpdateRequest is the request body for POST /api/driver/location
type LocationUpdateRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp"`
}
