package routing

import (
	"context"
	"time"
)

// LatLng is a coordinate sent to or returned by a routing provider
type LatLng struct {
	Latitude  float64
	Longitude float64
}

// WaypointRequest asks the provider for an optimized visiting order.
// Origin and Destination are equal for a closed-loop (round trip) route.
type WaypointRequest struct {
	Origin        LatLng
	Destination   LatLng
	Waypoints     []LatLng
	Optimize      bool      // Permit the provider to reorder waypoints
	DepartureTime time.Time // Zero value means "now" (traffic-aware)
}

// Leg is the travel between two consecutive points of a route.
// Missing provider values are reported as 0.
type Leg struct {
	DistanceMeters  int
	DurationSeconds int
}

// WaypointResult is the provider's answer to a WaypointRequest
type WaypointResult struct {
	WaypointOrder []int // Permutation of WaypointRequest.Waypoints indices
	Legs          []Leg
	Polyline      string
}

// MatrixRequest asks for a full origins x destinations cost grid
type MatrixRequest struct {
	Origins       []LatLng
	Destinations  []LatLng
	TrafficAware  bool
	DepartureTime time.Time
}

// MatrixElement is one origin/destination pair.
// OK is false when the provider could not route the pair.
type MatrixElement struct {
	DistanceMeters  int
	DurationSeconds int
	OK              bool
}

// MatrixResult holds Rows[origin][destination]
type MatrixResult struct {
	Rows [][]MatrixElement
}

// Provider is the contract every routing backend implements
type Provider interface {
	// OptimizeWaypoints returns an optimized order and per-leg costs for the request.
	OptimizeWaypoints(ctx context.Context, req WaypointRequest) (*WaypointResult, error)
	// DistanceMatrix returns the pairwise cost grid for the request.
	DistanceMatrix(ctx context.Context, req MatrixRequest) (*MatrixResult, error)
}
