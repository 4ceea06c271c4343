package models

import "time"

// RouteMethod identifies which strategy produced a route
type RouteMethod string

const (
	MethodSingleDelivery  RouteMethod = "single-delivery"
	MethodProvider        RouteMethod = "provider"
	MethodFallbackNearest RouteMethod = "fallback-nearest-neighbor"
	MethodTrafficMatrix   RouteMethod = "traffic-matrix"
)

// IsDegraded reports whether the route came from the offline heuristic rather than live provider data
func (m RouteMethod) IsDegraded() bool {
	return m == MethodFallbackNearest
}

// RouteVisit is one stop in an optimized route
type RouteVisit struct {
	Stop                       Stop       `json:"delivery"`
	VisitIndex                 int        `json:"visit_index"`
	IsFirstDelivery            bool       `json:"is_first_delivery"`
	IsLastDelivery             bool       `json:"is_last_delivery"`
	ArrivalTime                *time.Time `json:"arrival_time,omitempty"`
	DepartureTime              *time.Time `json:"departure_time,omitempty"`
	DistanceFromPreviousMeters int        `json:"distance_from_previous_meters"`
}

// Route is the output of one optimization call. It is built once and never mutated;
// a refresh produces a new Route.
type Route struct {
	Visits               []RouteVisit `json:"delivery_order"`
	TotalDistanceMeters  int          `json:"total_distance_meters"`
	TotalDurationSeconds int          `json:"total_duration_seconds"`
	TotalDeliveries      int          `json:"total_deliveries"`
	Polyline             *string      `json:"route_polyline,omitempty"`
	Method               RouteMethod  `json:"optimization_method"`
	OptimizedAt          time.Time    `json:"optimization_timestamp"`
}

// StopIDs returns the stop identifiers in visit order
func (r *Route) StopIDs() []string {
	ids := make([]string, len(r.Visits))
	for i, v := range r.Visits {
		ids[i] = v.Stop.ID
	}
	return ids
}

// OptimizeRouteRequest is the request body for POST /api/driver/route/optimize
type OptimizeRouteRequest struct {
	DeliveryIDs     []string    `json:"delivery_ids"`
	CurrentLocation *Coordinate `json:"current_location"`
	UseTraffic      bool        `json:"use_traffic"`
}

// RefreshRouteRequest is the request body for POST /api/driver/route/refresh
type RefreshRouteRequest struct {
	RemainingDeliveryIDs []string    `json:"remaining_delivery_ids"`
	CurrentLocation      *Coordinate `json:"current_location"`
	UseTraffic           bool        `json:"use_traffic"`
}
