package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"dispatch-backend/internal/events"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services/routing"
)

// DefaultServiceTime is the dwell time assumed at every stop
const DefaultServiceTime = 300 * time.Second

// RouteOptimizer turns a driver's deliveries into an ordered route. It prefers the
// external provider and degrades to PlanNearestNeighbor when the provider is rate limited,
// forbidden, timing out or unavailable. It holds no per-request state.
type RouteOptimizer struct {
	provider    routing.Provider
	notifier    events.Notifier
	serviceTime time.Duration
	now         func() time.Time
}

// RouteOptimizerConfig tunes a RouteOptimizer
type RouteOptimizerConfig struct {
	ServiceTime time.Duration
	Now         func() time.Time
}

// NewRouteOptimizer creates a new route optimizer. A nil provider means every request
// uses the nearest-neighbor heuristic.
func NewRouteOptimizer(provider routing.Provider, notifier events.Notifier, cfg RouteOptimizerConfig) *RouteOptimizer {
	if notifier == nil {
		notifier = events.Nop{}
	}
	if cfg.ServiceTime <= 0 {
		cfg.ServiceTime = DefaultServiceTime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RouteOptimizer{
		provider:    provider,
		notifier:    notifier,
		serviceTime: cfg.ServiceTime,
		now:         cfg.Now,
	}
}

// OptimizeOptions carries per-request context that does not change the ordering
type OptimizeOptions struct {
	// DriverID, when set, receives a route event after a successful optimization
	DriverID string
	// DepartureTime anchors visit arrival times; zero means now
	DepartureTime time.Time
}

// RefreshOptions extends OptimizeOptions for mid-route re-planning
type RefreshOptions struct {
	OptimizeOptions
	UseTraffic bool
}

// Optimize orders stops starting from start.
//
// Stops without valid coordinates are dropped; if none remain ErrNoValidStops is returned.
// A single valid stop is returned without a provider call. Transient provider failures fall
// back to nearest-neighbor; hard failures are returned wrapped in ErrProviderHard.
func (ro *RouteOptimizer) Optimize(ctx context.Context, stops []models.Stop, start models.Coordinate, opts OptimizeOptions) (*models.Route, error) {
	route, err := ro.optimize(ctx, stops, start, opts)
	if err != nil {
		return nil, err
	}
	ro.emitRoute(ctx, events.RouteOptimized, opts.DriverID, route, "Route optimized")
	return route, nil
}

// Refresh re-plans the remaining stops from the driver's current position. Stops not in
// remaining are never reintroduced. With UseTraffic the traffic-aware strategy runs first.
func (ro *RouteOptimizer) Refresh(ctx context.Context, remaining []models.Stop, current models.Coordinate, opts RefreshOptions) (*models.Route, error) {
	log.Printf("🔄 [ROUTING] Refreshing route for %d remaining deliveries (traffic: %v)", len(remaining), opts.UseTraffic)

	var (
		route *models.Route
		err   error
	)
	if opts.UseTraffic {
		route, err = ro.optimizeWithTraffic(ctx, remaining, current, opts.OptimizeOptions)
	} else {
		route, err = ro.optimize(ctx, remaining, current, opts.OptimizeOptions)
	}
	if err != nil {
		return nil, err
	}

	ro.emitRoute(ctx, events.RouteRefreshed, opts.DriverID, route, "Route has been updated based on current conditions")
	return route, nil
}

// OptimizeWithTraffic orders stops by traffic-weighted travel time. It asks the provider
// for a square duration matrix over [current, stops...] and sequences it greedily.
// A hard matrix failure drops back to the waypoint strategy; a transient one to nearest-neighbor.
func (ro *RouteOptimizer) OptimizeWithTraffic(ctx context.Context, stops []models.Stop, current models.Coordinate, opts OptimizeOptions) (*models.Route, error) {
	route, err := ro.optimizeWithTraffic(ctx, stops, current, opts)
	if err != nil {
		return nil, err
	}
	ro.emitRoute(ctx, events.RouteOptimized, opts.DriverID, route, "Route optimized with live traffic")
	return route, nil
}

// EstimateArrival returns the remaining distance and duration between two points. Without
// live data it estimates from straight-line distance at the fallback speed.
func (ro *RouteOptimizer) EstimateArrival(ctx context.Context, from, to models.Coordinate) (*models.ETAResponse, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: invalid coordinates for arrival estimate", ErrInvalidInput)
	}

	now := ro.now()
	if ro.provider != nil {
		res, err := ro.provider.DistanceMatrix(ctx, routing.MatrixRequest{
			Origins:       []routing.LatLng{toLatLng(from)},
			Destinations:  []routing.LatLng{toLatLng(to)},
			TrafficAware:  true,
			DepartureTime: now,
		})
		switch {
		case err == nil && len(res.Rows) == 1 && len(res.Rows[0]) == 1 && res.Rows[0][0].OK:
			el := res.Rows[0][0]
			return &models.ETAResponse{
				IsRealtime:               true,
				DistanceRemainingMeters:  el.DistanceMeters,
				DurationRemainingSeconds: el.DurationSeconds,
				EstimatedArrival:         now.Add(time.Duration(el.DurationSeconds) * time.Second),
			}, nil
		case err != nil && !routing.IsTransient(err):
			return nil, fmt.Errorf("%w: %w", ErrProviderHard, err)
		case err != nil:
			log.Printf("⚠️  [ROUTING] ETA lookup degraded to estimate: %v", err)
		}
	}

	meters := distanceBetween(from, to)
	seconds := estimateDurationSeconds(meters)
	return &models.ETAResponse{
		IsRealtime:               false,
		DistanceRemainingMeters:  int(math.Round(meters)),
		DurationRemainingSeconds: seconds,
		EstimatedArrival:         now.Add(time.Duration(seconds) * time.Second),
	}, nil
}

func (ro *RouteOptimizer) optimize(ctx context.Context, stops []models.Stop, start models.Coordinate, opts OptimizeOptions) (*models.Route, error) {
	valid, err := prepareStops(stops, start)
	if err != nil {
		return nil, err
	}

	log.Printf("🎯 [ROUTING] Optimizing %d deliveries from (%.6f, %.6f)", len(valid), start.Latitude, start.Longitude)

	if len(valid) == 1 {
		return ro.singleDelivery(valid[0]), nil
	}

	if ro.provider == nil {
		log.Printf("⚠️  [ROUTING] No route provider configured, using nearest-neighbor")
		return ro.fallback(valid, start, opts), nil
	}

	route, err := ro.optimizeWithProvider(ctx, valid, start, opts)
	if err == nil {
		logRoute(route)
		return route, nil
	}
	if routing.IsTransient(err) {
		log.Printf("⚠️  [ROUTING] Provider unavailable (%v), falling back to nearest-neighbor", err)
		return ro.fallback(valid, start, opts), nil
	}

	log.Printf("❌ [ROUTING] Provider failed: %v", err)
	return nil, fmt.Errorf("%w: %w", ErrProviderHard, err)
}

func (ro *RouteOptimizer) optimizeWithTraffic(ctx context.Context, stops []models.Stop, current models.Coordinate, opts OptimizeOptions) (*models.Route, error) {
	valid, err := prepareStops(stops, current)
	if err != nil {
		return nil, err
	}
	if len(valid) == 1 {
		return ro.singleDelivery(valid[0]), nil
	}
	if ro.provider == nil {
		return ro.fallback(valid, current, opts), nil
	}

	log.Printf("🚦 [ROUTING] Building traffic matrix for %d deliveries", len(valid))

	route, err := ro.trafficMatrixRoute(ctx, valid, current, opts)
	if err == nil {
		logRoute(route)
		return route, nil
	}
	if routing.IsTransient(err) {
		log.Printf("⚠️  [ROUTING] Traffic matrix unavailable (%v), falling back to nearest-neighbor", err)
		return ro.fallback(valid, current, opts), nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderHard, err)
	}

	log.Printf("⚠️  [ROUTING] Traffic matrix failed (%v), using waypoint optimization", err)
	return ro.optimize(ctx, valid, current, opts)
}

// optimizeWithProvider runs the waypoint strategy: a closed loop from start back to start
// with every stop as an optimizable waypoint. Totals include the return leg.
func (ro *RouteOptimizer) optimizeWithProvider(ctx context.Context, stops []models.Stop, start models.Coordinate, opts OptimizeOptions) (*models.Route, error) {
	waypoints := make([]routing.LatLng, len(stops))
	for i, s := range stops {
		c, _ := s.Coordinate()
		waypoints[i] = toLatLng(c)
	}

	departure := ro.departure(opts)
	res, err := ro.provider.OptimizeWaypoints(ctx, routing.WaypointRequest{
		Origin:        toLatLng(start),
		Destination:   toLatLng(start),
		Waypoints:     waypoints,
		Optimize:      true,
		DepartureTime: departure,
	})
	if err != nil {
		return nil, err
	}

	if !isPermutation(res.WaypointOrder, len(stops)) {
		return nil, &routing.ProviderError{
			Kind:    routing.KindHard,
			Op:      "directions",
			Message: fmt.Sprintf("waypoint order %v is not a permutation of %d stops", res.WaypointOrder, len(stops)),
		}
	}

	ordered := make([]models.Stop, len(stops))
	for i, idx := range res.WaypointOrder {
		ordered[i] = stops[idx]
	}

	visits := buildVisits(ordered)
	totalDistance, totalDuration := 0, 0
	for _, leg := range res.Legs {
		totalDistance += leg.DistanceMeters
		totalDuration += leg.DurationSeconds
	}

	legDurations := make([]int, len(visits))
	for i := range visits {
		if i < len(res.Legs) {
			visits[i].DistanceFromPreviousMeters = res.Legs[i].DistanceMeters
			legDurations[i] = res.Legs[i].DurationSeconds
		}
	}
	ro.scheduleVisits(visits, legDurations, departure)

	route := &models.Route{
		Visits:               visits,
		TotalDistanceMeters:  totalDistance,
		TotalDurationSeconds: totalDuration,
		TotalDeliveries:      len(visits),
		Method:               models.MethodProvider,
		OptimizedAt:          ro.now(),
	}
	if res.Polyline != "" {
		polyline := res.Polyline
		route.Polyline = &polyline
	}
	return route, nil
}

// trafficMatrixRoute sequences a square traffic-weighted duration matrix where index 0 is
// the current position. Unreachable pairs cost +Inf and add nothing to the totals.
func (ro *RouteOptimizer) trafficMatrixRoute(ctx context.Context, stops []models.Stop, current models.Coordinate, opts OptimizeOptions) (*models.Route, error) {
	points := make([]routing.LatLng, 0, len(stops)+1)
	points = append(points, toLatLng(current))
	for _, s := range stops {
		c, _ := s.Coordinate()
		points = append(points, toLatLng(c))
	}

	departure := ro.departure(opts)
	res, err := ro.provider.DistanceMatrix(ctx, routing.MatrixRequest{
		Origins:       points,
		Destinations:  points,
		TrafficAware:  true,
		DepartureTime: departure,
	})
	if err != nil {
		return nil, err
	}

	n := len(points)
	if len(res.Rows) != n {
		return nil, &routing.ProviderError{Kind: routing.KindHard, Op: "distancematrix", Message: "matrix size does not match request"}
	}
	cost := make([][]float64, n)
	for i, row := range res.Rows {
		if len(row) != n {
			return nil, &routing.ProviderError{Kind: routing.KindHard, Op: "distancematrix", Message: "matrix size does not match request"}
		}
		cost[i] = make([]float64, n)
		for j, el := range row {
			switch {
			case i == j:
				cost[i][j] = 0
			case el.OK:
				cost[i][j] = float64(el.DurationSeconds)
			default:
				cost[i][j] = math.Inf(1)
			}
		}
	}

	path, err := SequenceGreedy(cost, 0)
	if err != nil {
		return nil, err
	}

	ordered := make([]models.Stop, 0, len(stops))
	for _, idx := range path[1:] {
		ordered = append(ordered, stops[idx-1])
	}

	visits := buildVisits(ordered)
	legDurations := make([]int, len(visits))
	totalDistance, totalDuration := 0, 0
	prev := 0
	for i, idx := range path[1:] {
		el := res.Rows[prev][idx]
		if el.OK {
			visits[i].DistanceFromPreviousMeters = el.DistanceMeters
			legDurations[i] = el.DurationSeconds
			totalDistance += el.DistanceMeters
			totalDuration += el.DurationSeconds
		}
		prev = idx
	}
	ro.scheduleVisits(visits, legDurations, departure)

	return &models.Route{
		Visits:               visits,
		TotalDistanceMeters:  totalDistance,
		TotalDurationSeconds: totalDuration,
		TotalDeliveries:      len(visits),
		Method:               models.MethodTrafficMatrix,
		OptimizedAt:          ro.now(),
	}, nil
}

func (ro *RouteOptimizer) fallback(stops []models.Stop, start models.Coordinate, opts OptimizeOptions) *models.Route {
	route := PlanNearestNeighbor(stops, start)
	route.OptimizedAt = ro.now()

	legDurations := make([]int, len(route.Visits))
	for i, v := range route.Visits {
		legDurations[i] = estimateDurationSeconds(float64(v.DistanceFromPreviousMeters))
	}
	ro.scheduleVisits(route.Visits, legDurations, ro.departure(opts))

	logRoute(route)
	return route
}

func (ro *RouteOptimizer) singleDelivery(stop models.Stop) *models.Route {
	log.Printf("📍 [ROUTING] Single delivery %s, skipping optimization", stop.ID)
	return &models.Route{
		Visits:          buildVisits([]models.Stop{stop}),
		TotalDeliveries: 1,
		Method:          models.MethodSingleDelivery,
		OptimizedAt:     ro.now(),
	}
}

// scheduleVisits fills arrival and departure times: each arrival is the previous departure
// plus the leg's travel time, and each departure adds the service time.
func (ro *RouteOptimizer) scheduleVisits(visits []models.RouteVisit, legDurations []int, departure time.Time) {
	clock := departure
	for i := range visits {
		arrival := clock.Add(time.Duration(legDurations[i]) * time.Second)
		leave := arrival.Add(ro.serviceTime)
		visits[i].ArrivalTime = &arrival
		visits[i].DepartureTime = &leave
		clock = leave
	}
}

func (ro *RouteOptimizer) departure(opts OptimizeOptions) time.Time {
	if !opts.DepartureTime.IsZero() {
		return opts.DepartureTime
	}
	return ro.now()
}

func (ro *RouteOptimizer) emitRoute(ctx context.Context, t events.Type, driverID string, route *models.Route, message string) {
	if driverID == "" {
		return
	}
	ro.notifier.Notify(ctx, events.Event{
		Type:     t,
		DriverID: driverID,
		Data: events.RouteData{
			DeliveryIDs:          route.StopIDs(),
			Method:               string(route.Method),
			TotalDistanceMeters:  route.TotalDistanceMeters,
			TotalDurationSeconds: route.TotalDurationSeconds,
			Message:              message,
		},
		Timestamp: ro.now(),
	})
}

// prepareStops validates the start and keeps stops with usable coordinates.
// Duplicate stop IDs keep their first occurrence.
func prepareStops(stops []models.Stop, start models.Coordinate) ([]models.Stop, error) {
	if !start.Valid() {
		return nil, fmt.Errorf("%w: start location (%v, %v) out of range", ErrInvalidInput, start.Latitude, start.Longitude)
	}

	seen := make(map[string]bool, len(stops))
	valid := make([]models.Stop, 0, len(stops))
	for _, s := range stops {
		if _, ok := s.Coordinate(); !ok {
			log.Printf("⚠️  [ROUTING] Skipping delivery %s: missing or invalid coordinates", s.ID)
			continue
		}
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		valid = append(valid, s)
	}

	if len(valid) == 0 {
		return nil, ErrNoValidStops
	}
	return valid, nil
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

func toLatLng(c models.Coordinate) routing.LatLng {
	return routing.LatLng{Latitude: c.Latitude, Longitude: c.Longitude}
}
