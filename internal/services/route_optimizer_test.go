package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch-backend/internal/events"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services/routing"
)

var testClock = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestOptimizer(p routing.Provider, n events.Notifier) *RouteOptimizer {
	return NewRouteOptimizer(p, n, RouteOptimizerConfig{
		Now: func() time.Time { return testClock },
	})
}

func threeStops() []models.Stop {
	return []models.Stop{
		stopAt("s0", 37.33, -121.89),
		stopAt("s1", 37.34, -121.90),
		stopAt("s2", 37.35, -121.91),
	}
}

var depot = models.Coordinate{Latitude: 37.30, Longitude: -121.85}

func TestOptimizeUsesProviderOrder(t *testing.T) {
	provider := &fakeProvider{
		waypointResult: &routing.WaypointResult{
			WaypointOrder: []int{2, 0, 1},
			Legs: []routing.Leg{
				{DistanceMeters: 1000, DurationSeconds: 100},
				{DistanceMeters: 2000, DurationSeconds: 200},
				{DistanceMeters: 3000, DurationSeconds: 300},
				{DistanceMeters: 4000, DurationSeconds: 400},
			},
			Polyline: "enc",
		},
	}
	ro := newTestOptimizer(provider, nil)

	route, err := ro.Optimize(context.Background(), threeStops(), depot, OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := idsOf(route), []string{"s2", "s0", "s1"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if route.Method != models.MethodProvider {
		t.Fatalf("method = %s, want provider", route.Method)
	}
	// Totals include the leg back to the start
	if route.TotalDistanceMeters != 10000 || route.TotalDurationSeconds != 1000 {
		t.Fatalf("totals = %dm/%ds, want 10000m/1000s", route.TotalDistanceMeters, route.TotalDurationSeconds)
	}
	if route.Polyline == nil || *route.Polyline != "enc" {
		t.Fatalf("polyline = %v, want enc", route.Polyline)
	}
	if provider.lastWaypoints.Origin != provider.lastWaypoints.Destination {
		t.Fatalf("expected closed loop request, got %+v", provider.lastWaypoints)
	}

	// arrival = previous departure + leg; departure = arrival + 300s service
	wantArrivals := []time.Duration{100 * time.Second, 600 * time.Second, 1200 * time.Second}
	for i, want := range wantArrivals {
		got := route.Visits[i].ArrivalTime.Sub(testClock)
		if got != want {
			t.Fatalf("visit %d arrival offset = %v, want %v", i, got, want)
		}
		if d := route.Visits[i].DepartureTime.Sub(*route.Visits[i].ArrivalTime); d != DefaultServiceTime {
			t.Fatalf("visit %d dwell = %v, want %v", i, d, DefaultServiceTime)
		}
	}
	if route.Visits[1].DistanceFromPreviousMeters != 2000 {
		t.Fatalf("distance from previous = %d, want 2000", route.Visits[1].DistanceFromPreviousMeters)
	}
	if !route.Visits[0].IsFirstDelivery || !route.Visits[2].IsLastDelivery {
		t.Fatalf("first/last flags wrong")
	}
}

func TestOptimizeFallsBackOnTransientFailure(t *testing.T) {
	kinds := []routing.ErrorKind{
		routing.KindRateLimited,
		routing.KindForbidden,
		routing.KindTimeout,
		routing.KindUnavailable,
	}

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			provider := &fakeProvider{waypointErr: &routing.ProviderError{Kind: kind, Op: "directions"}}
			ro := newTestOptimizer(provider, nil)

			route, err := ro.Optimize(context.Background(), threeStops(), depot, OptimizeOptions{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if route.Method != models.MethodFallbackNearest {
				t.Fatalf("method = %s, want fallback", route.Method)
			}
			if len(route.Visits) != 3 {
				t.Fatalf("visits = %d, want 3", len(route.Visits))
			}
			if !route.Method.IsDegraded() {
				t.Fatalf("fallback route should be flagged degraded")
			}
		})
	}
}

func TestOptimizeReturnsHardFailure(t *testing.T) {
	provider := &fakeProvider{waypointErr: &routing.ProviderError{Kind: routing.KindHard, Op: "directions", Status: "INVALID_REQUEST"}}
	ro := newTestOptimizer(provider, nil)

	_, err := ro.Optimize(context.Background(), threeStops(), depot, OptimizeOptions{})
	if !errors.Is(err, ErrProviderHard) {
		t.Fatalf("err = %v, want ErrProviderHard", err)
	}
	if routing.IsTransient(err) {
		t.Fatalf("hard failure reported as transient")
	}
}

func TestOptimizeRejectsMalformedPermutation(t *testing.T) {
	provider := &fakeProvider{
		waypointResult: &routing.WaypointResult{WaypointOrder: []int{0, 0, 1}},
	}
	ro := newTestOptimizer(provider, nil)

	if _, err := ro.Optimize(context.Background(), threeStops(), depot, OptimizeOptions{}); !errors.Is(err, ErrProviderHard) {
		t.Fatalf("err = %v, want ErrProviderHard", err)
	}
}

func TestOptimizeSingleStopSkipsProvider(t *testing.T) {
	provider := &fakeProvider{}
	ro := newTestOptimizer(provider, nil)

	stops := []models.Stop{stopAt("only", 37.33, -121.89), {ID: "nocoords"}}
	route, err := ro.Optimize(context.Background(), stops, depot, OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.waypointCalls != 0 {
		t.Fatalf("provider called %d times, want 0", provider.waypointCalls)
	}
	if route.Method != models.MethodSingleDelivery || route.TotalDistanceMeters != 0 {
		t.Fatalf("route = %+v, want single-delivery with zero distance", route)
	}
	if !route.Visits[0].IsFirstDelivery || !route.Visits[0].IsLastDelivery {
		t.Fatalf("single visit must be first and last")
	}
}

func TestOptimizeValidation(t *testing.T) {
	provider := &fakeProvider{}
	ro := newTestOptimizer(provider, nil)
	ctx := context.Background()

	_, err := ro.Optimize(ctx, []models.Stop{{ID: "a"}, stopAt("b", 120, 0)}, depot, OptimizeOptions{})
	if !errors.Is(err, ErrNoValidStops) || !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrNoValidStops", err)
	}

	_, err = ro.Optimize(ctx, threeStops(), models.Coordinate{Latitude: 91}, OptimizeOptions{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}

	if provider.waypointCalls != 0 {
		t.Fatalf("provider must not be called on invalid input")
	}
}

func TestOptimizeWithoutProviderUsesNearestNeighbor(t *testing.T) {
	ro := newTestOptimizer(nil, nil)

	route, err := ro.Optimize(context.Background(), threeStops(), depot, OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Method != models.MethodFallbackNearest {
		t.Fatalf("method = %s, want fallback", route.Method)
	}
	if got, want := idsOf(route), []string{"s0", "s1", "s2"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func matrixOf(seconds [][]int) *routing.MatrixResult {
	rows := make([][]routing.MatrixElement, len(seconds))
	for i, row := range seconds {
		rows[i] = make([]routing.MatrixElement, len(row))
		for j, s := range row {
			rows[i][j] = routing.MatrixElement{DistanceMeters: s * 10, DurationSeconds: s, OK: true}
		}
	}
	return &routing.MatrixResult{Rows: rows}
}

func TestOptimizeWithTrafficSequencesMatrix(t *testing.T) {
	provider := &fakeProvider{
		matrixResult: matrixOf([][]int{
			{0, 5, 1, 9},
			{5, 0, 4, 2},
			{1, 4, 0, 3},
			{9, 2, 3, 0},
		}),
	}
	recorder := &events.Recorder{}
	ro := newTestOptimizer(provider, recorder)

	route, err := ro.OptimizeWithTraffic(context.Background(), threeStops(), depot, OptimizeOptions{DriverID: "drv-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Matrix index i+1 is stop s{i}; greedy path [0,2,3,1]
	if got, want := idsOf(route), []string{"s1", "s2", "s0"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if route.Method != models.MethodTrafficMatrix {
		t.Fatalf("method = %s, want traffic-matrix", route.Method)
	}
	if route.TotalDurationSeconds != 6 || route.TotalDistanceMeters != 60 {
		t.Fatalf("totals = %dm/%ds, want 60m/6s", route.TotalDistanceMeters, route.TotalDurationSeconds)
	}
	if provider.waypointCalls != 0 {
		t.Fatalf("waypoint strategy should not run")
	}
	if n := len(recorder.OfType(events.RouteOptimized)); n != 1 {
		t.Fatalf("route_optimized events = %d, want 1", n)
	}
}

func TestOptimizeWithTrafficUnreachablePairs(t *testing.T) {
	result := matrixOf([][]int{
		{0, 5, 1, 9},
		{5, 0, 4, 2},
		{1, 4, 0, 3},
		{9, 2, 3, 0},
	})
	result.Rows[0][2].OK = false

	provider := &fakeProvider{matrixResult: result}
	ro := newTestOptimizer(provider, nil)

	route, err := ro.OptimizeWithTraffic(context.Background(), threeStops(), depot, OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0->2 is unreachable so 0->1 (5) wins, then 1->3 (2), then 3->2 (3)
	if got, want := idsOf(route), []string{"s0", "s2", "s1"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if route.TotalDurationSeconds != 10 {
		t.Fatalf("duration = %d, want 10", route.TotalDurationSeconds)
	}
}

func TestOptimizeWithTrafficHardMatrixUsesWaypoints(t *testing.T) {
	provider := &fakeProvider{
		matrixErr: &routing.ProviderError{Kind: routing.KindHard, Op: "distancematrix", Status: "MAX_ELEMENTS_EXCEEDED"},
		waypointResult: &routing.WaypointResult{
			WaypointOrder: []int{1, 2, 0},
			Legs:          []routing.Leg{{DistanceMeters: 1}, {DistanceMeters: 1}, {DistanceMeters: 1}, {DistanceMeters: 1}},
		},
	}
	ro := newTestOptimizer(provider, nil)

	route, err := ro.OptimizeWithTraffic(context.Background(), threeStops(), depot, OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Method != models.MethodProvider {
		t.Fatalf("method = %s, want provider", route.Method)
	}
	if got, want := idsOf(route), []string{"s1", "s2", "s0"}; !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestOptimizeWithTrafficTransientMatrixFallsBack(t *testing.T) {
	provider := &fakeProvider{matrixErr: &routing.ProviderError{Kind: routing.KindRateLimited, Op: "distancematrix"}}
	ro := newTestOptimizer(provider, nil)

	route, err := ro.OptimizeWithTraffic(context.Background(), threeStops(), depot, OptimizeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Method != models.MethodFallbackNearest {
		t.Fatalf("method = %s, want fallback", route.Method)
	}
	if provider.waypointCalls != 0 {
		t.Fatalf("waypoint strategy should not run after a transient matrix failure")
	}
}

func TestRefreshOnlyUsesRemainingStops(t *testing.T) {
	recorder := &events.Recorder{}
	ro := newTestOptimizer(nil, recorder)

	remaining := threeStops()[1:]
	current := models.Coordinate{Latitude: 37.335, Longitude: -121.895}

	route, err := ro.Refresh(context.Background(), remaining, current, RefreshOptions{
		OptimizeOptions: OptimizeOptions{DriverID: "drv-7"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range idsOf(route) {
		if id == "s0" {
			t.Fatalf("completed stop s0 reintroduced: %v", idsOf(route))
		}
	}

	refreshed := recorder.OfType(events.RouteRefreshed)
	if len(refreshed) != 1 {
		t.Fatalf("route_refreshed events = %d, want 1", len(refreshed))
	}
	if refreshed[0].DriverID != "drv-7" {
		t.Fatalf("event driver = %s, want drv-7", refreshed[0].DriverID)
	}
	data, ok := refreshed[0].Data.(events.RouteData)
	if !ok || !equalIDs(data.DeliveryIDs, idsOf(route)) {
		t.Fatalf("event payload = %+v", refreshed[0].Data)
	}
	if len(recorder.OfType(events.RouteOptimized)) != 0 {
		t.Fatalf("refresh must not emit route_optimized")
	}
}

func TestOptimizeWithoutDriverEmitsNothing(t *testing.T) {
	recorder := &events.Recorder{}
	ro := newTestOptimizer(nil, recorder)

	if _, err := ro.Optimize(context.Background(), threeStops(), depot, OptimizeOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(recorder.Events()); n != 0 {
		t.Fatalf("events = %d, want 0", n)
	}
}

func TestEstimateArrival(t *testing.T) {
	from := models.Coordinate{Latitude: 0, Longitude: 0}
	to := models.Coordinate{Latitude: 0, Longitude: 0.01}

	ro := newTestOptimizer(nil, nil)
	eta, err := ro.EstimateArrival(context.Background(), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eta.IsRealtime {
		t.Fatalf("estimate without provider must not be realtime")
	}
	if eta.DurationRemainingSeconds != estimateDurationSeconds(haversineDistance(0, 0, 0, 0.01)) {
		t.Fatalf("duration = %d", eta.DurationRemainingSeconds)
	}

	provider := &fakeProvider{matrixResult: matrixOf([][]int{{420}})}
	ro = newTestOptimizer(provider, nil)
	eta, err = ro.EstimateArrival(context.Background(), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eta.IsRealtime || eta.DurationRemainingSeconds != 420 {
		t.Fatalf("eta = %+v, want realtime 420s", eta)
	}
	if !eta.EstimatedArrival.Equal(testClock.Add(420 * time.Second)) {
		t.Fatalf("arrival = %v", eta.EstimatedArrival)
	}
}
