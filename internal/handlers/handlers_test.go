package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"dispatch-backend/internal/database"
	"dispatch-backend/internal/middleware"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services"

	"golang.org/x/crypto/bcrypt"
)

type fakeStops struct {
	stops  []models.Stop
	driver string
	ids    []string
}

func (f *fakeStops) ActiveStopsForDriver(ctx context.Context, driverID string, ids []string) ([]models.Stop, error) {
	f.driver = driverID
	f.ids = ids
	return f.stops, nil
}

type fakeLastLocation struct {
	loc *models.DriverLocation
}

func (f *fakeLastLocation) Get(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	if f.loc == nil {
		return nil, database.ErrNotFound
	}
	return f.loc, nil
}

type fakeUsers map[string]*models.Driver

func (f fakeUsers) GetByEmail(ctx context.Context, email string) (*models.Driver, error) {
	if u, ok := f[email]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func stopAt(id string, lat, lng float64) models.Stop {
	return models.Stop{ID: id, Latitude: &lat, Longitude: &lng, Status: models.StatusAssigned}
}

func driverRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", bytes.NewBufferString(body))
	ctx := middleware.WithUser(req.Context(), middleware.UserClaims{UserID: "driver-1", Role: models.RoleDriver})
	return req.WithContext(ctx)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestOptimizeRouteRequiresCurrentLocation(t *testing.T) {
	handler := OptimizeRoute(&fakeStops{}, services.NewRouteOptimizer(nil, nil, services.RouteOptimizerConfig{}))

	rec := httptest.NewRecorder()
	handler(rec, driverRequest(http.MethodPost, `{"delivery_ids":["a","b"]}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Success || env.Error == "" {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestOptimizeRouteFallsBackWithoutProvider(t *testing.T) {
	stops := &fakeStops{stops: []models.Stop{
		stopAt("far", 37.50, -122.10),
		stopAt("near", 37.31, -121.86),
	}}
	handler := OptimizeRoute(stops, services.NewRouteOptimizer(nil, nil, services.RouteOptimizerConfig{}))

	rec := httptest.NewRecorder()
	handler(rec, driverRequest(http.MethodPost,
		`{"delivery_ids":["far","near"],"current_location":{"lat":37.30,"lng":-121.85}}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if stops.driver != "driver-1" || len(stops.ids) != 2 {
		t.Fatalf("stops loaded for %q %v", stops.driver, stops.ids)
	}

	var route models.Route
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &route); err != nil {
		t.Fatalf("decode route: %v", err)
	}
	if route.Method != models.MethodFallbackNearest {
		t.Fatalf("method = %s, want %s", route.Method, models.MethodFallbackNearest)
	}
	if len(route.Visits) != 2 || route.Visits[0].Stop.ID != "near" {
		t.Fatalf("unexpected order: %+v", route.Visits)
	}
}

func TestRefreshRouteUsesLastKnownLocation(t *testing.T) {
	stops := &fakeStops{stops: []models.Stop{stopAt("only", 37.31, -121.86)}}
	locations := &fakeLastLocation{loc: &models.DriverLocation{DriverID: "driver-1", Latitude: 37.30, Longitude: -121.85}}
	handler := RefreshRoute(stops, locations, services.NewRouteOptimizer(nil, nil, services.RouteOptimizerConfig{}))

	rec := httptest.NewRecorder()
	handler(rec, driverRequest(http.MethodPost, `{"remaining_delivery_ids":["only"]}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshRouteWithoutAnyLocation(t *testing.T) {
	handler := RefreshRoute(&fakeStops{}, &fakeLastLocation{}, services.NewRouteOptimizer(nil, nil, services.RouteOptimizerConfig{}))

	rec := httptest.NewRecorder()
	handler(rec, driverRequest(http.MethodPost, `{"remaining_delivery_ids":["only"]}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	users := fakeUsers{"driver@example.com": {
		ID:       "driver-1",
		Email:    "driver@example.com",
		Password: string(hash),
		Name:     "Dana",
		Role:     models.RoleDriver,
	}}
	handler := Login(users, "test-secret")

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"email":" Driver@Example.com ","password":"secret"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	claims, err := middleware.ParseToken("test-secret", resp.Token)
	if err != nil {
		t.Fatalf("token does not parse: %v", err)
	}
	if claims.UserID != "driver-1" || claims.Role != models.RoleDriver {
		t.Fatalf("claims = %+v", claims)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"email":"driver@example.com","password":"wrong"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&services.TransitionError{From: models.StatusDelivered, To: models.StatusInTransit}, http.StatusBadRequest},
		{services.ErrNoValidStops, http.StatusBadRequest},
		{fmt.Errorf("lat out of range: %w", services.ErrInvalidInput), http.StatusBadRequest},
		{services.ErrDeliveryNotFound, http.StatusNotFound},
		{database.ErrNotFound, http.StatusNotFound},
		{services.ErrDeliveryNotCompleted, http.StatusNotFound},
		{services.ErrSessionNotFound, http.StatusNotFound},
		{services.ErrTrackingDisabled, http.StatusServiceUnavailable},
		{services.ErrLocationUnavailable, http.StatusNotFound},
		{fmt.Errorf("%w: boom", services.ErrProviderHard), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		respondServiceError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}
