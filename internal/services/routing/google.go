package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultGoogleBaseURL = "https://maps.googleapis.com/maps/api"

// GoogleConfig configures the Google Maps provider
type GoogleConfig struct {
	APIKey     string
	BaseURL    string        // Defaults to DefaultGoogleBaseURL
	Timeout    time.Duration // Per-request timeout, defaults to 10s
	HTTPClient *http.Client  // Optional, overrides Timeout
}

// GoogleMapsProvider talks to the Google Directions and Distance Matrix APIs
type GoogleMapsProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleMapsProvider creates a provider from cfg.
// Returns an error when no API key is configured so callers can run fallback-only.
func NewGoogleMapsProvider(cfg GoogleConfig) (*GoogleMapsProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google maps api key is empty")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &GoogleMapsProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: client,
	}, nil
}

type googleValue struct {
	Value *float64 `json:"value"`
}

// intValue returns the rounded value, or 0 when the provider omitted it
func (v *googleValue) intValue() int {
	if v == nil || v.Value == nil || *v.Value < 0 {
		return 0
	}
	return int(*v.Value + 0.5)
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		WaypointOrder    []int `json:"waypoint_order"`
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance          *googleValue `json:"distance"`
			Duration          *googleValue `json:"duration"`
			DurationInTraffic *googleValue `json:"duration_in_traffic"`
		} `json:"legs"`
	} `json:"routes"`
}

type distanceMatrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status            string       `json:"status"`
			Distance          *googleValue `json:"distance"`
			Duration          *googleValue `json:"duration"`
			DurationInTraffic *googleValue `json:"duration_in_traffic"`
		} `json:"elements"`
	} `json:"rows"`
}

// OptimizeWaypoints calls the Directions API with optimize:true and returns the reordered waypoints
func (p *GoogleMapsProvider) OptimizeWaypoints(ctx context.Context, req WaypointRequest) (*WaypointResult, error) {
	const op = "directions"

	if len(req.Waypoints) == 0 {
		return nil, &ProviderError{Kind: KindHard, Op: op, Message: "no waypoints"}
	}

	log.Printf("🗺️  [Google Maps] Optimizing route with %d waypoints", len(req.Waypoints))
	log.Printf("   Origin: (%.6f, %.6f)", req.Origin.Latitude, req.Origin.Longitude)

	points := make([]string, 0, len(req.Waypoints)+1)
	if req.Optimize {
		points = append(points, "optimize:true")
	}
	for _, wp := range req.Waypoints {
		points = append(points, formatLatLng(wp))
	}

	params := url.Values{}
	params.Set("origin", formatLatLng(req.Origin))
	params.Set("destination", formatLatLng(req.Destination))
	params.Set("waypoints", strings.Join(points, "|"))
	params.Set("mode", "driving")
	params.Set("units", "metric")
	params.Set("alternatives", "false")
	params.Set("departure_time", formatDeparture(req.DepartureTime))

	var resp directionsResponse
	if err := p.get(ctx, op, "/directions/json", params, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "OK" {
		log.Printf("   ❌ Directions API status %s: %s", resp.Status, resp.ErrorMessage)
		return nil, &ProviderError{Kind: classifyAPIStatus(resp.Status), Op: op, Status: resp.Status, Message: resp.ErrorMessage}
	}
	if len(resp.Routes) == 0 {
		return nil, &ProviderError{Kind: KindHard, Op: op, Status: resp.Status, Message: "no routes returned"}
	}

	route := resp.Routes[0]
	result := &WaypointResult{
		WaypointOrder: route.WaypointOrder,
		Legs:          make([]Leg, len(route.Legs)),
		Polyline:      route.OverviewPolyline.Points,
	}
	for i, leg := range route.Legs {
		duration := leg.Duration.intValue()
		if traffic := leg.DurationInTraffic.intValue(); traffic > 0 {
			duration = traffic
		}
		result.Legs[i] = Leg{
			DistanceMeters:  leg.Distance.intValue(),
			DurationSeconds: duration,
		}
	}

	// Without optimize:true Google omits waypoint_order; the input order stands.
	if len(result.WaypointOrder) == 0 && !req.Optimize {
		result.WaypointOrder = make([]int, len(req.Waypoints))
		for i := range result.WaypointOrder {
			result.WaypointOrder[i] = i
		}
	}

	log.Printf("   ✅ Directions optimization successful: order %v, %d legs", result.WaypointOrder, len(result.Legs))
	return result, nil
}

// DistanceMatrix calls the Distance Matrix API, preferring duration_in_traffic when requested
func (p *GoogleMapsProvider) DistanceMatrix(ctx context.Context, req MatrixRequest) (*MatrixResult, error) {
	const op = "distancematrix"

	if len(req.Origins) == 0 || len(req.Destinations) == 0 {
		return nil, &ProviderError{Kind: KindHard, Op: op, Message: "origins and destinations must be non-empty"}
	}

	log.Printf("🚦 [Google Maps] Requesting %dx%d distance matrix (traffic: %t)",
		len(req.Origins), len(req.Destinations), req.TrafficAware)

	params := url.Values{}
	params.Set("origins", joinLatLngs(req.Origins))
	params.Set("destinations", joinLatLngs(req.Destinations))
	params.Set("mode", "driving")
	params.Set("units", "metric")
	if req.TrafficAware {
		params.Set("departure_time", formatDeparture(req.DepartureTime))
		params.Set("traffic_model", "best_guess")
	}

	var resp distanceMatrixResponse
	if err := p.get(ctx, op, "/distancematrix/json", params, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "OK" {
		log.Printf("   ❌ Distance Matrix API status %s: %s", resp.Status, resp.ErrorMessage)
		return nil, &ProviderError{Kind: classifyAPIStatus(resp.Status), Op: op, Status: resp.Status, Message: resp.ErrorMessage}
	}
	if len(resp.Rows) != len(req.Origins) {
		return nil, &ProviderError{
			Kind:    KindHard,
			Op:      op,
			Message: fmt.Sprintf("expected %d rows, got %d", len(req.Origins), len(resp.Rows)),
		}
	}

	result := &MatrixResult{Rows: make([][]MatrixElement, len(resp.Rows))}
	for i, row := range resp.Rows {
		if len(row.Elements) != len(req.Destinations) {
			return nil, &ProviderError{
				Kind:    KindHard,
				Op:      op,
				Message: fmt.Sprintf("row %d: expected %d elements, got %d", i, len(req.Destinations), len(row.Elements)),
			}
		}
		result.Rows[i] = make([]MatrixElement, len(row.Elements))
		for j, el := range row.Elements {
			duration := el.Duration.intValue()
			if req.TrafficAware {
				if traffic := el.DurationInTraffic.intValue(); traffic > 0 {
					duration = traffic
				}
			}
			result.Rows[i][j] = MatrixElement{
				DistanceMeters:  el.Distance.intValue(),
				DurationSeconds: duration,
				OK:              el.Status == "OK",
			}
		}
	}

	return result, nil
}

// get performs a GET request and decodes the JSON body into out
func (p *GoogleMapsProvider) get(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	params.Set("key", p.apiKey)
	fullURL := p.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return &ProviderError{Kind: KindHard, Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		kind := classifyTransportError(ctx, err)
		log.Printf("   ❌ %s request failed (%s): %v", op, kind, err)
		return &ProviderError{Kind: kind, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Kind: classifyTransportError(ctx, err), Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("   ❌ %s API error (%d): %s", op, resp.StatusCode, string(body))
		return &ProviderError{
			Kind:       classifyHTTPStatus(resp.StatusCode),
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		log.Printf("   ❌ Failed to parse %s response: %v", op, err)
		return &ProviderError{Kind: KindHard, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

func formatLatLng(p LatLng) string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

func joinLatLngs(points []LatLng) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = formatLatLng(p)
	}
	return strings.Join(parts, "|")
}

func formatDeparture(t time.Time) string {
	if t.IsZero() {
		return "now"
	}
	return strconv.FormatInt(t.Unix(), 10)
}
