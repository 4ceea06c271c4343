package events

import (
	"context"
	"sync"
	"time"
)

// Type names an event emitted by the dispatch core
type Type string

const (
	RouteOptimized  Type = "route_optimized"
	RouteRefreshed  Type = "route_refreshed"
	StatusChanged   Type = "status_changed"
	LocationUpdated Type = "location_updated"
)

// Event is a fire-and-forget notification. Subscriber delivery and retries are the
// transport's concern, never the emitter's.
type Event struct {
	Type         Type        `json:"type"`
	DriverID     string      `json:"driver_id,omitempty"`
	DeliveryID   string      `json:"delivery_id,omitempty"`
	TrackingCode string      `json:"tracking_code,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// RouteData is the payload of route_optimized / route_refreshed
type RouteData struct {
	DeliveryIDs          []string `json:"delivery_ids"`
	Method               string   `json:"optimization_method"`
	TotalDistanceMeters  int      `json:"total_distance_meters"`
	TotalDurationSeconds int      `json:"total_duration_seconds"`
	Message              string   `json:"message,omitempty"`
}

// StatusData is the payload of status_changed
type StatusData struct {
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
	Message        string `json:"message"`
}

// LocationData is the payload of location_updated
type LocationData struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Notifier receives events. Implementations must not block the caller on slow subscribers.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop discards every event
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Multi fans an event out to every notifier in order
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// Recorder keeps every event it receives, for tests and diagnostics
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
