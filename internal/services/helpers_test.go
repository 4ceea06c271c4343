package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"dispatch-backend/internal/database"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services/routing"
)

func stopAt(id string, lat, lng float64) models.Stop {
	return models.Stop{
		ID:        id,
		Address:   id + " street",
		Latitude:  &lat,
		Longitude: &lng,
		Status:    models.StatusAssigned,
	}
}

type fakeProvider struct {
	mu sync.Mutex

	waypointResult *routing.WaypointResult
	waypointErr    error
	matrixResult   *routing.MatrixResult
	matrixErr      error

	waypointCalls int
	matrixCalls   int
	lastWaypoints routing.WaypointRequest
}

func (f *fakeProvider) OptimizeWaypoints(_ context.Context, req routing.WaypointRequest) (*routing.WaypointResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waypointCalls++
	f.lastWaypoints = req
	if f.waypointErr != nil {
		return nil, f.waypointErr
	}
	return f.waypointResult, nil
}

func (f *fakeProvider) DistanceMatrix(_ context.Context, _ routing.MatrixRequest) (*routing.MatrixResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matrixCalls++
	if f.matrixErr != nil {
		return nil, f.matrixErr
	}
	return f.matrixResult, nil
}

func idsOf(route *models.Route) []string {
	return route.StopIDs()
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// memorySessionStore mirrors the database guarantees: codes are unique across history and
// each delivery has at most one live session.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions []*models.TrackingSession

	// beforeCreate runs once, inside Create, to simulate a concurrent writer
	beforeCreate func(s *memorySessionStore)
	creates      int
}

func (m *memorySessionStore) FindActiveByDelivery(_ context.Context, deliveryID string, now time.Time) (*models.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.DeliveryID == deliveryID && s.IsLiveAt(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memorySessionStore) FindActiveByCode(_ context.Context, code string, now time.Time) (*models.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TrackingCode == code && s.IsLiveAt(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memorySessionStore) Create(_ context.Context, session *models.TrackingSession, now time.Time) error {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		hook(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	for _, s := range m.sessions {
		if s.TrackingCode == session.TrackingCode {
			return database.ErrCodeTaken
		}
		if s.DeliveryID == session.DeliveryID && s.IsLiveAt(now) {
			return database.ErrActiveSessionExists
		}
	}
	cp := *session
	m.sessions = append(m.sessions, &cp)
	return nil
}

func (m *memorySessionStore) Deactivate(_ context.Context, deliveryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.DeliveryID == deliveryID {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memorySessionStore) insert(s models.TrackingSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, &s)
}

type memoryStopStore struct {
	mu    sync.Mutex
	stops map[string]*models.Stop

	// staleWrite makes the next UpdateStatus lose to a concurrent writer
	staleWrite models.DeliveryStatus
}

func newMemoryStopStore(stops ...models.Stop) *memoryStopStore {
	m := &memoryStopStore{stops: make(map[string]*models.Stop)}
	for i := range stops {
		s := stops[i]
		m.stops[s.ID] = &s
	}
	return m
}

func (m *memoryStopStore) GetStop(_ context.Context, id string) (*models.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stops[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryStopStore) ListDriverDeliveries(_ context.Context, driverID string) ([]models.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Stop
	for _, s := range m.stops {
		if s.DriverID != nil && *s.DriverID == driverID && s.Status.IsActive() {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStopStore) UpdateStatus(_ context.Context, id string, change models.StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stops[id]
	if !ok {
		return false, nil
	}
	if m.staleWrite != "" {
		s.Status = m.staleWrite
		m.staleWrite = ""
	}
	if s.Status != change.From {
		return false, nil
	}
	s.Status = change.To
	s.UpdatedAt = change.UpdatedAt
	if change.DeliveredAt != nil {
		s.DeliveredAt = change.DeliveredAt
	}
	if change.ProofNotes != nil {
		s.ProofNotes = change.ProofNotes
	}
	if change.FailureReason != nil {
		s.FailureReason = change.FailureReason
	}
	return true, nil
}

func (m *memoryStopStore) SaveProof(_ context.Context, id, driverID string, proof models.DeliveryProof, updatedAt int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stops[id]
	if !ok || s.DriverID == nil || *s.DriverID != driverID || s.Status != models.StatusDelivered {
		return false, nil
	}
	if proof.Signature != nil {
		s.ProofSig = proof.Signature
	}
	if proof.Photo != nil {
		s.ProofPhoto = proof.Photo
	}
	if proof.Notes != nil {
		s.ProofNotes = proof.Notes
	}
	s.UpdatedAt = updatedAt
	return true, nil
}

func (m *memoryStopStore) DeliveryCounts(_ context.Context, driverID string, dayStart, dayEnd int64) (models.DeliveryCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inDay := func(ts *int64) bool { return ts != nil && *ts >= dayStart && *ts < dayEnd }

	var c models.DeliveryCounts
	for _, s := range m.stops {
		if s.DriverID == nil || *s.DriverID != driverID {
			continue
		}
		switch {
		case s.Status.IsActive():
			c.TotalAssigned++
			if inDay(s.WindowStart) {
				c.PendingToday++
			}
		case s.Status == models.StatusDelivered && inDay(s.DeliveredAt):
			c.CompletedToday++
		case s.Status == models.StatusFailed && inDay(&s.UpdatedAt):
			c.FailedToday++
		}
	}
	return c, nil
}

func (m *memoryStopStore) FindByTrackingCode(_ context.Context, code string) (*models.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stops {
		if s.TrackingCode != nil && *s.TrackingCode == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func assignedStop(id, driverID string, status models.DeliveryStatus) models.Stop {
	s := stopAt(id, 37.33, -121.89)
	s.DriverID = &driverID
	s.Status = status
	return s
}

type memoryLocationStore struct {
	mu   sync.Mutex
	locs map[string]models.DriverLocation
	puts int
}

func (m *memoryLocationStore) Upsert(_ context.Context, loc *models.DriverLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locs == nil {
		m.locs = make(map[string]models.DriverLocation)
	}
	loc.IsConnected = true
	m.locs[loc.DriverID] = *loc
	m.puts++
	return nil
}

func (m *memoryLocationStore) Get(_ context.Context, driverID string) (*models.DriverLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locs[driverID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &loc, nil
}

func (m *memoryLocationStore) SetConnected(_ context.Context, driverID string, connected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loc, ok := m.locs[driverID]; ok {
		loc.IsConnected = connected
		m.locs[driverID] = loc
	}
	return nil
}

type driverDirectory map[string]models.Driver

func (d driverDirectory) GetByID(_ context.Context, id string) (*models.Driver, error) {
	driver, ok := d[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &driver, nil
}
