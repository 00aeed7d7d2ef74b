// Package store holds the shared in-memory collections backing the
// negotiation flows. Live state is memory-only and lost on restart; that is
// a documented property of the system, not an omission.
package store

import (
	"sort"
	"sync"

	"github.com/example/ride-negotiation/internal/models"
)

// Store is passed explicitly to every flow component; there is no ambient
// package-level state.
type Store struct {
	mu         sync.RWMutex
	passengers map[string]*models.Passenger
	drivers    map[string]*models.Driver
	requests   map[string]*models.TripRequest // open requests
	trips      map[string]*models.OngoingTrip // active trips
	completed  []*models.OngoingTrip
}

func New() *Store {
	return &Store{
		passengers: make(map[string]*models.Passenger),
		drivers:    make(map[string]*models.Driver),
		requests:   make(map[string]*models.TripRequest),
		trips:      make(map[string]*models.OngoingTrip),
	}
}

func (s *Store) AddPassenger(p *models.Passenger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passengers[p.ID] = p
}

func (s *Store) AddDriver(d *models.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[d.ID] = d
}

func (s *Store) Passenger(id string) (*models.Passenger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.passengers[id]
	return p, ok
}

func (s *Store) Driver(id string) (*models.Driver, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	return d, ok
}

// Drivers returns the roster sorted by id for stable listings.
func (s *Store) Drivers() []*models.Driver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EligibleDrivers returns online, approved drivers: the simulator candidate
// pool and the set notified of new open requests.
func (s *Store) EligibleDrivers() []models.Driver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		if d.Eligible() {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) AddRequest(r *models.TripRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
}

func (s *Store) Request(id string) (*models.TripRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	return r, ok
}

func (s *Store) RemoveRequest(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
}

// OpenRequests returns open requests oldest first.
func (s *Store) OpenRequests() []*models.TripRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TripRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) AddTrip(t *models.OngoingTrip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[t.ID] = t
}

func (s *Store) Trip(id string) (*models.OngoingTrip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	return t, ok
}

// CompleteTrip moves an active trip to the completed list.
func (s *Store) CompleteTrip(id string) (*models.OngoingTrip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, false
	}
	delete(s.trips, id)
	s.completed = append(s.completed, t)
	return t, true
}

func (s *Store) ActiveTrips() []*models.OngoingTrip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.OngoingTrip, 0, len(s.trips))
	for _, t := range s.trips {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Counts feeds the admin overview.
type Counts struct {
	Passengers     int `json:"passengers"`
	Drivers        int `json:"drivers"`
	DriversOnline  int `json:"drivers_online"`
	OpenRequests   int `json:"open_requests"`
	ActiveTrips    int `json:"active_trips"`
	CompletedTrips int `json:"completed_trips"`
}

func (s *Store) Overview() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{
		Passengers:     len(s.passengers),
		Drivers:        len(s.drivers),
		OpenRequests:   len(s.requests),
		ActiveTrips:    len(s.trips),
		CompletedTrips: len(s.completed),
	}
	for _, d := range s.drivers {
		if d.Online {
			c.DriversOnline++
		}
	}
	return c
}
