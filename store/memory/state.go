package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

// state is the unlocked data set. It implements tours.Store and is handed
// directly to WithTx callbacks while the parent holds the write lock.
type state struct {
	employees map[string]tours.Employee
	buses     map[string]tours.Bus
	routes    map[string]tours.Route
	tours     map[string]tours.Tour
	bookings  map[string]tours.Booking
}

func newState() *state {
	return &state{
		employees: make(map[string]tours.Employee),
		buses:     make(map[string]tours.Bus),
		routes:    make(map[string]tours.Route),
		tours:     make(map[string]tours.Tour),
		bookings:  make(map[string]tours.Booking),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.buses {
		c.buses[k] = v
	}
	for k, v := range s.routes {
		c.routes[k] = cloneRoute(v)
	}
	for k, v := range s.tours {
		c.tours[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = cloneBooking(v)
	}
	return c
}

func cloneRoute(r tours.Route) tours.Route {
	r.Segments = slices.Clone(r.Segments)
	return r
}

func cloneBooking(b tours.Booking) tours.Booking {
	b.Tickets = slices.Clone(b.Tickets)
	b.Products = slices.Clone(b.Products)
	return b
}

// =============================================================================
// STAFF
// =============================================================================

func (s *state) GetEmployee(_ context.Context, id string) (tours.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return tours.Employee{}, tours.ErrEmployeeNotFound
	}
	return e, nil
}

func (s *state) ListEmployees(_ context.Context) ([]tours.Employee, error) {
	out := make([]tours.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) ListCandidates(_ context.Context, role engine.Role) ([]tours.Employee, error) {
	var out []tours.Employee
	for _, e := range s.employees {
		if e.Role == role && e.RemainingQuota > 0 {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RemainingQuota != out[j].RemainingQuota {
			return out[i].RemainingQuota > out[j].RemainingQuota
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) SaveEmployee(_ context.Context, e tours.Employee) error {
	s.employees[e.ID] = e
	return nil
}

func (s *state) SetRemainingQuota(_ context.Context, id string, quota int) error {
	e, ok := s.employees[id]
	if !ok {
		return tours.ErrEmployeeNotFound
	}
	e.RemainingQuota = quota
	s.employees[id] = e
	return nil
}

// =============================================================================
// FLEET
// =============================================================================

func (s *state) GetBus(_ context.Context, id string) (tours.Bus, error) {
	b, ok := s.buses[id]
	if !ok {
		return tours.Bus{}, tours.ErrBusNotFound
	}
	return b, nil
}

func (s *state) ListBuses(_ context.Context) ([]tours.Bus, error) {
	out := make([]tours.Bus, 0, len(s.buses))
	for _, b := range s.buses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) ListActiveBuses(_ context.Context) ([]tours.Bus, error) {
	var out []tours.Bus
	for _, b := range s.buses {
		if b.Active {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SeatCapacity != out[j].SeatCapacity {
			return out[i].SeatCapacity > out[j].SeatCapacity
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) SaveBus(_ context.Context, b tours.Bus) error {
	s.buses[b.ID] = b
	return nil
}

// =============================================================================
// ROUTES
// =============================================================================

func (s *state) GetRoute(_ context.Context, id string) (tours.Route, error) {
	r, ok := s.routes[id]
	if !ok {
		return tours.Route{}, tours.ErrRouteNotFound
	}
	return cloneRoute(r), nil
}

func (s *state) ListRoutes(_ context.Context) ([]tours.Route, error) {
	out := make([]tours.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, cloneRoute(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) SaveRoute(_ context.Context, r tours.Route) error {
	s.routes[r.ID] = cloneRoute(r)
	return nil
}

// =============================================================================
// TOURS
// =============================================================================

func (s *state) GetTour(_ context.Context, id string) (tours.Tour, error) {
	t, ok := s.tours[id]
	if !ok {
		return tours.Tour{}, tours.ErrTourNotFound
	}
	return t, nil
}

// LockTour is GetTour: the parent's write lock already serialises the tx.
func (s *state) LockTour(ctx context.Context, id string) (tours.Tour, error) {
	return s.GetTour(ctx, id)
}

func (s *state) ListTours(_ context.Context, f tours.TourFilter) ([]tours.Tour, error) {
	var out []tours.Tour
	for _, t := range s.tours {
		if f.From != nil && t.DepartureAt.Before(*f.From) {
			continue
		}
		if f.To != nil && t.DepartureAt.After(*f.To) {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, t)
	}
	sortByDeparture(out)
	return out, nil
}

func (s *state) ListUnassignedTours(_ context.Context, from time.Time) ([]tours.Tour, error) {
	var out []tours.Tour
	for _, t := range s.tours {
		if t.Status == tours.TourUnassigned && !t.DepartureAt.Before(from) {
			out = append(out, t)
		}
	}
	sortByDeparture(out)
	return out, nil
}

func (s *state) ListCommitments(_ context.Context, endingFrom time.Time) ([]engine.Assignment, error) {
	var scheduled []tours.Tour
	for _, t := range s.tours {
		if t.Assigned() && !t.Window().End.Before(endingFrom) {
			scheduled = append(scheduled, t)
		}
	}
	sortByDeparture(scheduled)

	var out []engine.Assignment
	for _, t := range scheduled {
		out = append(out, t.Commitments()...)
	}
	return out, nil
}

func (s *state) SaveTour(_ context.Context, t tours.Tour) error {
	s.tours[t.ID] = t
	return nil
}

func sortByDeparture(ts []tours.Tour) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].DepartureAt.Equal(ts[j].DepartureAt) {
			return ts[i].DepartureAt.Before(ts[j].DepartureAt)
		}
		return ts[i].ID < ts[j].ID
	})
}

// =============================================================================
// BOOKINGS
// =============================================================================

func (s *state) GetBooking(_ context.Context, id string) (tours.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return tours.Booking{}, tours.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (s *state) ListBookingsByTour(_ context.Context, tourID string) ([]tours.Booking, error) {
	var out []tours.Booking
	for _, b := range s.bookings {
		if b.TourID == tourID {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) SumBookedSeats(_ context.Context, tourID string) (int, error) {
	n := 0
	for _, b := range s.bookings {
		if b.TourID == tourID && b.Status.HoldsSeats() {
			n += b.Quantity
		}
	}
	return n, nil
}

func (s *state) SaveBooking(_ context.Context, b tours.Booking) error {
	s.bookings[b.ID] = cloneBooking(b)
	return nil
}
