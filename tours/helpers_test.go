package tours_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/gateway"
	"github.com/warp/tour-engine/store/memory"
	"github.com/warp/tour-engine/tours"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var base = time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type notices struct {
	mu   sync.Mutex
	sent []tours.AssignmentNotice
	err  error
}

func (n *notices) TourAssigned(_ context.Context, a tours.AssignmentNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, a)
	return nil
}

type recorder struct {
	mu          sync.Mutex
	assignments map[string]int
	admissions  map[string]int
	refunds     []engine.RefundTier
}

func newRecorder() *recorder {
	return &recorder{assignments: map[string]int{}, admissions: map[string]int{}}
}

func (r *recorder) AssignmentDecided(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[outcome]++
}

func (r *recorder) AdmissionDecided(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admissions[outcome]++
}

func (r *recorder) RefundIssued(_ string, tier engine.RefundTier, _ engine.Money) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds = append(r.refunds, tier)
}

func sequence() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type fixture struct {
	ctx      context.Context
	store    *memory.Memory
	gateway  *gateway.Memory
	clock    *clock
	notices  *notices
	metrics  *recorder
	catalog  *tours.Catalog
	sched    *tours.Scheduler
	bookings *tours.BookingService
}

// newFixture seeds route r1 (four 10 km legs), guide g1 (quota 2), driver d1
// (quota 1) and bus-a with the given seat count.
func newFixture(t *testing.T, seats int) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		store:   memory.New(),
		gateway: gateway.NewMemory(),
		clock:   &clock{t: base},
		notices: &notices{},
		metrics: newRecorder(),
	}
	opts := []tours.Option{
		tours.WithClock(f.clock),
		tours.WithNotifier(f.notices),
		tours.WithRecorder(f.metrics),
		tours.WithGateway(f.gateway),
		tours.WithIDs(sequence()),
	}
	f.catalog = tours.NewCatalog(f.store, opts...)
	f.sched = tours.NewScheduler(f.store, opts...)
	f.bookings = tours.NewBookingService(f.store, opts...)

	_, err := f.catalog.AddRoute(f.ctx, tours.Route{ID: "r1", Name: "Coast", Segments: []tours.Segment{
		{Index: 1, Station: "A", Distance: decimal.NewFromInt(10)},
		{Index: 2, Station: "B", Distance: decimal.NewFromInt(10)},
		{Index: 3, Station: "C", Distance: decimal.NewFromInt(10)},
		{Index: 4, Station: "D", Distance: decimal.NewFromInt(10)},
	}})
	require.NoError(t, err)
	f.addEmployee(t, "g1", engine.RoleTourGuide, 2)
	f.addEmployee(t, "d1", engine.RoleDriver, 1)
	_, err = f.catalog.AddBus(f.ctx, tours.Bus{ID: "bus-a", Plate: "AB-123", SeatCapacity: seats, Active: true})
	require.NoError(t, err)
	return f
}

func (f *fixture) addEmployee(t *testing.T, id string, role engine.Role, quota int) {
	t.Helper()
	_, err := f.catalog.AddEmployee(f.ctx, tours.Employee{ID: id, Name: id, Role: role, RemainingQuota: quota})
	require.NoError(t, err)
}

func (f *fixture) createTour(t *testing.T, departure time.Time, d time.Duration) tours.ScheduleResult {
	t.Helper()
	res, err := f.sched.CreateTour(f.ctx, tours.CreateTourRequest{RouteID: "r1", Name: "Coast tour", DepartureAt: departure, Duration: d})
	require.NoError(t, err)
	return res
}

func (f *fixture) quota(t *testing.T, id string) int {
	t.Helper()
	e, err := f.store.GetEmployee(f.ctx, id)
	require.NoError(t, err)
	return e.RemainingQuota
}
