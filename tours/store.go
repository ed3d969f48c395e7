/*
store.go - Persistence and collaborator contracts for the tour service

PURPOSE:
  Defines what the services need from the outside: a transactional store,
  a payment gateway, a notifier, a metrics recorder and a clock. The
  interfaces live here, next to their consumer, so implementations depend
  on tours and never the other way round.

KEY INTERFACES:
  Store:     reads and writes of staff, fleet, routes, tours and bookings
  TxStore:   Store plus WithTx for all-or-nothing units of work
  Gateway:   refunds against a captured payment
  Notifier:  tells staff about a new assignment
  Recorder:  counts decisions for metrics

TRANSACTIONS:
  Every read that feeds an engine decision and the write that applies it
  happen inside one WithTx. LockTour takes a row lock where the backend
  supports one; SQLite serialises writers through a single connection.

IMPLEMENTATIONS:
  - store/memory:    in-memory, snapshot/restore rollback
  - store/sqlstore:  database/sql + squirrel, sqlite3 or postgres

SEE ALSO:
  - scheduler.go: consumes ListCandidates, ListActiveBuses, ListCommitments
  - booking.go:   consumes LockTour, SumBookedSeats
*/
package tours

import (
	"context"
	"time"

	"github.com/warp/tour-engine/engine"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	GetEmployee(ctx context.Context, id string) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	// ListCandidates returns employees of role with quota left, ordered by
	// remaining quota descending then id ascending. The assignor takes the
	// first fit of this order.
	ListCandidates(ctx context.Context, role engine.Role) ([]Employee, error)

	SaveEmployee(ctx context.Context, e Employee) error
	SetRemainingQuota(ctx context.Context, employeeID string, quota int) error

	GetBus(ctx context.Context, id string) (Bus, error)
	ListBuses(ctx context.Context) ([]Bus, error)

	// ListActiveBuses returns active buses, largest seat capacity first.
	ListActiveBuses(ctx context.Context) ([]Bus, error)
	SaveBus(ctx context.Context, b Bus) error

	GetRoute(ctx context.Context, id string) (Route, error)
	ListRoutes(ctx context.Context) ([]Route, error)
	SaveRoute(ctx context.Context, r Route) error

	GetTour(ctx context.Context, id string) (Tour, error)

	// LockTour reads the tour and holds it until the enclosing tx ends.
	LockTour(ctx context.Context, id string) (Tour, error)
	ListTours(ctx context.Context, filter TourFilter) ([]Tour, error)

	// ListUnassignedTours returns unassigned tours departing at or after from,
	// in departure order.
	ListUnassignedTours(ctx context.Context, from time.Time) ([]Tour, error)

	// ListCommitments returns the assignments of scheduled tours whose
	// window ends at or after endingFrom.
	ListCommitments(ctx context.Context, endingFrom time.Time) ([]engine.Assignment, error)
	SaveTour(ctx context.Context, t Tour) error

	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookingsByTour(ctx context.Context, tourID string) ([]Booking, error)

	// SumBookedSeats sums Quantity over confirmed and ongoing bookings.
	SumBookedSeats(ctx context.Context, tourID string) (int, error)
	SaveBooking(ctx context.Context, b Booking) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// RouteReader is the read path used for fare quotes. A cache may sit in
// front of the store.
type RouteReader interface {
	GetRoute(ctx context.Context, id string) (Route, error)
}

// RouteCache is a RouteReader that must be told when a route changes.
type RouteCache interface {
	RouteReader
	Invalidate(ctx context.Context, id string) error
}

// =============================================================================
// PAYMENT GATEWAY
// =============================================================================

type RefundRequest struct {
	BookingID      string
	PaymentRef     string
	Amount         engine.Money
	Reason         string
	IdempotencyKey string
}

type Receipt struct {
	ID     string
	Amount engine.Money
	Status string
}

type Gateway interface {
	Refund(ctx context.Context, req RefundRequest) (Receipt, error)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type AssignmentNotice struct {
	TourID      string
	TourName    string
	EmployeeID  string
	Role        engine.Role
	DepartureAt time.Time
	ReturnAt    time.Time
	BusID       string
}

type Notifier interface {
	TourAssigned(ctx context.Context, n AssignmentNotice) error
}

// =============================================================================
// METRICS
// =============================================================================

type Recorder interface {
	AssignmentDecided(outcome string)
	AdmissionDecided(outcome string)
	RefundIssued(table string, tier engine.RefundTier, amount engine.Money)
}

type nopRecorder struct{}

func (nopRecorder) AssignmentDecided(string)                             {}
func (nopRecorder) AdmissionDecided(string)                              {}
func (nopRecorder) RefundIssued(string, engine.RefundTier, engine.Money) {}

// =============================================================================
// CLOCK
// =============================================================================

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T. Used by tests and replays.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }
