/*
Package tours is the scheduling and booking service around the engine.

PURPOSE:
  The engine decides; this package reads the snapshot the engine needs,
  applies the decision inside one store transaction, and then talks to the
  outside world (payment gateway, notifications) once the data is committed.

FLOWS:
  CreateTour:     pool snapshot -> Assignor -> tour + quotas in one tx -> notify
  AssignPending:  re-run CreateTour's decision for tours left unassigned
  CreateBooking:  lock tour -> seat sum -> Admit -> price -> insert, one tx
  Cancel:         CancellationRefundTable -> gateway refund -> booking update
  RequestRefund:  GatewayRefundTable -> gateway refund -> booking update

SEE ALSO:
  - engine/:         pure decisions
  - store/sqlstore:  SQL implementation of TxStore
  - store/memory:    in-memory implementation of TxStore
*/
package tours

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tour-engine/engine"
)

// =============================================================================
// STAFF & FLEET
// =============================================================================

type Employee struct {
	ID             string
	Name           string
	Email          string
	Role           engine.Role
	RemainingQuota int
	CreatedAt      time.Time
}

func (e Employee) Snapshot() engine.Employee {
	return engine.Employee{ID: engine.ResourceID(e.ID), Role: e.Role, RemainingQuota: e.RemainingQuota}
}

type Bus struct {
	ID           string
	Plate        string
	SeatCapacity int
	Active       bool
}

func (b Bus) Snapshot() engine.Bus {
	return engine.Bus{ID: engine.ResourceID(b.ID), SeatCapacity: b.SeatCapacity, Active: b.Active}
}

// =============================================================================
// ROUTES
// =============================================================================

type Segment struct {
	Index    int
	Station  string // boarding station at the start of this segment
	Distance decimal.Decimal
}

type Route struct {
	ID       string
	Name     string
	Segments []Segment
}

func (r Route) EngineSegments() []engine.RouteSegment {
	out := make([]engine.RouteSegment, len(r.Segments))
	for i, s := range r.Segments {
		out[i] = engine.RouteSegment{Index: s.Index, Distance: s.Distance}
	}
	return out
}

// HasBoarding reports whether index names a segment of the route.
func (r Route) HasBoarding(index int) bool {
	return index >= 1 && index <= len(r.Segments)
}

// =============================================================================
// TOURS
// =============================================================================

type TourStatus string

const (
	TourUnassigned TourStatus = "unassigned"
	TourScheduled  TourStatus = "scheduled"
)

type Tour struct {
	ID          string
	RouteID     string
	Name        string
	DepartureAt time.Time
	Duration    time.Duration
	GuideID     string // empty while unassigned
	DriverID    string
	BusID       string
	Status      TourStatus
	CreatedAt   time.Time
}

func (t Tour) Window() engine.TimeWindow {
	return engine.NewTimeWindow(t.DepartureAt, t.Duration)
}

func (t Tour) Assigned() bool { return t.Status == TourScheduled && t.BusID != "" }

// Commitments lists the engine assignments this tour holds.
func (t Tour) Commitments() []engine.Assignment {
	if !t.Assigned() {
		return nil
	}
	w := t.Window()
	return []engine.Assignment{
		{ResourceID: engine.ResourceID(t.GuideID), Window: w},
		{ResourceID: engine.ResourceID(t.DriverID), Window: w},
		{ResourceID: engine.ResourceID(t.BusID), Window: w},
	}
}

// =============================================================================
// BOOKINGS
// =============================================================================

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingOngoing   BookingStatus = "ongoing"
	BookingFinished  BookingStatus = "finished"
	BookingCancelled BookingStatus = "cancelled"
	// BookingRefunding is held by exactly one refund while the gateway call
	// is in flight. It ends in cancelled, or back in confirmed if the
	// gateway refuses.
	BookingRefunding BookingStatus = "refunding"
)

// SeatHoldingStatuses are the only statuses summed for admission.
var SeatHoldingStatuses = []BookingStatus{BookingConfirmed, BookingOngoing, BookingRefunding}

func (s BookingStatus) HoldsSeats() bool {
	return slices.Contains(SeatHoldingStatuses, s)
}

// Modifiable reports whether payment or boarding may still change.
func (s BookingStatus) Modifiable() bool {
	return s == BookingConfirmed || s == BookingOngoing
}

type Line struct {
	Name      string
	UnitPrice engine.Money
	Quantity  int
}

func (l Line) PriceLine() engine.PriceLine {
	return engine.PriceLine{UnitPrice: l.UnitPrice, Quantity: l.Quantity}
}

func priceLines(lines []Line) []engine.PriceLine {
	out := make([]engine.PriceLine, len(lines))
	for i, l := range lines {
		out[i] = l.PriceLine()
	}
	return out
}

func seatCount(tickets []Line) int {
	n := 0
	for _, t := range tickets {
		n += t.Quantity
	}
	return n
}

type Booking struct {
	ID             string
	TourID         string
	CustomerID     string
	Tickets        []Line
	Products       []Line
	Quantity       int // seats, sum of ticket quantities
	BoardingIndex  int
	Status         BookingStatus
	TotalPrice     engine.Money
	PaidAmount     engine.Money
	PaymentRef     string
	RefundedAmount engine.Money
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Refunded reports whether money has already been returned or the booking
// was cancelled through a refund path.
func (b Booking) Refunded() bool {
	return b.RefundedAmount > 0 || (b.Status == BookingCancelled && b.PaidAmount > 0)
}

// TourFilter narrows ListTours.
type TourFilter struct {
	From   *time.Time
	To     *time.Time
	Status *TourStatus
}
