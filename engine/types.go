/*
Package engine provides the pure decision core for tour scheduling.

PURPOSE:
  Everything in this package is a computation over a snapshot the caller
  hands in. Nothing here touches a database, a network or a clock. The
  caller reads state, asks the engine for a decision, and applies that
  decision inside its own transaction.

KEY CONCEPTS:
  - TimeWindow:   [departure, departure+duration) of one tour occurrence
  - ResourcePool: candidate guides, drivers, buses + existing commitments
  - Assignor:     greedy first-fit selection of {guide, driver, bus}
  - Admit:        seat-capacity admission for a booking
  - AdjustFare:   distance-proportional fare for mid-route boarding
  - RefundTable:  time-to-departure refund tiers (two distinct tables)

EXPECTED OUTCOMES vs INVARIANTS:
  "No guide available" and "not enough seats" are ordinary results, returned
  as values (Outcome.Shortages, Admission.Accepted). A malformed snapshot
  (negative quota, end <= start, unordered segments) is a caller bug and
  panics with *InvariantError.

SEE ALSO:
  - tours/scheduler.go: builds pools and persists Assignor decisions
  - tours/booking.go:   admission, pricing and refunds around the engine
*/
package engine

import "fmt"

// =============================================================================
// MONEY - Smallest currency unit, never fractional
// =============================================================================

// Money is an amount in the smallest currency unit (cents, rupiah, ...).
type Money int64

func (m Money) Int64() int64   { return int64(m) }
func (m Money) String() string { return fmt.Sprintf("%d", int64(m)) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ResourceID identifies a guide, a driver or a bus. Employees and buses share
// one id space inside a pool because Assignments are keyed by it.
type ResourceID string

// Role is what an employee can be assigned as.
type Role string

const (
	RoleTourGuide Role = "tour_guide"
	RoleDriver    Role = "driver"
)

func (r Role) Valid() bool { return r == RoleTourGuide || r == RoleDriver }
