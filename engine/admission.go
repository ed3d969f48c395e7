package engine

// =============================================================================
// CAPACITY ADMISSION
// =============================================================================

// CapacityQuery is one admission question. AlreadyBooked must only count
// seat-holding bookings; the engine does not look at booking states.
type CapacityQuery struct {
	BusSeatCapacity int
	AlreadyBooked   int
	Requested       int
}

// Admission is the answer. AvailableSeats is only meaningful on reject.
type Admission struct {
	Accepted       bool
	AvailableSeats int
}

// Admit accepts iff AlreadyBooked + Requested fits in BusSeatCapacity.
// Run it in the same transaction that inserts the booking.
func Admit(q CapacityQuery) Admission {
	if q.BusSeatCapacity <= 0 {
		violate("bus_capacity_positive", "seat capacity %d", q.BusSeatCapacity)
	}
	if q.AlreadyBooked < 0 || q.Requested < 0 {
		violate("quantities_non_negative", "already booked %d, requested %d", q.AlreadyBooked, q.Requested)
	}

	if q.AlreadyBooked+q.Requested <= q.BusSeatCapacity {
		return Admission{Accepted: true}
	}
	// Negative only if the tour is already over capacity.
	return Admission{Accepted: false, AvailableSeats: q.BusSeatCapacity - q.AlreadyBooked}
}
