package engine

// =============================================================================
// POOL SNAPSHOT
// =============================================================================

// Employee is a guide or driver as seen by one scheduling attempt.
type Employee struct {
	ID             ResourceID
	Role           Role
	RemainingQuota int
}

// Bus is a vehicle candidate. Buses have no quota.
type Bus struct {
	ID           ResourceID
	SeatCapacity int
	Active       bool
}

// Assignment is one resource's existing commitment to a tour window.
type Assignment struct {
	ResourceID ResourceID
	Window     TimeWindow
}

// ResourcePool is the snapshot an Assignor decides over. Candidate slices are
// expected in preference order (remaining quota descending); the engine keeps
// that order as the tie-break.
type ResourcePool struct {
	Guides   []Employee
	Drivers  []Employee
	Buses    []Bus
	Existing []Assignment
}

func (p ResourcePool) mustBeValid() {
	for _, e := range p.Guides {
		mustBeValidEmployee(e, RoleTourGuide)
	}
	for _, e := range p.Drivers {
		mustBeValidEmployee(e, RoleDriver)
	}
	for _, b := range p.Buses {
		if b.SeatCapacity <= 0 {
			violate("bus_capacity_positive", "bus %s has seat capacity %d", b.ID, b.SeatCapacity)
		}
	}
	for _, a := range p.Existing {
		a.Window.mustBeValid()
	}
}

func mustBeValidEmployee(e Employee, want Role) {
	if e.RemainingQuota < 0 {
		violate("quota_non_negative", "employee %s has quota %d", e.ID, e.RemainingQuota)
	}
	if e.Role != "" && e.Role != want {
		violate("candidate_role", "employee %s is %s, listed as %s", e.ID, e.Role, want)
	}
}

// busy indexes existing commitments by resource for the overlap filter.
type busy map[ResourceID][]TimeWindow

func indexExisting(existing []Assignment) busy {
	b := make(busy, len(existing))
	for _, a := range existing {
		b[a.ResourceID] = append(b[a.ResourceID], a.Window)
	}
	return b
}

// freeFor reports whether no commitment of id conflicts with window.
func (b busy) freeFor(id ResourceID, window TimeWindow) bool {
	for _, w := range b[id] {
		if Conflicts(w, window) {
			return false
		}
	}
	return true
}
