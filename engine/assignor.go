package engine

// =============================================================================
// ASSIGNOR - Greedy first-fit {guide, driver, bus}
// =============================================================================

// Shortage names a role the pool could not fill.
type Shortage string

const (
	NoGuide  Shortage = "no_guide"
	NoDriver Shortage = "no_driver"
	NoBus    Shortage = "no_bus"
)

// Outcome is the result of one assignment attempt. Either all three of
// Guide, Driver and Bus are set, or Shortages lists every role that could
// not be filled and the resource fields are nil.
type Outcome struct {
	Guide  *Employee // RemainingQuota already decremented
	Driver *Employee // RemainingQuota already decremented
	Bus    *Bus

	Shortages []Shortage
}

// Assigned reports whether a full triple was found.
func (o Outcome) Assigned() bool { return len(o.Shortages) == 0 && o.Guide != nil }

// Commitments returns the assignments the caller must persist alongside the
// tour so later attempts see these resources as busy.
func (o Outcome) Commitments(window TimeWindow) []Assignment {
	if !o.Assigned() {
		return nil
	}
	return []Assignment{
		{ResourceID: o.Guide.ID, Window: window},
		{ResourceID: o.Driver.ID, Window: window},
		{ResourceID: o.Bus.ID, Window: window},
	}
}

// Assignor selects resources for a tour window from a pool snapshot.
type Assignor struct{}

// Assign filters each candidate list by quota and overlap, then takes the
// first survivor of each. No further tie-break is applied, so callers control
// preference through input order.
func (a *Assignor) Assign(window TimeWindow, pool ResourcePool) Outcome {
	window.mustBeValid()
	pool.mustBeValid()

	busy := indexExisting(pool.Existing)

	guide := firstAvailableEmployee(pool.Guides, window, busy)
	driver := firstAvailableEmployee(pool.Drivers, window, busy)
	bus := firstAvailableBus(pool.Buses, window, busy)

	var shortages []Shortage
	if guide == nil {
		shortages = append(shortages, NoGuide)
	}
	if driver == nil {
		shortages = append(shortages, NoDriver)
	}
	if bus == nil {
		shortages = append(shortages, NoBus)
	}
	if len(shortages) > 0 {
		return Outcome{Shortages: shortages}
	}

	return Outcome{Guide: guide, Driver: driver, Bus: bus}
}

// Available returns every candidate of a list that passes the quota and
// overlap filter, in input order. Useful for showing alternatives.
func (a *Assignor) Available(window TimeWindow, candidates []Employee, existing []Assignment) []Employee {
	window.mustBeValid()
	busy := indexExisting(existing)

	var out []Employee
	for _, e := range candidates {
		if e.RemainingQuota < 0 {
			violate("quota_non_negative", "employee %s has quota %d", e.ID, e.RemainingQuota)
		}
		if e.RemainingQuota > 0 && busy.freeFor(e.ID, window) {
			out = append(out, e)
		}
	}
	return out
}

func firstAvailableEmployee(candidates []Employee, window TimeWindow, busy busy) *Employee {
	for _, e := range candidates {
		if e.RemainingQuota == 0 || !busy.freeFor(e.ID, window) {
			continue
		}
		chosen := e
		chosen.RemainingQuota--
		return &chosen
	}
	return nil
}

func firstAvailableBus(candidates []Bus, window TimeWindow, busy busy) *Bus {
	for _, b := range candidates {
		if !b.Active || !busy.freeFor(b.ID, window) {
			continue
		}
		chosen := b
		return &chosen
	}
	return nil
}
