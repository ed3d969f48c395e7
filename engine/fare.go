package engine

import "github.com/shopspring/decimal"

// =============================================================================
// FARE ADJUSTER - Distance-proportional fare for mid-route boarding
// =============================================================================

// RouteSegment is one leg of a route. Index is 1-based from the origin.
type RouteSegment struct {
	Index    int
	Distance decimal.Decimal
}

// FareQuote is the fraction of the full fare owed for a boarding point.
type FareQuote struct {
	BoardingIndex      int
	Fraction           decimal.Decimal // in (0, 1]
	TotalDistance      decimal.Decimal
	DistanceToBoarding decimal.Decimal
}

// FromOrigin reports whether the quote is the unadjusted origin fare.
func (q FareQuote) FromOrigin() bool { return q.DistanceToBoarding.IsZero() }

// AdjustFare computes the payable fraction for boarding at boardingIndex.
//
//	first segment: 1
//	otherwise:     sum(distance, index < boardingIndex) / sum(distance)
//
// segments must be ordered by strictly increasing Index with positive
// distances, and boardingIndex must name one of them.
func AdjustFare(segments []RouteSegment, boardingIndex int) FareQuote {
	mustBeValidSegments(segments)

	total := decimal.Zero
	toBoarding := decimal.Zero
	named := false
	for _, s := range segments {
		total = total.Add(s.Distance)
		if s.Index < boardingIndex {
			toBoarding = toBoarding.Add(s.Distance)
		}
		named = named || s.Index == boardingIndex
	}
	if !named {
		violate("boarding_index_in_route", "boarding index %d is not a segment of the route (last is %d)",
			boardingIndex, segments[len(segments)-1].Index)
	}

	if boardingIndex == segments[0].Index {
		return FareQuote{
			BoardingIndex:      boardingIndex,
			Fraction:           decimal.NewFromInt(1),
			TotalDistance:      total,
			DistanceToBoarding: decimal.Zero,
		}
	}

	return FareQuote{
		BoardingIndex:      boardingIndex,
		Fraction:           toBoarding.Div(total),
		TotalDistance:      total,
		DistanceToBoarding: toBoarding,
	}
}

func mustBeValidSegments(segments []RouteSegment) {
	if len(segments) == 0 {
		violate("route_has_segments", "empty route")
	}
	prev := 0
	for _, s := range segments {
		if s.Index <= prev {
			violate("segment_index_increasing", "index %d follows %d", s.Index, prev)
		}
		if !s.Distance.IsPositive() {
			violate("segment_distance_positive", "segment %d has distance %s", s.Index, s.Distance)
		}
		prev = s.Index
	}
}

// =============================================================================
// PRICING BASES
// =============================================================================

// PriceLine is a ticket or product line on a booking.
type PriceLine struct {
	UnitPrice Money
	Quantity  int
}

func (l PriceLine) Subtotal() Money { return l.UnitPrice * Money(l.Quantity) }

// PerTicketTotal prices tickets on a per-unit-distance basis and adds
// products at full price:
//
//	sum over tickets of (unitPrice * quantity / totalDistance) * distanceToBoarding
//
// From the origin each ticket costs its listed price. The result is rounded
// down to a whole unit.
func PerTicketTotal(q FareQuote, tickets, products []PriceLine) Money {
	ticketsTotal := decimal.Zero
	for _, t := range tickets {
		sub := decimal.NewFromInt(int64(t.Subtotal()))
		if q.FromOrigin() {
			ticketsTotal = ticketsTotal.Add(sub)
			continue
		}
		// numerator first so the single division is the only rounding step
		ticketsTotal = ticketsTotal.Add(sub.Mul(q.DistanceToBoarding).Div(q.TotalDistance))
	}

	total := floorMoney(ticketsTotal)
	for _, p := range products {
		total += p.Subtotal()
	}
	return total
}

// FlatTotal scales an already-computed total by the boarding fraction:
//
//	original * distanceToBoarding / totalDistance
//
// rounded down. Fractions above and below one half are priced the same way.
func FlatTotal(original Money, q FareQuote) Money {
	if q.FromOrigin() {
		return original
	}
	return floorMoney(decimal.NewFromInt(int64(original)).Mul(q.DistanceToBoarding).Div(q.TotalDistance))
}

func floorMoney(d decimal.Decimal) Money {
	return Money(d.Floor().IntPart())
}
