package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REFUND TIERS
// =============================================================================

// RefundTier is a percentage bucket of a paid amount.
type RefundTier string

const (
	TierFull   RefundTier = "full"
	TierRate90 RefundTier = "rate_90"
	TierRate80 RefundTier = "rate_80"
	TierRate75 RefundTier = "rate_75"
	TierNone   RefundTier = "none"
)

// Percent returns the share of the paid amount returned, 0..100.
func (t RefundTier) Percent() int64 {
	switch t {
	case TierFull:
		return 100
	case TierRate90:
		return 90
	case TierRate80:
		return 80
	case TierRate75:
		return 75
	default:
		return 0
	}
}

// Apply returns the refunded amount, rounded down to a whole unit.
func (t RefundTier) Apply(paid Money) Money {
	if paid <= 0 {
		return 0
	}
	return floorMoney(decimal.NewFromInt(int64(paid)).Mul(decimal.NewFromInt(t.Percent())).Div(decimal.NewFromInt(100)))
}

// =============================================================================
// REFUND TABLES
// =============================================================================

// RefundTable buckets time-to-departure into tiers. Buckets are upper-bound
// inclusive: Δ <= Within falls in the bucket.
type RefundTable struct {
	Name    string
	Buckets []RefundBucket
	Beyond  RefundTier // Δ greater than every bucket
}

type RefundBucket struct {
	Within time.Duration
	Tier   RefundTier
}

const day = 24 * time.Hour

// CancellationRefundTable is used when a customer cancels a booking.
var CancellationRefundTable = RefundTable{
	Name: "cancellation",
	Buckets: []RefundBucket{
		{Within: 1 * day, Tier: TierNone},
		{Within: 2 * day, Tier: TierRate75},
	},
	Beyond: TierRate80,
}

// GatewayRefundTable is used when a refund request computes the amount sent
// to the payment gateway. It disagrees with CancellationRefundTable for every
// bucket; both are kept as they are until product decides which is intended.
var GatewayRefundTable = RefundTable{
	Name: "gateway",
	Buckets: []RefundBucket{
		{Within: 1 * day, Tier: TierRate75},
		{Within: 2 * day, Tier: TierRate90},
	},
	Beyond: TierFull,
}

// TierFor returns the tier for a departure seen from now.
func (rt RefundTable) TierFor(now, departure time.Time) RefundTier {
	return rt.TierForLeadTime(departure.Sub(now))
}

// TierForLeadTime returns the tier for Δ = departure - now.
func (rt RefundTable) TierForLeadTime(delta time.Duration) RefundTier {
	for _, b := range rt.Buckets {
		if delta <= b.Within {
			return b.Tier
		}
	}
	return rt.Beyond
}

// Refund is a computed refund decision.
type Refund struct {
	Table  string
	Tier   RefundTier
	Paid   Money
	Amount Money
}

// Compute is TierFor followed by Apply.
func (rt RefundTable) Compute(now, departure time.Time, paid Money) Refund {
	tier := rt.TierFor(now, departure)
	return Refund{Table: rt.Name, Tier: tier, Paid: paid, Amount: tier.Apply(paid)}
}
