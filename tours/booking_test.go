package tours_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/gateway"
	"github.com/warp/tour-engine/tours"
)

var departure = base.Add(5 * 24 * time.Hour)

func adults(n int) []tours.Line {
	return []tours.Line{{Name: "adult", UnitPrice: 100_000, Quantity: n}}
}

var lunch = []tours.Line{{Name: "lunch", UnitPrice: 15_000, Quantity: 1}}

func scheduled(t *testing.T, seats int) (*fixture, tours.Tour) {
	t.Helper()
	f := newFixture(t, seats)
	res := f.createTour(t, departure, 8*time.Hour)
	require.True(t, res.Assigned())
	return f, res.Tour
}

func (f *fixture) book(t *testing.T, tourID string, seats, boarding int) tours.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(f.ctx, tours.CreateBookingRequest{
		TourID: tourID, CustomerID: "c1", Tickets: adults(seats), Products: lunch, BoardingIndex: boarding,
	})
	require.NoError(t, err)
	return b
}

// =============================================================================
// ADMISSION & PRICING
// =============================================================================

func TestCreateBooking_FromOrigin(t *testing.T) {
	f, tour := scheduled(t, 40)

	b := f.book(t, tour.ID, 2, 1)

	assert.Equal(t, tours.BookingConfirmed, b.Status)
	assert.Equal(t, 2, b.Quantity)
	assert.Equal(t, engine.Money(215_000), b.TotalPrice)
	assert.Equal(t, 1, f.metrics.admissions["accepted"])

	seats, err := f.store.SumBookedSeats(f.ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, seats)
}

func TestCreateBooking_MidRouteScalesTicketsOnly(t *testing.T) {
	// GIVEN: four equal legs, boarding at station 3
	// THEN:  tickets at half price, lunch at full price
	f, tour := scheduled(t, 40)

	b := f.book(t, tour.ID, 2, 3)

	assert.Equal(t, engine.Money(100_000+15_000), b.TotalPrice)
	assert.Equal(t, 3, b.BoardingIndex)
}

func TestCreateBooking_InsufficientSeats(t *testing.T) {
	// GIVEN: a 5-seat bus with 4 seats taken
	// WHEN:  2 more are requested
	// THEN:  rejected with 1 seat available, nothing saved
	f, tour := scheduled(t, 5)
	f.book(t, tour.ID, 4, 1)

	_, err := f.bookings.CreateBooking(f.ctx, tours.CreateBookingRequest{
		TourID: tour.ID, CustomerID: "c2", Tickets: adults(2), BoardingIndex: 1,
	})

	require.ErrorIs(t, err, tours.ErrInsufficientSeats)
	var seatsErr *tours.InsufficientSeatsError
	require.True(t, errors.As(err, &seatsErr))
	assert.Equal(t, 1, seatsErr.Available)
	assert.Equal(t, 2, seatsErr.Requested)
	assert.True(t, tours.IsClientError(err))
	assert.Equal(t, 1, f.metrics.admissions["rejected"])

	all, err := f.bookings.BookingsForTour(f.ctx, tour.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateBooking_CancelledBookingsFreeSeats(t *testing.T) {
	f, tour := scheduled(t, 5)
	first := f.book(t, tour.ID, 4, 1)

	_, err := f.bookings.Cancel(f.ctx, first.ID)
	require.NoError(t, err)

	f.book(t, tour.ID, 5, 1)
}

func TestCreateBooking_ConcurrentRequestsNeverOverbook(t *testing.T) {
	f, tour := scheduled(t, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.CreateBooking(f.ctx, tours.CreateBookingRequest{
				TourID: tour.ID, CustomerID: "c", Tickets: adults(1), BoardingIndex: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if errors.Is(err, tours.ErrInsufficientSeats) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 7, rejected)
	seats, err := f.store.SumBookedSeats(f.ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, seats)
}

func TestCreateBooking_Rejections(t *testing.T) {
	f, tour := scheduled(t, 40)
	unassigned := f.createTour(t, departure.Add(24*time.Hour), time.Hour)
	require.False(t, unassigned.Assigned())

	tests := []struct {
		name string
		req  tours.CreateBookingRequest
		want error
	}{
		{"no tickets", tours.CreateBookingRequest{TourID: tour.ID, CustomerID: "c", BoardingIndex: 1}, tours.ErrInvalidInput},
		{"zero quantity", tours.CreateBookingRequest{TourID: tour.ID, CustomerID: "c", Tickets: adults(0), BoardingIndex: 1}, tours.ErrInvalidInput},
		{"no customer", tours.CreateBookingRequest{TourID: tour.ID, Tickets: adults(1), BoardingIndex: 1}, tours.ErrInvalidInput},
		{"unknown tour", tours.CreateBookingRequest{TourID: "nope", CustomerID: "c", Tickets: adults(1), BoardingIndex: 1}, tours.ErrTourNotFound},
		{"unassigned tour", tours.CreateBookingRequest{TourID: unassigned.Tour.ID, CustomerID: "c", Tickets: adults(1), BoardingIndex: 1}, tours.ErrTourNotScheduled},
		{"boarding zero", tours.CreateBookingRequest{TourID: tour.ID, CustomerID: "c", Tickets: adults(1), BoardingIndex: 0}, tours.ErrInvalidBoarding},
		{"boarding past last station", tours.CreateBookingRequest{TourID: tour.ID, CustomerID: "c", Tickets: adults(1), BoardingIndex: 5}, tours.ErrInvalidBoarding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bookings.CreateBooking(f.ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateBooking_AfterDeparture(t *testing.T) {
	f, tour := scheduled(t, 40)
	f.clock.Set(departure)

	_, err := f.bookings.CreateBooking(f.ctx, tours.CreateBookingRequest{
		TourID: tour.ID, CustomerID: "c", Tickets: adults(1), BoardingIndex: 1,
	})

	assert.ErrorIs(t, err, tours.ErrTourDeparted)
}

func TestQuoteFare(t *testing.T) {
	f, tour := scheduled(t, 40)

	q, err := f.bookings.QuoteFare(f.ctx, tour.ID, 3, adults(2), lunch)

	require.NoError(t, err)
	assert.True(t, q.Fraction.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, q.TotalDistance.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, engine.Money(215_000), q.Full)
	assert.Equal(t, engine.Money(115_000), q.PerTicket)

	_, err = f.bookings.QuoteFare(f.ctx, tour.ID, 9, adults(1), nil)
	assert.ErrorIs(t, err, tours.ErrInvalidBoarding)
}

func TestChangeBoarding_FlatBasis(t *testing.T) {
	// GIVEN: an origin booking of 215,000 (tickets 200,000 + lunch 15,000)
	// WHEN:  boarding moves to station 3 (fraction 0.5)
	// THEN:  the whole total is halved, lunch included
	f, tour := scheduled(t, 40)
	b := f.book(t, tour.ID, 2, 1)

	changed, err := f.bookings.ChangeBoarding(f.ctx, b.ID, 3)

	require.NoError(t, err)
	assert.Equal(t, engine.Money(107_500), changed.TotalPrice)
	assert.Equal(t, 3, changed.BoardingIndex)

	stored, err := f.bookings.Booking(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.Money(107_500), stored.TotalPrice)

	_, err = f.bookings.ChangeBoarding(f.ctx, b.ID, 7)
	assert.ErrorIs(t, err, tours.ErrInvalidBoarding)
}

func TestRecordPayment(t *testing.T) {
	f, tour := scheduled(t, 40)
	b := f.book(t, tour.ID, 2, 1)

	_, err := f.bookings.RecordPayment(f.ctx, b.ID, "pi_1", 300_000)
	assert.ErrorIs(t, err, tours.ErrInvalidInput)

	_, err = f.bookings.RecordPayment(f.ctx, b.ID, "", 1)
	assert.ErrorIs(t, err, tours.ErrInvalidInput)

	paid, err := f.bookings.RecordPayment(f.ctx, b.ID, "pi_1", 215_000)
	require.NoError(t, err)
	assert.Equal(t, engine.Money(215_000), paid.PaidAmount)
	assert.Equal(t, "pi_1", paid.PaymentRef)
}

// =============================================================================
// CANCELLATION & REFUNDS
// =============================================================================

func paidBooking(t *testing.T, f *fixture, tourID string) tours.Booking {
	t.Helper()
	b := f.book(t, tourID, 2, 1)
	b, err := f.bookings.RecordPayment(f.ctx, b.ID, "pi_123", b.TotalPrice)
	require.NoError(t, err)
	return b
}

func TestCancel_UsesCancellationTable(t *testing.T) {
	// GIVEN: 215,000 paid, cancelled 30 hours before departure
	// THEN:  75% refunded through the gateway, booking cancelled
	f, tour := scheduled(t, 40)
	b := paidBooking(t, f, tour.ID)
	f.clock.Set(departure.Add(-30 * time.Hour))

	res, err := f.bookings.Cancel(f.ctx, b.ID)

	require.NoError(t, err)
	assert.Equal(t, engine.TierRate75, res.Refund.Tier)
	assert.Equal(t, engine.Money(161_250), res.Refund.Amount)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, tours.BookingCancelled, res.Booking.Status)
	assert.Equal(t, engine.Money(161_250), res.Booking.RefundedAmount)

	sent := f.gateway.Refunds()
	require.Len(t, sent, 1)
	assert.Equal(t, "pi_123", sent[0].PaymentRef)
	assert.Equal(t, engine.Money(161_250), sent[0].Amount)
	assert.Equal(t, []engine.RefundTier{engine.TierRate75}, f.metrics.refunds)

	seats, err := f.store.SumBookedSeats(f.ctx, tour.ID)
	require.NoError(t, err)
	assert.Zero(t, seats)
}

func TestCancel_LastDayRefundsNothing(t *testing.T) {
	f, tour := scheduled(t, 40)
	b := paidBooking(t, f, tour.ID)
	f.clock.Set(departure.Add(-10 * time.Hour))

	res, err := f.bookings.Cancel(f.ctx, b.ID)

	require.NoError(t, err)
	assert.Equal(t, engine.TierNone, res.Refund.Tier)
	assert.Zero(t, res.Booking.RefundedAmount)
	assert.Nil(t, res.Receipt)
	assert.Empty(t, f.gateway.Refunds())
	assert.Equal(t, tours.BookingCancelled, res.Booking.Status)
}

func TestCancel_Rejections(t *testing.T) {
	f, tour := scheduled(t, 40)
	b := paidBooking(t, f, tour.ID)

	_, err := f.bookings.Cancel(f.ctx, "nope")
	assert.ErrorIs(t, err, tours.ErrBookingNotFound)

	f.clock.Set(departure.Add(time.Minute))
	_, err = f.bookings.Cancel(f.ctx, b.ID)
	assert.ErrorIs(t, err, tours.ErrTourDeparted)

	f.clock.Set(base)
	_, err = f.bookings.Cancel(f.ctx, b.ID)
	require.NoError(t, err)
	_, err = f.bookings.Cancel(f.ctx, b.ID)
	assert.ErrorIs(t, err, tours.ErrNotCancellable)
}

func TestCancel_GatewayFailureLeavesBookingConfirmed(t *testing.T) {
	f, tour := scheduled(t, 40)
	b := paidBooking(t, f, tour.ID)
	f.gateway.FailWith(errors.New("card_declined"))

	_, err := f.bookings.Cancel(f.ctx, b.ID)

	require.ErrorIs(t, err, tours.ErrGateway)
	var gwErr *tours.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, b.ID, gwErr.BookingID)

	stored, err := f.bookings.Booking(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, tours.BookingConfirmed, stored.Status)
	assert.Zero(t, stored.RefundedAmount)
}

func TestRequestRefund_UsesGatewayTable(t *testing.T) {
	// GIVEN: the same lead times as the cancellation tests
	// THEN:  the gateway table pays more in every bucket
	tests := []struct {
		lead time.Duration
		tier engine.RefundTier
		want engine.Money
	}{
		{10 * time.Hour, engine.TierRate75, 161_250},
		{30 * time.Hour, engine.TierRate90, 193_500},
		{5 * 24 * time.Hour, engine.TierFull, 215_000},
	}

	for _, tt := range tests {
		t.Run(tt.lead.String(), func(t *testing.T) {
			f, tour := scheduled(t, 40)
			b := paidBooking(t, f, tour.ID)
			f.clock.Set(departure.Add(-tt.lead))

			res, err := f.bookings.RequestRefund(f.ctx, b.ID)

			require.NoError(t, err)
			assert.Equal(t, "gateway", res.Refund.Table)
			assert.Equal(t, tt.tier, res.Refund.Tier)
			assert.Equal(t, tt.want, res.Booking.RefundedAmount)
			assert.Equal(t, tours.BookingCancelled, res.Booking.Status)
		})
	}
}

func TestRequestRefund_Rejections(t *testing.T) {
	f, tour := scheduled(t, 40)
	unpaid := f.book(t, tour.ID, 1, 1)
	paid := paidBooking(t, f, tour.ID)

	_, err := f.bookings.RequestRefund(f.ctx, unpaid.ID)
	assert.ErrorIs(t, err, tours.ErrNothingToRefund)

	_, err = f.bookings.RequestRefund(f.ctx, paid.ID)
	require.NoError(t, err)

	_, err = f.bookings.RequestRefund(f.ctx, paid.ID)
	assert.ErrorIs(t, err, tours.ErrAlreadyRefunded)
	assert.Len(t, f.gateway.Refunds(), 1)
}

// interleavingGateway runs during once, while the first refund is in flight.
type interleavingGateway struct {
	*gateway.Memory
	once   sync.Once
	during func()
}

func (g *interleavingGateway) Refund(ctx context.Context, req tours.RefundRequest) (tours.Receipt, error) {
	g.once.Do(g.during)
	return g.Memory.Refund(ctx, req)
}

func TestRefunds_OverlappingPathsPayOnce(t *testing.T) {
	type call func(*tours.BookingService, string) (tours.RefundResult, error)
	cancel := func(s *tours.BookingService, id string) (tours.RefundResult, error) {
		return s.Cancel(context.Background(), id)
	}
	refund := func(s *tours.BookingService, id string) (tours.RefundResult, error) {
		return s.RequestRefund(context.Background(), id)
	}

	tests := []struct {
		name         string
		outer, inner call
		want         engine.Money
	}{
		{"cancel then refund request", cancel, refund, 161_250},
		{"refund request then cancel", refund, cancel, 193_500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: a paid booking 30 hours before departure
			// WHEN:  a second refund path starts while the first is at the gateway
			// THEN:  the second is refused and the gateway pays once
			f, tour := scheduled(t, 40)
			b := paidBooking(t, f, tour.ID)
			f.clock.Set(departure.Add(-30 * time.Hour))

			gw := &interleavingGateway{Memory: gateway.NewMemory()}
			svc := tours.NewBookingService(f.store, tours.WithClock(f.clock), tours.WithGateway(gw))
			var innerErr error
			gw.during = func() { _, innerErr = tt.inner(svc, b.ID) }

			res, err := tt.outer(svc, b.ID)

			require.NoError(t, err)
			assert.ErrorIs(t, innerErr, tours.ErrRefundInProgress)
			require.Len(t, gw.Refunds(), 1)
			assert.Equal(t, tt.want, gw.Refunds()[0].Amount)

			stored, err := f.store.GetBooking(f.ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, tours.BookingCancelled, stored.Status)
			assert.Equal(t, tt.want, stored.RefundedAmount)
			assert.Equal(t, res.Booking.RefundedAmount, stored.RefundedAmount)
			assert.LessOrEqual(t, stored.RefundedAmount, stored.PaidAmount)
		})
	}
}

func TestRefunds_ConcurrentCallsSucceedOnce(t *testing.T) {
	f, tour := scheduled(t, 40)
	b := paidBooking(t, f, tour.ID)
	f.clock.Set(departure.Add(-30 * time.Hour))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.bookings.Cancel(f.ctx, b.ID)
			} else {
				_, err = f.bookings.RequestRefund(f.ctx, b.ID)
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	require.Len(t, f.gateway.Refunds(), 1)
	stored, err := f.store.GetBooking(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, tours.BookingCancelled, stored.Status)
	assert.Equal(t, f.gateway.Refunds()[0].Amount, stored.RefundedAmount)
}

func TestRefunds_GatewayFailureReleasesClaim(t *testing.T) {
	f, tour := scheduled(t, 40)
	b := paidBooking(t, f, tour.ID)
	f.gateway.FailWith(errors.New("card_declined"))

	_, err := f.bookings.RequestRefund(f.ctx, b.ID)
	require.ErrorIs(t, err, tours.ErrGateway)

	seats, err := f.store.SumBookedSeats(f.ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, seats)

	f.gateway.FailWith(nil)
	res, err := f.bookings.RequestRefund(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, tours.BookingCancelled, res.Booking.Status)
}
