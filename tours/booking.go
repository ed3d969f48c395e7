package tours

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/engine"
)

// =============================================================================
// BOOKING SERVICE - admission, pricing, payment and refunds
// =============================================================================

type BookingService struct {
	store TxStore
	deps
}

func NewBookingService(store TxStore, opts ...Option) *BookingService {
	return &BookingService{store: store, deps: newDeps(opts)}
}

type CreateBookingRequest struct {
	TourID        string
	CustomerID    string
	Tickets       []Line
	Products      []Line
	BoardingIndex int
}

func (r CreateBookingRequest) validate() error {
	if strings.TrimSpace(r.TourID) == "" {
		return invalid("tour_id is required")
	}
	if strings.TrimSpace(r.CustomerID) == "" {
		return invalid("customer_id is required")
	}
	if len(r.Tickets) == 0 {
		return invalid("at least one ticket is required")
	}
	if err := validateLines("ticket", r.Tickets); err != nil {
		return err
	}
	return validateLines("product", r.Products)
}

func validateLines(kind string, lines []Line) error {
	for i, l := range lines {
		if l.Quantity <= 0 {
			return invalid("%s %d: quantity must be positive", kind, i+1)
		}
		if l.UnitPrice < 0 {
			return invalid("%s %d: unit price cannot be negative", kind, i+1)
		}
	}
	return nil
}

// CreateBooking admits and prices a booking in one transaction: the tour row
// is locked, the seat sum is read, Admit decides, and the confirmed booking
// is inserted before the lock is released.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (Booking, error) {
	if err := req.validate(); err != nil {
		return Booking{}, err
	}
	requested := seatCount(req.Tickets)

	var booking Booking
	err := s.retry("create_booking", func() error {
		return s.store.WithTx(ctx, func(st Store) error {
			now := s.now()
			tour, err := st.LockTour(ctx, req.TourID)
			if err != nil {
				return err
			}
			if !tour.Assigned() {
				return ErrTourNotScheduled
			}
			if !now.Before(tour.DepartureAt) {
				return ErrTourDeparted
			}

			route, err := st.GetRoute(ctx, tour.RouteID)
			if err != nil {
				return err
			}
			if !route.HasBoarding(req.BoardingIndex) {
				return ErrInvalidBoarding
			}

			bus, err := st.GetBus(ctx, tour.BusID)
			if err != nil {
				return err
			}
			booked, err := st.SumBookedSeats(ctx, tour.ID)
			if err != nil {
				return err
			}
			adm := engine.Admit(engine.CapacityQuery{
				BusSeatCapacity: bus.SeatCapacity,
				AlreadyBooked:   booked,
				Requested:       requested,
			})
			if !adm.Accepted {
				return &InsufficientSeatsError{TourID: tour.ID, Requested: requested, Available: adm.AvailableSeats}
			}

			quote := engine.AdjustFare(route.EngineSegments(), req.BoardingIndex)
			booking = Booking{
				ID:            s.newID(),
				TourID:        tour.ID,
				CustomerID:    req.CustomerID,
				Tickets:       req.Tickets,
				Products:      req.Products,
				Quantity:      requested,
				BoardingIndex: req.BoardingIndex,
				Status:        BookingConfirmed,
				TotalPrice:    engine.PerTicketTotal(quote, priceLines(req.Tickets), priceLines(req.Products)),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			return st.SaveBooking(ctx, booking)
		})
	})

	var seats *InsufficientSeatsError
	switch {
	case errors.As(err, &seats):
		s.metrics.AdmissionDecided("rejected")
		s.log.Info("booking rejected",
			zap.String("tour_id", req.TourID), zap.Int("requested", seats.Requested), zap.Int("available", seats.Available))
		return Booking{}, err
	case err != nil:
		return Booking{}, err
	}

	s.metrics.AdmissionDecided("accepted")
	s.log.Info("booking confirmed",
		zap.String("booking_id", booking.ID),
		zap.String("tour_id", booking.TourID),
		zap.Int("seats", booking.Quantity),
		zap.Int64("total", booking.TotalPrice.Int64()))
	return booking, nil
}

// FareBreakdown explains a price: Full is the origin price of the same
// lines, PerTicket the price from the boarding station.
type FareBreakdown struct {
	BoardingIndex      int
	Fraction           decimal.Decimal
	TotalDistance      decimal.Decimal
	DistanceToBoarding decimal.Decimal
	Full               engine.Money
	PerTicket          engine.Money
}

func (s *BookingService) QuoteFare(ctx context.Context, tourID string, boardingIndex int, tickets, products []Line) (FareBreakdown, error) {
	if err := validateLines("ticket", tickets); err != nil {
		return FareBreakdown{}, err
	}
	if err := validateLines("product", products); err != nil {
		return FareBreakdown{}, err
	}
	tour, err := s.store.GetTour(ctx, tourID)
	if err != nil {
		return FareBreakdown{}, err
	}
	route, err := s.route(ctx, tour.RouteID)
	if err != nil {
		return FareBreakdown{}, err
	}
	if !route.HasBoarding(boardingIndex) {
		return FareBreakdown{}, ErrInvalidBoarding
	}

	segs := route.EngineSegments()
	quote := engine.AdjustFare(segs, boardingIndex)
	t, p := priceLines(tickets), priceLines(products)
	return FareBreakdown{
		BoardingIndex:      boardingIndex,
		Fraction:           quote.Fraction,
		TotalDistance:      quote.TotalDistance,
		DistanceToBoarding: quote.DistanceToBoarding,
		Full:               engine.PerTicketTotal(engine.AdjustFare(segs, 1), t, p),
		PerTicket:          engine.PerTicketTotal(quote, t, p),
	}, nil
}

func (s *BookingService) route(ctx context.Context, id string) (Route, error) {
	if s.routes != nil {
		return s.routes.GetRoute(ctx, id)
	}
	return s.store.GetRoute(ctx, id)
}

// ChangeBoarding moves a confirmed booking to another boarding station and
// reprices it on the flat basis: the origin price of the whole booking,
// products included, times the new fraction.
func (s *BookingService) ChangeBoarding(ctx context.Context, bookingID string, boardingIndex int) (Booking, error) {
	var booking Booking
	err := s.retry("change_boarding", func() error {
		return s.store.WithTx(ctx, func(st Store) error {
			b, err := st.GetBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			if b.Status != BookingConfirmed {
				return ErrNotModifiable
			}
			tour, err := st.LockTour(ctx, b.TourID)
			if err != nil {
				return err
			}
			now := s.now()
			if !now.Before(tour.DepartureAt) {
				return ErrTourDeparted
			}
			route, err := st.GetRoute(ctx, tour.RouteID)
			if err != nil {
				return err
			}
			if !route.HasBoarding(boardingIndex) {
				return ErrInvalidBoarding
			}

			segs := route.EngineSegments()
			full := engine.PerTicketTotal(engine.AdjustFare(segs, 1), priceLines(b.Tickets), priceLines(b.Products))
			b.TotalPrice = engine.FlatTotal(full, engine.AdjustFare(segs, boardingIndex))
			b.BoardingIndex = boardingIndex
			b.UpdatedAt = now
			booking = b
			return st.SaveBooking(ctx, b)
		})
	})
	if err != nil {
		return Booking{}, err
	}
	s.log.Info("boarding changed",
		zap.String("booking_id", booking.ID), zap.Int("boarding_index", boardingIndex),
		zap.Int64("total", booking.TotalPrice.Int64()))
	return booking, nil
}

// RecordPayment stores the captured payment reference and amount.
func (s *BookingService) RecordPayment(ctx context.Context, bookingID, paymentRef string, amount engine.Money) (Booking, error) {
	if strings.TrimSpace(paymentRef) == "" {
		return Booking{}, invalid("payment reference is required")
	}
	if amount <= 0 {
		return Booking{}, invalid("amount must be positive")
	}

	var booking Booking
	err := s.store.WithTx(ctx, func(st Store) error {
		b, err := st.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.Status.Modifiable() {
			return ErrNotModifiable
		}
		if amount > b.TotalPrice {
			return invalid("amount %s exceeds booking total %s", amount, b.TotalPrice)
		}
		b.PaymentRef = paymentRef
		b.PaidAmount = amount
		b.UpdatedAt = s.now()
		booking = b
		return st.SaveBooking(ctx, b)
	})
	if err != nil {
		return Booking{}, err
	}
	s.log.Info("payment recorded",
		zap.String("booking_id", booking.ID), zap.Int64("amount", amount.Int64()))
	return booking, nil
}

func (s *BookingService) Booking(ctx context.Context, id string) (Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) BookingsForTour(ctx context.Context, tourID string) ([]Booking, error) {
	if _, err := s.store.GetTour(ctx, tourID); err != nil {
		return nil, err
	}
	return s.store.ListBookingsByTour(ctx, tourID)
}
