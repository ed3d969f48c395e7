package tours

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/tour-engine/engine"
)

// =============================================================================
// CANCELLATION & REFUNDS
// =============================================================================
//
// Two entry points, two tables:
//   Cancel         -> engine.CancellationRefundTable
//   RequestRefund  -> engine.GatewayRefundTable
//
// The gateway is called outside the store transaction. Before the call the
// booking is claimed (confirmed -> refunding) in its own transaction, so of
// two overlapping refunds only one reaches the gateway. The refund also
// carries an idempotency key per booking and table.
//
//   confirmed --claim--> refunding --gateway ok--> cancelled
//                            |
//                            +--gateway error--> confirmed

var errNoGateway = errors.New("no payment gateway configured")

type RefundResult struct {
	Booking Booking
	Refund  engine.Refund
	Receipt *Receipt // nil when nothing was sent to the gateway
}

// Cancel cancels a confirmed booking before departure and refunds the paid
// amount by the cancellation table. Inside the last day nothing is refunded
// and the gateway is not called.
func (s *BookingService) Cancel(ctx context.Context, bookingID string) (RefundResult, error) {
	b, tour, err := s.refundable(ctx, bookingID)
	if err != nil {
		return RefundResult{}, err
	}
	if b.Status == BookingRefunding {
		return RefundResult{}, ErrRefundInProgress
	}
	if b.Status != BookingConfirmed {
		return RefundResult{}, ErrNotCancellable
	}
	return s.settle(ctx, b, engine.CancellationRefundTable.Compute(s.now(), tour.DepartureAt, b.PaidAmount), "requested_by_customer")
}

// RequestRefund refunds a paid booking by the gateway table and cancels it.
func (s *BookingService) RequestRefund(ctx context.Context, bookingID string) (RefundResult, error) {
	b, tour, err := s.refundable(ctx, bookingID)
	if err != nil {
		return RefundResult{}, err
	}
	if b.Refunded() {
		return RefundResult{}, ErrAlreadyRefunded
	}
	if b.Status == BookingRefunding {
		return RefundResult{}, ErrRefundInProgress
	}
	if b.Status != BookingConfirmed {
		return RefundResult{}, ErrNotCancellable
	}
	if b.PaidAmount <= 0 || b.PaymentRef == "" {
		return RefundResult{}, ErrNothingToRefund
	}
	return s.settle(ctx, b, engine.GatewayRefundTable.Compute(s.now(), tour.DepartureAt, b.PaidAmount), "requested_by_customer")
}

func (s *BookingService) refundable(ctx context.Context, bookingID string) (Booking, Tour, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, Tour{}, err
	}
	tour, err := s.store.GetTour(ctx, b.TourID)
	if err != nil {
		return Booking{}, Tour{}, err
	}
	if !s.now().Before(tour.DepartureAt) {
		return Booking{}, Tour{}, ErrTourDeparted
	}
	return b, tour, nil
}

func (s *BookingService) settle(ctx context.Context, b Booking, refund engine.Refund, reason string) (RefundResult, error) {
	res := RefundResult{Refund: refund}
	held := b.Status

	if refund.Amount > 0 {
		if s.gateway == nil {
			return RefundResult{}, &GatewayError{BookingID: b.ID, Amount: refund.Amount, Err: errNoGateway}
		}
		if err := s.claim(ctx, b); err != nil {
			return RefundResult{}, err
		}
		held = BookingRefunding

		receipt, err := s.gateway.Refund(ctx, RefundRequest{
			BookingID:      b.ID,
			PaymentRef:     b.PaymentRef,
			Amount:         refund.Amount,
			Reason:         reason,
			IdempotencyKey: fmt.Sprintf("refund:%s:%s", refund.Table, b.ID),
		})
		if err != nil {
			s.log.Error("gateway refund failed",
				zap.String("booking_id", b.ID), zap.Int64("amount", refund.Amount.Int64()), zap.Error(err))
			s.release(ctx, b)
			return RefundResult{}, &GatewayError{BookingID: b.ID, Amount: refund.Amount, Err: err}
		}
		res.Receipt = &receipt
	}

	err := s.store.WithTx(ctx, func(st Store) error {
		current, err := st.GetBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if current.Status != held || current.RefundedAmount != b.RefundedAmount {
			return fmt.Errorf("%w: booking %s changed while refunding", ErrConcurrentModification, b.ID)
		}
		current.Status = BookingCancelled
		current.RefundedAmount = refund.Amount
		current.UpdatedAt = s.now()
		res.Booking = current
		return st.SaveBooking(ctx, current)
	})
	if err != nil {
		if res.Receipt != nil {
			s.log.Error("refund issued but booking not updated",
				zap.String("booking_id", b.ID), zap.String("receipt_id", res.Receipt.ID), zap.Error(err))
		}
		return RefundResult{}, err
	}

	s.metrics.RefundIssued(refund.Table, refund.Tier, refund.Amount)
	s.log.Info("booking cancelled",
		zap.String("booking_id", b.ID),
		zap.String("table", refund.Table),
		zap.String("tier", string(refund.Tier)),
		zap.Int64("paid", refund.Paid.Int64()),
		zap.Int64("refunded", refund.Amount.Int64()))
	return res, nil
}

// claim moves b from the status it was read in to refunding. Only one
// caller can win it.
func (s *BookingService) claim(ctx context.Context, b Booking) error {
	return s.store.WithTx(ctx, func(st Store) error {
		current, err := st.GetBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		switch {
		case current.Status == BookingRefunding:
			return ErrRefundInProgress
		case current.Status != b.Status || current.RefundedAmount != b.RefundedAmount || current.PaidAmount != b.PaidAmount:
			return fmt.Errorf("%w: booking %s changed before refunding", ErrConcurrentModification, b.ID)
		}
		current.Status = BookingRefunding
		current.UpdatedAt = s.now()
		return st.SaveBooking(ctx, current)
	})
}

// release returns a claimed booking to its previous status after the
// gateway refused the refund.
func (s *BookingService) release(ctx context.Context, b Booking) {
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(st Store) error {
		current, err := st.GetBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if current.Status != BookingRefunding {
			return nil
		}
		current.Status = b.Status
		current.UpdatedAt = s.now()
		return st.SaveBooking(ctx, current)
	})
	if err != nil {
		s.log.Error("refund claim not released", zap.String("booking_id", b.ID), zap.Error(err))
	}
}
