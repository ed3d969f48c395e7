// Package gateway holds the payment gateway implementations of tours.Gateway.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

// =============================================================================
// STRIPE
// =============================================================================

// Stripe issues refunds through the Stripe API. Amounts are already in the
// currency's smallest unit, which is what Stripe expects.
type Stripe struct {
	api *client.API
	log *zap.Logger
}

var _ tours.Gateway = (*Stripe)(nil)

func NewStripe(secretKey string, log *zap.Logger) *Stripe {
	return &Stripe{api: client.New(secretKey, nil), log: log}
}

func (s *Stripe) Refund(ctx context.Context, req tours.RefundRequest) (tours.Receipt, error) {
	if req.PaymentRef == "" {
		return tours.Receipt{}, errors.New("gateway: missing payment reference")
	}

	params := &stripe.RefundParams{Amount: stripe.Int64(req.Amount.Int64())}
	params.Context = ctx
	// Payment intents start with pi_, anything else is treated as a charge id.
	if strings.HasPrefix(req.PaymentRef, "pi_") {
		params.PaymentIntent = stripe.String(req.PaymentRef)
	} else {
		params.Charge = stripe.String(req.PaymentRef)
	}
	if req.Reason == string(stripe.RefundReasonRequestedByCustomer) {
		params.Reason = stripe.String(req.Reason)
	}
	params.AddMetadata("booking_id", req.BookingID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := s.api.Refunds.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) {
			s.log.Warn("stripe refund rejected",
				zap.String("booking_id", req.BookingID),
				zap.String("code", string(se.Code)),
				zap.String("request_id", se.RequestID))
		}
		return tours.Receipt{}, fmt.Errorf("gateway: stripe refund: %w", err)
	}

	s.log.Info("stripe refund created",
		zap.String("booking_id", req.BookingID), zap.String("refund_id", r.ID), zap.String("status", string(r.Status)))
	return tours.Receipt{ID: r.ID, Amount: engine.Money(r.Amount), Status: string(r.Status)}, nil
}
