package tours

import (
	"errors"
	"fmt"

	"github.com/warp/tour-engine/engine"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrTourNotFound     = errors.New("tours: tour not found")
	ErrBookingNotFound  = errors.New("tours: booking not found")
	ErrRouteNotFound    = errors.New("tours: route not found")
	ErrEmployeeNotFound = errors.New("tours: employee not found")
	ErrBusNotFound      = errors.New("tours: bus not found")

	ErrInvalidInput = errors.New("tours: invalid input")

	// ErrTourNotScheduled is returned when booking a tour that has no bus yet.
	ErrTourNotScheduled = errors.New("tours: tour has no bus assigned")

	// ErrTourDeparted is returned for bookings or cancellations after departure.
	ErrTourDeparted = errors.New("tours: tour already departed")

	ErrInvalidBoarding   = errors.New("tours: boarding index is not on the route")
	ErrInsufficientSeats = errors.New("tours: insufficient seats")
	ErrNotCancellable    = errors.New("tours: booking cannot be cancelled")
	ErrNotModifiable     = errors.New("tours: booking is closed for changes")
	ErrAlreadyRefunded   = errors.New("tours: booking already refunded")
	ErrNothingToRefund   = errors.New("tours: booking has no captured payment")

	// ErrRefundInProgress is returned while another refund holds the booking.
	ErrRefundInProgress = errors.New("tours: refund already in progress")

	// ErrConcurrentModification is returned by stores when a serializable
	// transaction lost a race. The services retry on it.
	ErrConcurrentModification = errors.New("tours: concurrent modification")

	ErrGateway = errors.New("tours: payment gateway failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientSeatsError is the service-level rendering of a rejected
// engine.Admission.
type InsufficientSeatsError struct {
	TourID    string
	Requested int
	Available int
}

func (e *InsufficientSeatsError) Error() string {
	return fmt.Sprintf("insufficient seats on tour %s: requested %d, available %d",
		e.TourID, e.Requested, e.Available)
}

func (e *InsufficientSeatsError) Unwrap() error { return ErrInsufficientSeats }

// GatewayError wraps a failed refund call. The booking is left untouched.
type GatewayError struct {
	BookingID string
	Amount    engine.Money
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("refund of %s for booking %s failed: %v", e.Amount, e.BookingID, e.Err)
}

func (e *GatewayError) Unwrap() []error { return []error{ErrGateway, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidBoarding) ||
		errors.Is(err, ErrInsufficientSeats) ||
		errors.Is(err, ErrTourNotScheduled) ||
		errors.Is(err, ErrTourDeparted) ||
		errors.Is(err, ErrNotCancellable) ||
		errors.Is(err, ErrNotModifiable) ||
		errors.Is(err, ErrAlreadyRefunded) ||
		errors.Is(err, ErrNothingToRefund) ||
		errors.Is(err, ErrRefundInProgress)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTourNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrRouteNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrBusNotFound)
}
