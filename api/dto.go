/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API. They keep the tours types free of json tags
  and fix the wire format: money as integers in the smallest currency unit,
  times as RFC 3339, durations in minutes, distances as decimal strings.

NAMING CONVENTION:
  - *DTO:     Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

// =============================================================================
// STAFF & FLEET
// =============================================================================

type EmployeeDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Role           string `json:"role"`
	RemainingQuota int    `json:"remaining_quota"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type CreateEmployeeRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	RemainingQuota int    `json:"remaining_quota"`
}

type BusDTO struct {
	ID           string `json:"id"`
	Plate        string `json:"plate"`
	SeatCapacity int    `json:"seat_capacity"`
	Active       bool   `json:"active"`
}

// CreateBusRequest.Active defaults to true when omitted.
type CreateBusRequest struct {
	ID           string `json:"id"`
	Plate        string `json:"plate"`
	SeatCapacity int    `json:"seat_capacity"`
	Active       *bool  `json:"active"`
}

// =============================================================================
// ROUTES
// =============================================================================

type SegmentDTO struct {
	Index    int             `json:"index"`
	Station  string          `json:"station"`
	Distance decimal.Decimal `json:"distance"`
}

type RouteDTO struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Segments []SegmentDTO `json:"segments"`
}

type CreateRouteRequest = RouteDTO

// =============================================================================
// TOURS
// =============================================================================

type TourDTO struct {
	ID              string `json:"id"`
	RouteID         string `json:"route_id"`
	Name            string `json:"name"`
	DepartureAt     string `json:"departure_at"`
	ReturnAt        string `json:"return_at"`
	DurationMinutes int64  `json:"duration_minutes"`
	GuideID         string `json:"guide_id,omitempty"`
	DriverID        string `json:"driver_id,omitempty"`
	BusID           string `json:"bus_id,omitempty"`
	Status          string `json:"status"`
}

type CreateTourRequest struct {
	RouteID         string    `json:"route_id"`
	Name            string    `json:"name"`
	DepartureAt     time.Time `json:"departure_at"`
	DurationMinutes int64     `json:"duration_minutes"`
}

// ScheduleDTO is a tour plus the roles that could not be filled, if any.
type ScheduleDTO struct {
	Tour      TourDTO  `json:"tour"`
	Assigned  bool     `json:"assigned"`
	Shortages []string `json:"shortages,omitempty"`
}

type PendingReportDTO struct {
	Assigned []TourDTO     `json:"assigned"`
	Pending  []ScheduleDTO `json:"pending"`
}

// =============================================================================
// BOOKINGS
// =============================================================================

type LineDTO struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type BookingDTO struct {
	ID             string    `json:"id"`
	TourID         string    `json:"tour_id"`
	CustomerID     string    `json:"customer_id"`
	Tickets        []LineDTO `json:"tickets"`
	Products       []LineDTO `json:"products,omitempty"`
	Quantity       int       `json:"quantity"`
	BoardingIndex  int       `json:"boarding_index"`
	Status         string    `json:"status"`
	TotalPrice     int64     `json:"total_price"`
	PaidAmount     int64     `json:"paid_amount"`
	PaymentRef     string    `json:"payment_ref,omitempty"`
	RefundedAmount int64     `json:"refunded_amount"`
	CreatedAt      string    `json:"created_at"`
}

type CreateBookingRequest struct {
	CustomerID    string    `json:"customer_id"`
	Tickets       []LineDTO `json:"tickets"`
	Products      []LineDTO `json:"products"`
	BoardingIndex int       `json:"boarding_index"`
}

type RecordPaymentRequest struct {
	PaymentRef string `json:"payment_ref"`
	Amount     int64  `json:"amount"`
}

type ChangeBoardingRequest struct {
	BoardingIndex int `json:"boarding_index"`
}

type FareDTO struct {
	BoardingIndex      int             `json:"boarding_index"`
	Fraction           decimal.Decimal `json:"fraction"`
	TotalDistance      decimal.Decimal `json:"total_distance"`
	DistanceToBoarding decimal.Decimal `json:"distance_to_boarding"`
	Full               int64           `json:"full"`
	PerTicket          int64           `json:"per_ticket"`
}

// =============================================================================
// REFUNDS
// =============================================================================

type RefundDTO struct {
	Table     string `json:"table"`
	Tier      string `json:"tier"`
	Percent   int64  `json:"percent"`
	Paid      int64  `json:"paid"`
	Amount    int64  `json:"amount"`
	ReceiptID string `json:"receipt_id,omitempty"`
}

type RefundResultDTO struct {
	Booking BookingDTO `json:"booking"`
	Refund  RefundDTO  `json:"refund"`
}

type RefundTierDTO struct {
	Table   string `json:"table"`
	Tier    string `json:"tier"`
	Percent int64  `json:"percent"`
}

type RefundPoliciesDTO struct {
	DepartureAt   string          `json:"departure_at"`
	LeadTimeHours float64         `json:"lead_time_hours"`
	Tables        []RefundTierDTO `json:"tables"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toEmployeeDTO(e tours.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:             e.ID,
		Name:           e.Name,
		Email:          e.Email,
		Role:           string(e.Role),
		RemainingQuota: e.RemainingQuota,
		CreatedAt:      formatTime(e.CreatedAt),
	}
}

func toBusDTO(b tours.Bus) BusDTO {
	return BusDTO{ID: b.ID, Plate: b.Plate, SeatCapacity: b.SeatCapacity, Active: b.Active}
}

func toRouteDTO(r tours.Route) RouteDTO {
	dto := RouteDTO{ID: r.ID, Name: r.Name, Segments: make([]SegmentDTO, len(r.Segments))}
	for i, s := range r.Segments {
		dto.Segments[i] = SegmentDTO{Index: s.Index, Station: s.Station, Distance: s.Distance}
	}
	return dto
}

func (r RouteDTO) route() tours.Route {
	route := tours.Route{ID: r.ID, Name: r.Name, Segments: make([]tours.Segment, len(r.Segments))}
	for i, s := range r.Segments {
		route.Segments[i] = tours.Segment{Index: s.Index, Station: s.Station, Distance: s.Distance}
	}
	return route
}

func toTourDTO(t tours.Tour) TourDTO {
	return TourDTO{
		ID:              t.ID,
		RouteID:         t.RouteID,
		Name:            t.Name,
		DepartureAt:     formatTime(t.DepartureAt),
		ReturnAt:        formatTime(t.DepartureAt.Add(t.Duration)),
		DurationMinutes: int64(t.Duration / time.Minute),
		GuideID:         t.GuideID,
		DriverID:        t.DriverID,
		BusID:           t.BusID,
		Status:          string(t.Status),
	}
}

func toScheduleDTO(r tours.ScheduleResult) ScheduleDTO {
	dto := ScheduleDTO{Tour: toTourDTO(r.Tour), Assigned: r.Assigned()}
	for _, s := range r.Shortages {
		dto.Shortages = append(dto.Shortages, string(s))
	}
	return dto
}

func toLineDTOs(lines []tours.Line) []LineDTO {
	out := make([]LineDTO, len(lines))
	for i, l := range lines {
		out[i] = LineDTO{Name: l.Name, UnitPrice: l.UnitPrice.Int64(), Quantity: l.Quantity}
	}
	return out
}

func toLines(dtos []LineDTO) []tours.Line {
	out := make([]tours.Line, len(dtos))
	for i, d := range dtos {
		out[i] = tours.Line{Name: d.Name, UnitPrice: engine.Money(d.UnitPrice), Quantity: d.Quantity}
	}
	return out
}

func toBookingDTO(b tours.Booking) BookingDTO {
	return BookingDTO{
		ID:             b.ID,
		TourID:         b.TourID,
		CustomerID:     b.CustomerID,
		Tickets:        toLineDTOs(b.Tickets),
		Products:       toLineDTOs(b.Products),
		Quantity:       b.Quantity,
		BoardingIndex:  b.BoardingIndex,
		Status:         string(b.Status),
		TotalPrice:     b.TotalPrice.Int64(),
		PaidAmount:     b.PaidAmount.Int64(),
		PaymentRef:     b.PaymentRef,
		RefundedAmount: b.RefundedAmount.Int64(),
		CreatedAt:      formatTime(b.CreatedAt),
	}
}

func toRefundResultDTO(r tours.RefundResult) RefundResultDTO {
	dto := RefundResultDTO{
		Booking: toBookingDTO(r.Booking),
		Refund: RefundDTO{
			Table:   r.Refund.Table,
			Tier:    string(r.Refund.Tier),
			Percent: r.Refund.Tier.Percent(),
			Paid:    r.Refund.Paid.Int64(),
			Amount:  r.Refund.Amount.Int64(),
		},
	}
	if r.Receipt != nil {
		dto.Refund.ReceiptID = r.Receipt.ID
	}
	return dto
}
