/*
handlers.go - HTTP API handlers for the tour engine

PURPOSE:
  Exposes the catalog, scheduler and booking services over REST. Handlers
  parse the request, call one service operation and serialize the result.
  No business rule lives here.

ENDPOINTS:
  Staff & fleet:
    POST   /api/employees                  Add a guide or driver
    GET    /api/employees                  List employees
    GET    /api/employees/available        Free employees for a window
    GET    /api/employees/{id}             Get employee
    POST   /api/buses                      Add a bus
    GET    /api/buses                      List buses

  Routes:
    POST   /api/routes                     Create or replace a route
    GET    /api/routes                     List routes
    GET    /api/routes/{id}                Get route

  Tours:
    POST   /api/tours                      Create and assign a tour
    GET    /api/tours                      List (?from, ?to, ?status)
    POST   /api/tours/assign-pending       Retry unassigned tours
    GET    /api/tours/{id}                 Get tour
    POST   /api/tours/{id}/bookings        Book seats
    GET    /api/tours/{id}/bookings        Bookings of a tour
    GET    /api/tours/{id}/fare            Quote (?boarding, ?ticket=price:qty, ?product=price:qty)

  Bookings:
    GET    /api/bookings/{id}              Get booking
    POST   /api/bookings/{id}/payment      Record captured payment
    POST   /api/bookings/{id}/boarding     Change boarding point
    POST   /api/bookings/{id}/cancel       Cancel (cancellation table)
    POST   /api/bookings/{id}/refund       Refund (gateway table)

  Refund policies:
    GET    /api/refund-policies            Tier of each table (?departure)

ERROR HANDLING:
  - 400: invalid input, bad boarding index, undecodable body
  - 404: unknown tour, booking, route, employee or bus
  - 409: insufficient seats, tour not scheduled, lost concurrent update
  - 422: booking not cancellable or modifiable, already refunded, departed
  - 502: payment gateway failure
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the services the endpoints delegate to.
type Handler struct {
	catalog  *tours.Catalog
	sched    *tours.Scheduler
	bookings *tours.BookingService
	clock    tours.Clock
	health   func(context.Context) error
	log      *zap.Logger
}

type HandlerOption func(*Handler)

// WithHealthCheck sets the probe behind /healthz, usually the store's Ping.
func WithHealthCheck(fn func(context.Context) error) HandlerOption {
	return func(h *Handler) { h.health = fn }
}

func WithLogger(log *zap.Logger) HandlerOption { return func(h *Handler) { h.log = log } }

func WithClock(c tours.Clock) HandlerOption { return func(h *Handler) { h.clock = c } }

func NewHandler(catalog *tours.Catalog, sched *tours.Scheduler, bookings *tours.BookingService, opts ...HandlerOption) *Handler {
	h := &Handler{
		catalog:  catalog,
		sched:    sched,
		bookings: bookings,
		health:   func(context.Context) error { return nil },
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) now() time.Time {
	if h.clock == nil {
		return time.Now().UTC()
	}
	return h.clock.Now()
}

// =============================================================================
// STAFF & FLEET
// =============================================================================

// CreateEmployee adds a guide or driver.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.catalog.AddEmployee(r.Context(), tours.Employee{
		ID:             req.ID,
		Name:           req.Name,
		Email:          req.Email,
		Role:           engine.Role(req.Role),
		RemainingQuota: req.RemainingQuota,
	})
	if err != nil {
		h.fail(w, r, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}

// ListEmployees returns all employees.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.catalog.Employees(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list employees", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(employees, toEmployeeDTO))
}

// GetEmployee returns a single employee.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.catalog.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(e))
}

// AvailableEmployees lists employees of a role free for a window.
// GET /api/employees/available?role=driver&from=2025-06-03T09:00:00Z&duration_minutes=120
func (h *Handler) AvailableEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := engine.Role(q.Get("role"))
	if !role.Valid() {
		h.fail(w, r, "Invalid role", fmt.Errorf("%w: role %q", tours.ErrInvalidInput, q.Get("role")))
		return
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		h.fail(w, r, "Invalid from", fmt.Errorf("%w: from: %v", tours.ErrInvalidInput, err))
		return
	}
	minutes, err := strconv.Atoi(q.Get("duration_minutes"))
	if err != nil || minutes <= 0 {
		h.fail(w, r, "Invalid duration", fmt.Errorf("%w: duration_minutes must be a positive integer", tours.ErrInvalidInput))
		return
	}

	free, err := h.catalog.Available(r.Context(), role, engine.NewTimeWindow(from, time.Duration(minutes)*time.Minute))
	if err != nil {
		h.fail(w, r, "Failed to list available employees", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(free, toEmployeeDTO))
}

// CreateBus adds a bus.
// POST /api/buses
func (h *Handler) CreateBus(w http.ResponseWriter, r *http.Request) {
	var req CreateBusRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	b, err := h.catalog.AddBus(r.Context(), tours.Bus{ID: req.ID, Plate: req.Plate, SeatCapacity: req.SeatCapacity, Active: active})
	if err != nil {
		h.fail(w, r, "Failed to create bus", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBusDTO(b))
}

// ListBuses returns the fleet.
// GET /api/buses
func (h *Handler) ListBuses(w http.ResponseWriter, r *http.Request) {
	buses, err := h.catalog.Buses(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list buses", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(buses, toBusDTO))
}

// =============================================================================
// ROUTES
// =============================================================================

// CreateRoute stores a route, replacing any route with the same id.
// POST /api/routes
func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req CreateRouteRequest
	if !h.decode(w, r, &req) {
		return
	}
	route, err := h.catalog.AddRoute(r.Context(), req.route())
	if err != nil {
		h.fail(w, r, "Failed to create route", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRouteDTO(route))
}

// ListRoutes returns every route with its segments.
// GET /api/routes
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.catalog.Routes(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list routes", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(routes, toRouteDTO))
}

// GetRoute returns a route.
// GET /api/routes/{id}
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := h.catalog.Route(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get route", err)
		return
	}
	writeJSON(w, http.StatusOK, toRouteDTO(route))
}

// =============================================================================
// TOURS
// =============================================================================

// CreateTour creates a tour and tries to staff it. A tour that could not be
// staffed is still created (status unassigned) and lists its shortages.
// POST /api/tours
func (h *Handler) CreateTour(w http.ResponseWriter, r *http.Request) {
	var req CreateTourRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.sched.CreateTour(r.Context(), tours.CreateTourRequest{
		RouteID:     req.RouteID,
		Name:        req.Name,
		DepartureAt: req.DepartureAt,
		Duration:    time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		h.fail(w, r, "Failed to create tour", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(res))
}

// ListTours returns tours in departure order.
// GET /api/tours?from=...&to=...&status=scheduled
func (h *Handler) ListTours(w http.ResponseWriter, r *http.Request) {
	var f tours.TourFilter
	q := r.URL.Query()
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				h.fail(w, r, "Invalid "+key, fmt.Errorf("%w: %s: %v", tours.ErrInvalidInput, key, err))
				return
			}
			*dst = &t
		}
	}
	if v := q.Get("status"); v != "" {
		status := tours.TourStatus(v)
		f.Status = &status
	}

	list, err := h.sched.Tours(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to list tours", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toTourDTO))
}

// GetTour returns a tour.
// GET /api/tours/{id}
func (h *Handler) GetTour(w http.ResponseWriter, r *http.Request) {
	t, err := h.sched.Tour(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get tour", err)
		return
	}
	writeJSON(w, http.StatusOK, toTourDTO(t))
}

// AssignPending re-runs assignment for every unassigned future tour.
// POST /api/tours/assign-pending
func (h *Handler) AssignPending(w http.ResponseWriter, r *http.Request) {
	report, err := h.sched.AssignPending(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to assign pending tours", err)
		return
	}
	writeJSON(w, http.StatusOK, PendingReportDTO{
		Assigned: mapSlice(report.Assigned, toTourDTO),
		Pending:  mapSlice(report.Pending, toScheduleDTO),
	})
}

// =============================================================================
// BOOKINGS
// =============================================================================

// CreateBooking books seats on a tour.
// POST /api/tours/{id}/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.bookings.CreateBooking(r.Context(), tours.CreateBookingRequest{
		TourID:        chi.URLParam(r, "id"),
		CustomerID:    req.CustomerID,
		Tickets:       toLines(req.Tickets),
		Products:      toLines(req.Products),
		BoardingIndex: req.BoardingIndex,
	})
	if err != nil {
		h.fail(w, r, "Failed to create booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

// ListTourBookings returns the bookings of a tour.
// GET /api/tours/{id}/bookings
func (h *Handler) ListTourBookings(w http.ResponseWriter, r *http.Request) {
	list, err := h.bookings.BookingsForTour(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to list bookings", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toBookingDTO))
}

// QuoteFare prices a prospective booking without holding seats.
// GET /api/tours/{id}/fare?boarding=3&ticket=100000:2&product=15000:1
func (h *Handler) QuoteFare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	boarding := 1
	if v := q.Get("boarding"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.fail(w, r, "Invalid boarding", fmt.Errorf("%w: boarding %q", tours.ErrInvalidInput, v))
			return
		}
		boarding = n
	}
	tickets, err := parseLines("ticket", q["ticket"])
	if err != nil {
		h.fail(w, r, "Invalid ticket", err)
		return
	}
	products, err := parseLines("product", q["product"])
	if err != nil {
		h.fail(w, r, "Invalid product", err)
		return
	}

	fare, err := h.bookings.QuoteFare(r.Context(), chi.URLParam(r, "id"), boarding, tickets, products)
	if err != nil {
		h.fail(w, r, "Failed to quote fare", err)
		return
	}
	writeJSON(w, http.StatusOK, FareDTO{
		BoardingIndex:      fare.BoardingIndex,
		Fraction:           fare.Fraction,
		TotalDistance:      fare.TotalDistance,
		DistanceToBoarding: fare.DistanceToBoarding,
		Full:               fare.Full.Int64(),
		PerTicket:          fare.PerTicket.Int64(),
	})
}

// parseLines reads "price:qty" values; qty defaults to 1.
func parseLines(kind string, values []string) ([]tours.Line, error) {
	lines := make([]tours.Line, 0, len(values))
	for _, v := range values {
		price, qty, found := strings.Cut(v, ":")
		p, err := strconv.ParseInt(price, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", tours.ErrInvalidInput, kind, v)
		}
		n := 1
		if found {
			if n, err = strconv.Atoi(qty); err != nil {
				return nil, fmt.Errorf("%w: %s %q", tours.ErrInvalidInput, kind, v)
			}
		}
		lines = append(lines, tours.Line{Name: kind, UnitPrice: engine.Money(p), Quantity: n})
	}
	return lines, nil
}

// GetBooking returns a booking.
// GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Booking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// RecordPayment marks the payment captured for a booking.
// POST /api/bookings/{id}/payment
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.bookings.RecordPayment(r.Context(), chi.URLParam(r, "id"), req.PaymentRef, engine.Money(req.Amount))
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// ChangeBoarding moves a booking to another boarding point and reprices it.
// POST /api/bookings/{id}/boarding
func (h *Handler) ChangeBoarding(w http.ResponseWriter, r *http.Request) {
	var req ChangeBoardingRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.bookings.ChangeBoarding(r.Context(), chi.URLParam(r, "id"), req.BoardingIndex)
	if err != nil {
		h.fail(w, r, "Failed to change boarding", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// CancelBooking cancels a booking under the cancellation table.
// POST /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.bookings.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toRefundResultDTO(res))
}

// RefundBooking refunds through the payment gateway under the gateway table.
// POST /api/bookings/{id}/refund
func (h *Handler) RefundBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.bookings.RequestRefund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to refund booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toRefundResultDTO(res))
}

// RefundPolicies shows which tier each refund table gives for a departure.
// GET /api/refund-policies?departure=2025-06-03T09:00:00Z
func (h *Handler) RefundPolicies(w http.ResponseWriter, r *http.Request) {
	departure, err := time.Parse(time.RFC3339, r.URL.Query().Get("departure"))
	if err != nil {
		h.fail(w, r, "Invalid departure", fmt.Errorf("%w: departure: %v", tours.ErrInvalidInput, err))
		return
	}
	now := h.now()
	resp := RefundPoliciesDTO{
		DepartureAt:   formatTime(departure),
		LeadTimeHours: departure.Sub(now).Hours(),
	}
	for _, table := range []engine.RefundTable{engine.CancellationRefundTable, engine.GatewayRefundTable} {
		tier := table.TierFor(now, departure)
		resp.Tables = append(resp.Tables, RefundTierDTO{Table: table.Name, Tier: string(tier), Percent: tier.Percent()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports whether the store answers.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health(r.Context()); err != nil {
		h.log.Error("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Unhealthy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case tours.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, tours.ErrInvalidInput), errors.Is(err, tours.ErrInvalidBoarding):
		return http.StatusBadRequest
	case errors.Is(err, tours.ErrInsufficientSeats),
		errors.Is(err, tours.ErrTourNotScheduled),
		errors.Is(err, tours.ErrRefundInProgress),
		errors.Is(err, tours.ErrConcurrentModification):
		return http.StatusConflict
	case tours.IsClientError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tours.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil && status < http.StatusInternalServerError {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func mapSlice[T, D any](in []T, fn func(T) D) []D {
	out := make([]D, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
