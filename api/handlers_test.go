/*
handlers_test.go - HTTP tests for the API

Drives the full router over the in-memory store: request decoding, error
status mapping, and the booking lifecycle end to end.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/api"
	"github.com/warp/tour-engine/gateway"
	"github.com/warp/tour-engine/metrics"
	"github.com/warp/tour-engine/store/memory"
	"github.com/warp/tour-engine/tours"
)

var (
	now       = time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	departure = now.Add(5 * 24 * time.Hour)
)

type server struct {
	t       *testing.T
	router  *chi.Mux
	clock   *tours.FixedClock
	gateway *gateway.Memory
}

func newServer(t *testing.T) *server {
	t.Helper()
	clock := &tours.FixedClock{T: now}
	gw := gateway.NewMemory()
	store := memory.New()
	opts := []tours.Option{tours.WithClock(clock), tours.WithGateway(gw)}

	h := api.NewHandler(
		tours.NewCatalog(store, opts...),
		tours.NewScheduler(store, opts...),
		tours.NewBookingService(store, opts...),
		api.WithClock(clock),
		api.WithLogger(zap.NewNop()),
	)
	router := api.NewRouter(h, api.RouterOptions{
		AllowedOrigins: []string{"http://localhost:5173"},
		Metrics:        metrics.New("tour"),
	})
	return &server{t: t, router: router, clock: clock, gateway: gw}
}

func (s *server) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed creates route r1 (four 10 km legs), a guide, a driver and a bus.
func (s *server) seed(seats int) {
	s.t.Helper()
	seg := func(i int, station string) api.SegmentDTO {
		return api.SegmentDTO{Index: i, Station: station, Distance: decimal.NewFromInt(10)}
	}
	rec := s.do(http.MethodPost, "/api/routes", api.CreateRouteRequest{ID: "r1", Name: "Coast", Segments: []api.SegmentDTO{
		seg(1, "A"), seg(2, "B"), seg(3, "C"), seg(4, "D"),
	}})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, e := range []api.CreateEmployeeRequest{
		{ID: "g1", Name: "Gita", Role: "tour_guide", RemainingQuota: 2},
		{ID: "d1", Name: "Dimas", Role: "driver", RemainingQuota: 2},
	} {
		rec = s.do(http.MethodPost, "/api/employees", e)
		require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, "/api/buses", api.CreateBusRequest{ID: "bus-a", Plate: "AB-123", SeatCapacity: seats})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *server) tour() api.ScheduleDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/tours", api.CreateTourRequest{
		RouteID: "r1", Name: "Coast tour", DepartureAt: departure, DurationMinutes: 480,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.ScheduleDTO](s.t, rec)
}

func (s *server) book(tourID string, seats, boarding int) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/tours/"+tourID+"/bookings", api.CreateBookingRequest{
		CustomerID:    "c1",
		Tickets:       []api.LineDTO{{Name: "adult", UnitPrice: 100_000, Quantity: seats}},
		Products:      []api.LineDTO{{Name: "lunch", UnitPrice: 15_000, Quantity: 1}},
		BoardingIndex: boarding,
	})
}

// =============================================================================
// CATALOG & TOURS
// =============================================================================

func TestCreateTour_Assigned(t *testing.T) {
	s := newServer(t)
	s.seed(40)

	res := s.tour()

	assert.True(t, res.Assigned)
	assert.Equal(t, "scheduled", res.Tour.Status)
	assert.Equal(t, "g1", res.Tour.GuideID)
	assert.Equal(t, "d1", res.Tour.DriverID)
	assert.Equal(t, "bus-a", res.Tour.BusID)
	assert.Equal(t, departure.Add(8*time.Hour).Format(time.RFC3339), res.Tour.ReturnAt)

	rec := s.do(http.MethodGet, "/api/employees/g1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[api.EmployeeDTO](t, rec).RemainingQuota)
}

func TestCreateTour_ShortageStillCreatesTour(t *testing.T) {
	// GIVEN: one guide, driver and bus, already committed to a tour
	// WHEN:  a second tour departs at the same time
	// THEN:  201 with status unassigned and every shortage listed
	s := newServer(t)
	s.seed(40)
	s.tour()

	res := s.tour()

	assert.False(t, res.Assigned)
	assert.Equal(t, "unassigned", res.Tour.Status)
	assert.ElementsMatch(t, []string{"no_guide", "no_driver", "no_bus"}, res.Shortages)

	rec := s.do(http.MethodGet, "/api/tours?status=unassigned", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.TourDTO](t, rec), 1)
}

func TestAvailableEmployees(t *testing.T) {
	s := newServer(t)
	s.seed(40)
	s.tour()

	during := s.do(http.MethodGet, "/api/employees/available?role=driver&from="+
		departure.Add(time.Hour).Format(time.RFC3339)+"&duration_minutes=60", nil)
	after := s.do(http.MethodGet, "/api/employees/available?role=driver&from="+
		departure.Add(24*time.Hour).Format(time.RFC3339)+"&duration_minutes=60", nil)

	require.Equal(t, http.StatusOK, during.Code)
	assert.Empty(t, decode[[]api.EmployeeDTO](t, during))
	require.Equal(t, http.StatusOK, after.Code)
	assert.Len(t, decode[[]api.EmployeeDTO](t, after), 1)
}

func TestErrorStatuses(t *testing.T) {
	s := newServer(t)
	s.seed(40)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown tour", http.MethodGet, "/api/tours/nope", nil, http.StatusNotFound},
		{"unknown booking", http.MethodGet, "/api/bookings/nope", nil, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/routes/nope", nil, http.StatusNotFound},
		{"bad role", http.MethodPost, "/api/employees", api.CreateEmployeeRequest{Name: "X", Role: "pilot"}, http.StatusBadRequest},
		{"zero seats", http.MethodPost, "/api/buses", api.CreateBusRequest{Plate: "X"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/buses", map[string]any{"seats": 3}, http.StatusBadRequest},
		{"past departure", http.MethodPost, "/api/tours", api.CreateTourRequest{
			RouteID: "r1", Name: "Late", DepartureAt: now.Add(-time.Hour), DurationMinutes: 60,
		}, http.StatusBadRequest},
		{"missing departure param", http.MethodGet, "/api/refund-policies", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.body)

			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[api.ErrorResponse](t, rec).Error)
		})
	}
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestBooking_Lifecycle(t *testing.T) {
	// GIVEN: a scheduled tour on a 3-seat bus
	// WHEN:  seats are booked, paid and refunded at 30h before departure
	// THEN:  admission, price and the gateway refund match the tables
	s := newServer(t)
	s.seed(3)
	tour := s.tour().Tour

	rec := s.book(tour.ID, 2, 1)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[api.BookingDTO](t, rec)
	assert.Equal(t, int64(215_000), b.TotalPrice)
	assert.Equal(t, "confirmed", b.Status)

	rec = s.book(tour.ID, 2, 1)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[api.ErrorResponse](t, rec).Details, "insufficient seats")

	rec = s.do(http.MethodPost, "/api/bookings/"+b.ID+"/payment", api.RecordPaymentRequest{PaymentRef: "pi_123", Amount: 215_000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s.clock.T = departure.Add(-30 * time.Hour)
	rec = s.do(http.MethodPost, "/api/bookings/"+b.ID+"/refund", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[api.RefundResultDTO](t, rec)
	assert.Equal(t, "gateway", res.Refund.Table)
	assert.Equal(t, "rate_90", res.Refund.Tier)
	assert.Equal(t, int64(193_500), res.Refund.Amount)
	assert.NotEmpty(t, res.Refund.ReceiptID)
	assert.Equal(t, "cancelled", res.Booking.Status)
	assert.Len(t, s.gateway.Refunds(), 1)

	rec = s.do(http.MethodPost, "/api/bookings/"+b.ID+"/refund", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, "/api/tours/"+tour.ID+"/bookings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.BookingDTO](t, rec), 1)
}

func TestBooking_NotScheduledTour(t *testing.T) {
	s := newServer(t)
	s.seed(3)
	s.tour()
	unassigned := s.tour().Tour

	rec := s.book(unassigned.ID, 1, 1)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBooking_InvalidBoarding(t *testing.T) {
	s := newServer(t)
	s.seed(3)
	tour := s.tour().Tour

	rec := s.book(tour.ID, 1, 5)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteFare(t *testing.T) {
	s := newServer(t)
	s.seed(3)
	tour := s.tour().Tour

	rec := s.do(http.MethodGet, "/api/tours/"+tour.ID+"/fare?boarding=3&ticket=100000:2&product=15000", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fare := decode[api.FareDTO](t, rec)
	assert.True(t, fare.Fraction.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, int64(215_000), fare.Full)
	assert.Equal(t, int64(115_000), fare.PerTicket)

	rec = s.do(http.MethodGet, "/api/tours/"+tour.ID+"/fare?ticket=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangeBoardingAndCancel(t *testing.T) {
	s := newServer(t)
	s.seed(3)
	tour := s.tour().Tour
	b := decode[api.BookingDTO](t, s.book(tour.ID, 2, 1))

	rec := s.do(http.MethodPost, "/api/bookings/"+b.ID+"/boarding", api.ChangeBoardingRequest{BoardingIndex: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[api.BookingDTO](t, rec).BoardingIndex)

	s.clock.T = departure.Add(-12 * time.Hour)
	rec = s.do(http.MethodPost, "/api/bookings/"+b.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[api.RefundResultDTO](t, rec)
	assert.Equal(t, "none", res.Refund.Tier)
	assert.Equal(t, int64(0), res.Refund.Amount)
	assert.Empty(t, s.gateway.Refunds())

	rec = s.do(http.MethodPost, "/api/bookings/"+b.ID+"/boarding", api.ChangeBoardingRequest{BoardingIndex: 2})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRefundPolicies(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/api/refund-policies?departure="+now.Add(30*time.Hour).Format(time.RFC3339), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.RefundPoliciesDTO](t, rec)
	assert.InDelta(t, 30.0, resp.LeadTimeHours, 0.001)
	require.Len(t, resp.Tables, 2)
	assert.Equal(t, api.RefundTierDTO{Table: "cancellation", Tier: "rate_75", Percent: 75}, resp.Tables[0])
	assert.Equal(t, api.RefundTierDTO{Table: "gateway", Tier: "rate_90", Percent: 90}, resp.Tables[1])
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(http.MethodGet, "/api/tours/t-missing", nil)
	rec = s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/tours/{id}",status="404"`)
}

func TestRateLimiter(t *testing.T) {
	h := api.NewHandler(nil, nil, nil)
	router := api.NewRouter(h, api.RouterOptions{RateLimiter: api.NewRateLimiter(1, 2, zap.NewNop())})

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/refund-policies?departure="+departure.Format(time.RFC3339), nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
