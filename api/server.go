/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap request log
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the booking frontend
  6. Metrics:    Request latency histogram (when enabled)
  7. RateLimit:  Token bucket per client IP (when enabled)

ROUTE GROUPS:
  /api/employees/*       Guides and drivers
  /api/buses/*           Fleet
  /api/routes/*          Routes and segments
  /api/tours/*           Tours, bookings per tour, fare quotes
  /api/bookings/*        Booking lifecycle
  /api/refund-policies   Refund tiers for a departure
  /healthz, /metrics     Operations

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/metrics"
)

type RouterOptions struct {
	Log            *zap.Logger
	AllowedOrigins []string
	Metrics        *metrics.Metrics // nil disables /metrics
	MetricsPath    string
	RateLimiter    *RateLimiter // nil disables rate limiting
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Handler)
		}

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/available", h.AvailableEmployees)
			r.Get("/{id}", h.GetEmployee)
		})

		r.Route("/buses", func(r chi.Router) {
			r.Get("/", h.ListBuses)
			r.Post("/", h.CreateBus)
		})

		r.Route("/routes", func(r chi.Router) {
			r.Get("/", h.ListRoutes)
			r.Post("/", h.CreateRoute)
			r.Get("/{id}", h.GetRoute)
		})

		r.Route("/tours", func(r chi.Router) {
			r.Get("/", h.ListTours)
			r.Post("/", h.CreateTour)
			r.Post("/assign-pending", h.AssignPending)
			r.Get("/{id}", h.GetTour)
			r.Post("/{id}/bookings", h.CreateBooking)
			r.Get("/{id}/bookings", h.ListTourBookings)
			r.Get("/{id}/fare", h.QuoteFare)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/payment", h.RecordPayment)
			r.Post("/{id}/boarding", h.ChangeBoarding)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Post("/{id}/refund", h.RefundBooking)
		})

		r.Get("/refund-policies", h.RefundPolicies)
	})

	return r
}
