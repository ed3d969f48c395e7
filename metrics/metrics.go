/*
metrics.go - Prometheus collectors for the tour engine

PURPOSE:
  Counts scheduling, admission and refund decisions and times HTTP requests.
  Metrics implements tours.Recorder so the services never import Prometheus.

SERIES:
  <ns>_tour_assignments_total{outcome}          assigned | unassigned
  <ns>_booking_admissions_total{outcome}        accepted | rejected
  <ns>_refunds_total{table,tier}
  <ns>_refund_amount_total{table}               smallest currency unit
  <ns>_http_request_duration_seconds{method,route,status}

SEE ALSO:
  - tours/store.go: Recorder
  - api/server.go: where Middleware and Handler are mounted
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	assignments  *prometheus.CounterVec
	admissions   *prometheus.CounterVec
	refunds      *prometheus.CounterVec
	refundAmount *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ tours.Recorder = (*Metrics)(nil)

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(namespace, reg)
}

func NewWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tour_assignments_total",
			Help:      "Resource assignment decisions by outcome.",
		}, []string{"outcome"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_admissions_total",
			Help:      "Seat admission decisions by outcome.",
		}, []string{"outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund decisions by table and tier.",
		}, []string{"table", "tier"}),
		refundAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_amount_total",
			Help:      "Refunded amount in the smallest currency unit.",
		}, []string{"table"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.assignments, m.admissions, m.refunds, m.refundAmount, m.httpDuration)
	return m
}

func (m *Metrics) AssignmentDecided(outcome string) {
	m.assignments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AdmissionDecided(outcome string) {
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RefundIssued(table string, tier engine.RefundTier, amount engine.Money) {
	m.refunds.WithLabelValues(table, string(tier)).Inc()
	if amount > 0 {
		m.refundAmount.WithLabelValues(table).Add(float64(amount))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware times each request. The route label is the chi pattern
// ("/api/tours/{id}"), never the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
