// Package metrics holds the Prometheus collectors for the tier service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skyagent/tier-engine/tier"
)

const namespace = "tier_engine"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	TicketsCompleted   *prometheus.CounterVec
	CommissionVND      *prometheus.CounterVec
	TierChanges        *prometheus.CounterVec
	RolloverDuration   prometheus.Histogram
	BookingsSwept      prometheus.Counter
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		TicketsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_completed_total",
			Help:      "Completed tickets credited to agents, by tier at credit time.",
		}, []string{"tier"}),
		CommissionVND: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_vnd_total",
			Help:      "Commission credited to agents in VND, by tier.",
		}, []string{"tier"}),
		TierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_changes_total",
			Help:      "Tier and grace transitions, by kind and resulting tier.",
		}, []string{"kind", "tier"}),
		RolloverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rollover_duration_seconds",
			Help:      "Duration of a full quarter rollover run.",
			Buckets:   prometheus.DefBuckets,
		}),
		BookingsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_swept_total",
			Help:      "Bookings completed by the background sweep.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.TicketsCompleted,
		m.CommissionVND,
		m.TierChanges,
		m.RolloverDuration,
		m.BookingsSwept,
		m.httpRequestsTotal,
		m.httpRequestLatency,
	)
	return m
}

// ObserveCredit records one credited booking.
func (m *Metrics) ObserveCredit(t tier.Name, tickets int, amount tier.VND) {
	if m == nil {
		return
	}
	m.TicketsCompleted.WithLabelValues(string(t)).Add(float64(tickets))
	m.CommissionVND.WithLabelValues(string(t)).Add(float64(amount))
}

// ObserveChange records one tier or grace transition.
func (m *Metrics) ObserveChange(c tier.Change) {
	if m == nil {
		return
	}
	m.TierChanges.WithLabelValues(string(c.Kind), string(c.To)).Inc()
}

// ObserveRollover records the duration of a rollover run that started at start.
func (m *Metrics) ObserveRollover(start time.Time) {
	if m == nil {
		return
	}
	m.RolloverDuration.Observe(time.Since(start).Seconds())
}

// ObserveSwept records bookings completed by a sweep.
func (m *Metrics) ObserveSwept(n int) {
	if m == nil {
		return
	}
	m.BookingsSwept.Add(float64(n))
}

// Middleware records request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpRequestLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
