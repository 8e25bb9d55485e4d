package telemetry

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the auth counters.
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeForbidden    = "forbidden"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Identity metrics
	ResolveTotal    *prometheus.CounterVec
	ResolveDuration prometheus.Histogram
	LoginTotal      *prometheus.CounterVec
	SignupTotal     *prometheus.CounterVec
	TokensIssued    *prometheus.CounterVec
	ExternalVerify  *prometheus.CounterVec
	ReconcileWrites *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ResolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_identity_resolve_total",
				Help: "Identity resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_identity_resolve_duration_seconds",
				Help:    "Identity resolution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		LoginTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_login_total",
				Help: "Login attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		SignupTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_signup_total",
				Help: "Signups by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_tokens_issued_total",
				Help: "Tokens issued by type",
			},
			[]string{"type"},
		),
		ExternalVerify: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_external_verifications_total",
				Help: "External identity assertion verifications by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ReconcileWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_role_permission_writes_total",
				Help: "Role permission rows written by reconciliation",
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ResolveTotal,
		m.ResolveDuration,
		m.LoginTotal,
		m.SignupTotal,
		m.TokensIssued,
		m.ExternalVerify,
		m.ReconcileWrites,
	)
	return m
}

// NewNopMetrics returns metrics registered on a private registry, for tests
// and commands that never expose /metrics.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// RegisterDBStats exports connection pool statistics for db.
func RegisterDBStats(registry prometheus.Registerer, db *sql.DB, name string) {
	registry.MustRegister(collectors.NewDBStatsCollector(db, name))
}

// HTTPMetricsMiddleware instruments HTTP requests. Routes are labelled by
// their chi pattern so IDs do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
