package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
// It also implements the audit Recorder.
type Metrics struct {
	reg *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	analysesTotal   *prometheus.CounterVec
	modelCallsTotal *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adguardian_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adguardian_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "route"}),
		requestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "adguardian_http_requests_in_flight",
			Help: "HTTP requests being served.",
		}),
		analysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adguardian_analyses_total",
			Help: "Audit analyses by outcome (ok, degraded, graceful_failure, error).",
		}, []string{"outcome"}),
		modelCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adguardian_model_calls_total",
			Help: "Model calls by stage and result kind.",
		}, []string{"stage", "kind"}),
		retriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adguardian_model_retries_total",
			Help: "Rate-limit retries by stage.",
		}, []string{"stage"}),
	}
}

// Gauge registers a value sampled at scrape time, e.g. the open session count.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

func (m *Metrics) Analysis(outcome string) { m.analysesTotal.WithLabelValues(outcome).Inc() }

func (m *Metrics) ModelCall(stage, kind string) { m.modelCallsTotal.WithLabelValues(stage, kind).Inc() }

func (m *Metrics) Retry(stage string) { m.retriesTotal.WithLabelValues(stage).Inc() }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Middleware tracks request metrics. Routes are labelled by chi pattern to bound cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
