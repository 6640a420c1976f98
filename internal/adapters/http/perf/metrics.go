package perf

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports request and upstream timings to Prometheus. The ring-buffer
// Collector feeds the admin dashboard; Metrics feeds external scraping.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	upstreamDuration *prometheus.HistogramVec
	upstreamTotal    *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
}

// NewMetrics registers the collectors on a private registry.
// POST: Handler serves the registry in the Prometheus text format
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "noticeboard_http_request_duration_seconds",
		Help:    "Duration of inbound HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	upstreamDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "noticeboard_upstream_duration_seconds",
		Help:    "Duration of calls to the notice API and identity provider in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "operation"})

	upstreamTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "noticeboard_upstream_requests_total",
		Help: "Calls to upstream services by outcome",
	}, []string{"service", "operation", "status"})

	queryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "noticeboard_db_query_duration_seconds",
		Help:    "Duration of local audit database operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "noticeboard_active_sessions",
		Help: "Browser sessions currently held in memory",
	})

	registry.MustRegister(requestDuration, upstreamDuration, upstreamTotal, queryDuration, activeSessions)

	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		upstreamDuration: upstreamDuration,
		upstreamTotal:    upstreamTotal,
		queryDuration:    queryDuration,
		activeSessions:   activeSessions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveRequest records one inbound request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveUpstream records one outbound call. status 0 means a transport failure.
func (m *Metrics) ObserveUpstream(service, operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(service, operation).Observe(d.Seconds())
	m.upstreamTotal.WithLabelValues(service, operation, strconv.Itoa(status)).Inc()
}

// ObserveQuery records one local database operation.
func (m *Metrics) ObserveQuery(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetActiveSessions publishes the in-memory session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
