// Package metrics provides Prometheus collectors for the API: HTTP traffic,
// Google Places calls, cache effectiveness, imports, and rate limiting.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the application's Prometheus collectors.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	cacheLookupsTotal *prometheus.CounterVec

	searchesTotal *prometheus.CounterVec
	importsTotal  *prometheus.CounterVec

	rateLimitRejections prometheus.Counter
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustdiner_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trustdiner_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustdiner_provider_calls_total",
			Help: "Total number of external provider calls",
		},
		[]string{"service", "operation", "status"}, // status: success, error
	)

	m.providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trustdiner_provider_call_duration_seconds",
			Help:    "Time taken for external provider calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"service", "operation"},
	)

	m.cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustdiner_cache_lookups_total",
			Help: "Cache lookups by namespace and result",
		},
		[]string{"namespace", "result"}, // result: hit, miss, error
	)

	m.searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustdiner_searches_total",
			Help: "Completed searches by result source",
		},
		[]string{"source"},
	)

	m.importsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustdiner_imports_total",
			Help: "Venue import attempts by outcome",
		},
		[]string{"outcome"}, // outcome: imported, existing, rejected, failed
	)

	m.rateLimitRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trustdiner_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.providerCallsTotal,
		m.providerCallDuration,
		m.cacheLookupsTotal,
		m.searchesTotal,
		m.importsTotal,
		m.rateLimitRejections,
	}
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a served request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordProviderCall records one external provider call.
func (m *Metrics) RecordProviderCall(service, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.providerCallsTotal.WithLabelValues(service, operation, status).Inc()
	m.providerCallDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit, miss, or error for namespace.
func (m *Metrics) RecordCacheLookup(namespace, result string) {
	if m == nil {
		return
	}
	m.cacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

// RecordSearch records a completed search by its result source.
func (m *Metrics) RecordSearch(source string) {
	if m == nil {
		return
	}
	m.searchesTotal.WithLabelValues(source).Inc()
}

// RecordImport records the outcome of an import attempt.
func (m *Metrics) RecordImport(outcome string) {
	if m == nil {
		return
	}
	m.importsTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitRejection counts a request rejected with 429.
func (m *Metrics) RecordRateLimitRejection() {
	if m == nil {
		return
	}
	m.rateLimitRejections.Inc()
}
