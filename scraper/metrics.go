package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the collector run.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	PagesTotal       prometheus.Counter
	ResultsTotal     prometheus.Counter
	QueriesTotal     *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	ThrottleDuration prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_requests_total",
			Help: "Total search API requests by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collector_request_duration_seconds",
			Help:    "Search API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_pages_total",
			Help: "Total result pages accepted by the paginator.",
		},
	)
	results := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_results_total",
			Help: "Total search results kept after the per-query cap.",
		},
	)
	queries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_queries_total",
			Help: "Total queries paginated by stop reason.",
		},
		[]string{"stop_reason"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_errors_total",
			Help: "Total pagination errors by type.",
		},
		[]string{"error_type"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_cache_lookups_total",
			Help: "Page cache lookups by result.",
		},
		[]string{"result"},
	)
	throttle := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_throttle_seconds_total",
			Help: "Total time spent in the inter-page delay.",
		},
	)

	registry.MustRegister(requests, requestDuration, pages, results, queries, errorsTotal, cacheLookups, throttle)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		PagesTotal:       pages,
		ResultsTotal:     results,
		QueriesTotal:     queries,
		ErrorsTotal:      errorsTotal,
		CacheLookups:     cacheLookups,
		ThrottleDuration: throttle,
	}
}

// IncRequest increments the requests counter for an outcome label.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the accepted pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddResults adds n kept results.
func (m *Metrics) AddResults(n int) {
	if m == nil {
		return
	}
	m.ResultsTotal.Add(float64(n))
}

// IncQuery counts a finished query by stop reason.
func (m *Metrics) IncQuery(reason string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(reason).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCache counts a cache hit or miss.
func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// AddThrottle records time spent waiting between pages.
func (m *Metrics) AddThrottle(d time.Duration) {
	if m == nil {
		return
	}
	m.ThrottleDuration.Add(d.Seconds())
}
