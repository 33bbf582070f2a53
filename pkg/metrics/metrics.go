package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all batch shipping metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Batch run metrics
	RunsStarted   prometheus.Counter
	RunsCompleted *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	StageFailures *prometheus.CounterVec

	// Order metrics
	OrdersFetched      prometheus.Counter
	OrdersDispatched   *prometheus.CounterVec
	DuplicatesResolved prometheus.Counter
	LabelPagesSorted   prometheus.Counter

	// Upstream metrics
	UpstreamCalls        *prometheus.CounterVec
	UpstreamCallDuration *prometheus.HistogramVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "shipstream",
	}
}

// New creates a new Metrics instance
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	m.RunsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "batch_runs_started_total",
			Help:        "Total number of batch shipping runs started",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.RunsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "batch_runs_completed_total",
			Help:      "Total number of batch shipping runs completed, by terminal status",
		},
		[]string{"service", "status"},
	)

	m.RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "batch_run_duration_seconds",
			Help:        "End-to-end batch run duration in seconds",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.StageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "batch_stage_failures_total",
			Help:      "Total number of stage-local failures absorbed into runs",
		},
		[]string{"service", "stage"},
	)

	m.OrdersFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "orders_fetched_total",
			Help:        "Total number of new orders fetched",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.OrdersDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "orders_dispatched_total",
			Help:      "Total number of dispatch attempts, by outcome",
		},
		[]string{"service", "outcome"},
	)

	m.DuplicatesResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "duplicate_orders_resolved_total",
			Help:        "Total number of duplicate orders marked for cancellation",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.LabelPagesSorted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "label_pages_sorted_total",
			Help:        "Total number of label pages classified into buckets",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.UpstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "upstream_calls_total",
			Help:      "Total number of upstream shipping API calls",
		},
		[]string{"service", "endpoint", "status"},
	)

	m.UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Upstream shipping API call duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "endpoint"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RunsStarted,
		m.RunsCompleted,
		m.RunDuration,
		m.StageFailures,
		m.OrdersFetched,
		m.OrdersDispatched,
		m.DuplicatesResolved,
		m.LabelPagesSorted,
		m.UpstreamCalls,
		m.UpstreamCallDuration,
	)

	return m
}

// ObserveHTTPRequest records an HTTP request
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// ObserveUpstreamCall records an upstream API call
func (m *Metrics) ObserveUpstreamCall(endpoint string, status int, duration time.Duration) {
	m.UpstreamCalls.WithLabelValues(m.serviceName, endpoint, strconv.Itoa(status)).Inc()
	m.UpstreamCallDuration.WithLabelValues(m.serviceName, endpoint).Observe(duration.Seconds())
}

// RecordRunCompleted records a terminal run status and duration
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	m.RunsCompleted.WithLabelValues(m.serviceName, status).Inc()
	m.RunDuration.Observe(duration.Seconds())
}

// RecordStageFailure records a stage-local failure
func (m *Metrics) RecordStageFailure(stage string) {
	m.StageFailures.WithLabelValues(m.serviceName, stage).Inc()
}

// RecordDispatch records a dispatch attempt outcome
func (m *Metrics) RecordDispatch(outcome string) {
	m.OrdersDispatched.WithLabelValues(m.serviceName, outcome).Inc()
}

// Handler returns an HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
