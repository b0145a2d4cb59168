// Package metrics provides Prometheus metrics for the stats reporter.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Option configures a Manager
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithRegistry registers metrics on a custom registry instead of a fresh one
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Manager) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// WithDurationBuckets overrides the run duration histogram buckets
func WithDurationBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// Manager owns every reporter metric. A nil *Manager is a valid no-op recorder.
type Manager struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	messagesSent      prometheus.Counter
	sendFailures      prometheus.Counter
	messagesDeleted   prometheus.Counter
	deleteFailures    prometheus.Counter
	aggregationErrors prometheus.Counter
	timerFires        *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates and registers all metrics
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "statsreporter",
		subsystem: "reports",
		// Runs are dominated by the inter-message delay, so they take seconds to minutes
		buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	auto := promauto.With(m.registry)

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Report runs by category and final status",
	}, []string{"category", "status"})

	m.runDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a report run, including clearing and pacing",
		Buckets:   m.buckets,
	}, []string{"category"})

	m.messagesSent = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_sent_total",
		Help:      "Chat messages successfully sent",
	})

	m.sendFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "send_failures_total",
		Help:      "Chat message sends that failed and were skipped",
	})

	m.messagesDeleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_deleted_total",
		Help:      "Chat messages deleted while clearing channels",
	})

	m.deleteFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "delete_failures_total",
		Help:      "Chat message deletes that failed and were skipped",
	})

	m.aggregationErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregation_failures_total",
		Help:      "Data source failures while aggregating statistics",
	})

	m.timerFires = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "timer_fires_total",
		Help:      "Daily schedule firings by timezone",
	}, []string{"timezone"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP API requests by route, method and status code",
	}, []string{"route", "method", "code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP API request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	return m
}

// Registry returns the registry the metrics live on
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ReportRun records a finished run
func (m *Manager) ReportRun(category, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(category, status).Inc()
	m.runDuration.WithLabelValues(category).Observe(d.Seconds())
}

func (m *Manager) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Manager) SendFailed() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

func (m *Manager) MessageDeleted() {
	if m != nil {
		m.messagesDeleted.Inc()
	}
}

func (m *Manager) DeleteFailed() {
	if m != nil {
		m.deleteFailures.Inc()
	}
}

func (m *Manager) AggregationFailed() {
	if m != nil {
		m.aggregationErrors.Inc()
	}
}

// TimerFired counts one daily firing for a timezone
func (m *Manager) TimerFired(timezone string) {
	if m != nil {
		m.timerFires.WithLabelValues(timezone).Inc()
	}
}

// HTTPRequest records one API request
func (m *Manager) HTTPRequest(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
