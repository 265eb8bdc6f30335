// Package metrics exposes prometheus collectors for the control plane.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "httpjob"

// Metrics groups every collector the server records.
type Metrics struct {
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	serverInfo      *prometheus.GaugeVec
	operationsTotal *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	pauseToggles    *prometheus.CounterVec
	runtimeSignals  *prometheus.CounterVec
	recurringFired  prometheus.Counter
	scheduledMoved  prometheus.Counter
}

// New registers all collectors on reg. A nil reg gets a fresh registry,
// which is what tests want.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		gatherer: reg,
		serverInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "server_info",
				Help:      "Build and backend information",
			},
			[]string{"version", "store"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Management operations by op and response status",
			},
			[]string{"op", "status"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of management operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
		pauseToggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pause_toggles_total",
				Help:      "Recurring job pause state changes",
			},
			[]string{"direction"},
		),
		runtimeSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runtime_signals_total",
				Help:      "Runtime signals written for running jobs",
			},
			[]string{"kind"},
		),
		recurringFired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recurring_fired_total",
				Help:      "Recurring job runs enqueued by the trigger loop",
			},
		),
		scheduledMoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_promoted_total",
				Help:      "Delayed job runs moved to their queue",
			},
		),
	}

	reg.MustRegister(
		m.serverInfo,
		m.operationsTotal,
		m.opDuration,
		m.httpRequests,
		m.pauseToggles,
		m.runtimeSignals,
		m.recurringFired,
		m.scheduledMoved,
	)
	return m
}

// Init sets the server info gauge.
func (m *Metrics) Init(version, store string) {
	m.serverInfo.WithLabelValues(version, store).Set(1)
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation records one management operation.
func (m *Metrics) ObserveOperation(op string, status int, d time.Duration) {
	m.operationsTotal.WithLabelValues(op, statusLabel(status)).Inc()
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method string, status int) {
	m.httpRequests.WithLabelValues(method, statusLabel(status)).Inc()
}

// PauseToggled counts a pause (paused=true) or a resume.
func (m *Metrics) PauseToggled(paused bool) {
	direction := "resume"
	if paused {
		direction = "pause"
	}
	m.pauseToggles.WithLabelValues(direction).Inc()
}

// RuntimeSignal counts a signal of the given kind ("stop" or "data").
func (m *Metrics) RuntimeSignal(kind string) {
	m.runtimeSignals.WithLabelValues(kind).Inc()
}

// RecurringFired adds n trigger-loop runs.
func (m *Metrics) RecurringFired(n int) {
	if n > 0 {
		m.recurringFired.Add(float64(n))
	}
}

// ScheduledPromoted adds n promoted delayed runs.
func (m *Metrics) ScheduledPromoted(n int) {
	if n > 0 {
		m.scheduledMoved.Add(float64(n))
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
