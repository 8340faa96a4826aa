package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestration collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	emergencyTransitions *prometheus.CounterVec
	notificationAttempts *prometheus.CounterVec
	notificationFallback *prometheus.CounterVec
	escalations          *prometheus.CounterVec
	followUps            prometheus.Counter
	activeTimers         *prometheus.GaugeVec
	dispatchQueueDepth   prometheus.Gauge
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		emergencyTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emergency_transitions_total",
				Help: "Emergency lifecycle transitions by target status",
			},
			[]string{"to"},
		),
		notificationAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_attempts_total",
				Help: "Notification delivery attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		notificationFallback: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_fallbacks_total",
				Help: "Channel fallbacks issued after a failed attempt",
			},
			[]string{"from", "to"},
		),
		escalations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escalations_total",
				Help: "Escalation timers by outcome",
			},
			[]string{"outcome"},
		),
		followUps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "follow_ups_total",
				Help: "Follow-up notification rounds dispatched",
			},
		),
		activeTimers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_timers",
				Help: "Timers currently scheduled by kind",
			},
			[]string{"kind"},
		),
		dispatchQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dispatch_queue_depth",
				Help: "Notification jobs waiting for a worker",
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

func (m *Metrics) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.emergencyTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) RecordAttempt(channel, outcome string) {
	if m == nil {
		return
	}
	m.notificationAttempts.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) RecordFallback(from, to string) {
	if m == nil {
		return
	}
	m.notificationFallback.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordEscalation(outcome string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordFollowUp() {
	if m == nil {
		return
	}
	m.followUps.Inc()
}

func (m *Metrics) SetActiveTimers(kind string, n int) {
	if m == nil {
		return
	}
	m.activeTimers.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.dispatchQueueDepth.Set(float64(n))
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
