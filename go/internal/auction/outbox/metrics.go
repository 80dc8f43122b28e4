package outbox

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
}
func (n *NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration)           {}
func (n *NoOpMetricsCollector) RecordOutboxLag(lag int)                                          {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool) {}

type PrometheusMetrics struct {
	events          *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	batchSize       prometheus.Histogram
	batchDuration   prometheus.Histogram
	lag             prometheus.Gauge
	publishAttempts *prometheus.CounterVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gavel",
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events relayed, by type and status.",
		}, []string{"event_type", "status"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gavel",
			Subsystem: "outbox",
			Name:      "publish_duration_seconds",
			Help:      "Time to publish one event including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gavel",
			Subsystem: "outbox",
			Name:      "batch_size",
			Help:      "Events relayed per fallback poll.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gavel",
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Duration of a fallback poll.",
			Buckets:   prometheus.DefBuckets,
		}),
		lag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gavel",
			Subsystem: "outbox",
			Name:      "pending_events",
			Help:      "Unsent outbox rows after the last poll.",
		}),
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gavel",
			Subsystem: "outbox",
			Name:      "publish_attempts_total",
			Help:      "Publish attempts, by type, attempt number and status.",
		}, []string{"event_type", "attempt", "status"}),
	}

	reg.MustRegister(
		m.events,
		m.eventDuration,
		m.batchSize,
		m.batchDuration,
		m.lag,
		m.publishAttempts,
	)
	return m
}

func (m *PrometheusMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	m.events.WithLabelValues(eventType, status(success)).Inc()
	m.eventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordBatchProcessed(count int, duration time.Duration) {
	m.batchSize.Observe(float64(count))
	m.batchDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordOutboxLag(lag int) {
	m.lag.Set(float64(lag))
}

func (m *PrometheusMetrics) RecordPublishAttempt(eventType string, attempt int, success bool) {
	m.publishAttempts.WithLabelValues(eventType, strconv.Itoa(attempt), status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
