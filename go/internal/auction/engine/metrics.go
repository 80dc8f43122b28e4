package engine

import (
	"strconv"
	"time"

	"github.com/mcdev12/gavel/go/internal/auction/state"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for collecting engine metrics
type MetricsCollector interface {
	RecordBid(accepted bool, reason string)
	RecordResolution(outcome string, autoFinalized bool)
	RecordPhase(phase string)
	RecordTimerRestart()
	RecordTimerViolation()
	RecordPersistenceFailure(op string)
	RecordPersistDuration(op string, success bool, duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordBid(accepted bool, reason string)              {}
func (n *NoOpMetricsCollector) RecordResolution(outcome string, autoFinalized bool) {}
func (n *NoOpMetricsCollector) RecordPhase(phase string)                            {}
func (n *NoOpMetricsCollector) RecordTimerRestart()                                 {}
func (n *NoOpMetricsCollector) RecordTimerViolation()                               {}
func (n *NoOpMetricsCollector) RecordPersistenceFailure(op string)                  {}
func (n *NoOpMetricsCollector) RecordPersistDuration(op string, success bool, duration time.Duration) {
}

var allPhases = []state.Phase{
	state.PhaseIdle,
	state.PhaseWaiting,
	state.PhaseBidding,
	state.PhasePaused,
	state.PhaseEnded,
}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	bids            *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	phase           *prometheus.GaugeVec
	timerRestarts   prometheus.Counter
	timerViolations prometheus.Counter
	persistFailures *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the engine collectors and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gavel",
			Subsystem: "auction",
			Name:      "bids_total",
			Help:      "Bids received, by result and rejection reason.",
		}, []string{"result", "reason"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gavel",
			Subsystem: "auction",
			Name:      "items_resolved_total",
			Help:      "Items resolved, by outcome and whether the timer finalized them.",
		}, []string{"outcome", "auto_finalized"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gavel",
			Subsystem: "auction",
			Name:      "phase",
			Help:      "1 for the current auction phase, 0 otherwise.",
		}, []string{"phase"}),
		timerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gavel",
			Subsystem: "auction",
			Name:      "bid_timer_restarts_total",
			Help:      "Bid timer restarts caused by late bids.",
		}),
		timerViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gavel",
			Subsystem: "auction",
			Name:      "timer_invariant_violations_total",
			Help:      "Timer sequencing bugs detected by the engine.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gavel",
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Failed persistence calls, by operation.",
		}, []string{"op"}),
		persistDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gavel",
			Subsystem: "store",
			Name:      "write_duration_seconds",
			Help:      "Duration of queued persistence writes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
	}

	reg.MustRegister(
		m.bids,
		m.resolutions,
		m.phase,
		m.timerRestarts,
		m.timerViolations,
		m.persistFailures,
		m.persistDuration,
	)
	return m
}

func (m *PrometheusMetrics) RecordBid(accepted bool, reason string) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.bids.WithLabelValues(result, reason).Inc()
}

func (m *PrometheusMetrics) RecordResolution(outcome string, autoFinalized bool) {
	m.resolutions.WithLabelValues(outcome, strconv.FormatBool(autoFinalized)).Inc()
}

func (m *PrometheusMetrics) RecordPhase(phase string) {
	for _, p := range allPhases {
		value := 0.0
		if string(p) == phase {
			value = 1
		}
		m.phase.WithLabelValues(string(p)).Set(value)
	}
}

func (m *PrometheusMetrics) RecordTimerRestart() {
	m.timerRestarts.Inc()
}

func (m *PrometheusMetrics) RecordTimerViolation() {
	m.timerViolations.Inc()
}

func (m *PrometheusMetrics) RecordPersistenceFailure(op string) {
	m.persistFailures.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) RecordPersistDuration(op string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.persistDuration.WithLabelValues(op, status).Observe(duration.Seconds())
}
