// Package telemetry exposes Prometheus collectors for adaptive sessions.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the session collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	sessionsStarted  prometheus.Counter
	sessionsActive   prometheus.Gauge
	sessionsStopped  *prometheus.CounterVec
	responses        *prometheus.CounterVec
	itemsPerSession  prometheus.Histogram
	finalSE          prometheus.Histogram
	estimateFallback prometheus.Counter
	operationErrors  *prometheus.CounterVec
	poolVersion      *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg. A nil reg registers nothing,
// which is convenient for tests and one-shot CLI runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "aiq_sessions_started_total",
			Help: "Sessions initialized",
		}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "aiq_sessions_active",
			Help: "Sessions initialized but not yet finished or discarded",
		}),
		sessionsStopped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aiq_sessions_stopped_total",
			Help: "Sessions stopped by stop reason",
		}, []string{"reason"}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aiq_responses_total",
			Help: "Accepted responses by correctness",
		}, []string{"correct"}),
		itemsPerSession: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aiq_items_per_session",
			Help:    "Items administered per finished session",
			Buckets: prometheus.LinearBuckets(5, 5, 8), // 5 to 40
		}),
		finalSE: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aiq_final_standard_error",
			Help:    "Standard error of the ability estimate at finalize",
			Buckets: []float64{0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.5, 0.75, 1},
		}),
		estimateFallback: f.NewCounter(prometheus.CounterOpts{
			Name: "aiq_estimate_fallback_total",
			Help: "Responses where the previous estimate was carried forward",
		}),
		operationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aiq_operation_errors_total",
			Help: "Rejected session operations by operation and error kind",
		}, []string{"operation", "kind"}),
		poolVersion: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aiq_pool_sessions",
			Help: "Sessions started per pool calibration version",
		}, []string{"version"}),
	}
}

// SessionStarted records a new session on the given pool version.
func (m *Metrics) SessionStarted(poolVersion string) {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
	m.poolVersion.WithLabelValues(poolVersion).Inc()
}

// SessionClosed records a session leaving the active set.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// Response records one accepted response.
func (m *Metrics) Response(correct, fallback bool) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.responses.WithLabelValues(label).Inc()
	if fallback {
		m.estimateFallback.Inc()
	}
}

// SessionStopped records the stop reason of a session.
func (m *Metrics) SessionStopped(reason string) {
	if m == nil {
		return
	}
	m.sessionsStopped.WithLabelValues(reason).Inc()
}

// SessionFinalized records the outcome of a finalized session.
func (m *Metrics) SessionFinalized(items int, se float64) {
	if m == nil {
		return
	}
	m.itemsPerSession.Observe(float64(items))
	m.finalSE.Observe(se)
}

// OperationError records a rejected operation.
func (m *Metrics) OperationError(op, kind string) {
	if m == nil {
		return
	}
	m.operationErrors.WithLabelValues(op, kind).Inc()
}
