// Package metrics defines the Prometheus collectors for the decision engine
// and thin Record* helpers used throughout the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalExtractionLatency tracks per-extractor latency in seconds.
	SignalExtractionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capgate_signal_extraction_duration_seconds",
			Help:    "Latency of individual signal extractors",
			Buckets: []float64{0.001, 0.005, 0.010, 0.015, 0.025, 0.050, 0.100},
		},
		[]string{"signal"},
	)

	// SignalExtractionFailures counts extractor timeouts and errors.
	SignalExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_signal_extraction_failures_total",
			Help: "Signal extractor failures by reason",
		},
		[]string{"signal", "reason"},
	)

	// DecisionEvaluationLatency tracks the end-to-end decision latency.
	DecisionEvaluationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "capgate_decision_duration_seconds",
			Help:    "End-to-end category loading decision latency",
			Buckets: []float64{0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0},
		},
	)

	// DecisionsTotal counts finished decisions by fallback level.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_decisions_total",
			Help: "Decisions by fallback level",
		},
		[]string{"level"},
	)

	// CategoriesLoadedGauge reports how many categories the last decision chose.
	CategoriesLoadedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capgate_categories_loaded",
			Help: "Number of categories chosen by the most recent decision",
		},
	)

	// BreakerPhaseGauge reports the breaker phase (0=closed, 1=half-open, 2=open).
	BreakerPhaseGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capgate_breaker_phase",
			Help: "Circuit breaker phase (0=closed, 1=half-open, 2=open)",
		},
	)

	// BreakerTransitionsTotal counts breaker phase transitions.
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_breaker_transitions_total",
			Help: "Circuit breaker phase transitions",
		},
		[]string{"from", "to"},
	)

	// RecoveryAttemptsTotal counts recovery strategy executions.
	RecoveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_recovery_attempts_total",
			Help: "Recovery attempts by error kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// CacheOperationsTotal counts decision cache lookups and writes.
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_cache_operations_total",
			Help: "Decision cache operations by type and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// CacheEntriesGauge reports the current number of cached decisions.
	CacheEntriesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capgate_cache_entries",
			Help: "Number of entries in the decision cache",
		},
	)

	// SignalWeightGauge exposes the current learned weight per signal type.
	SignalWeightGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capgate_signal_weight",
			Help: "Learned global weight per signal type",
		},
		[]string{"signal"},
	)

	// LearningBatchesTotal counts retuning cycles by status.
	LearningBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_learning_batches_total",
			Help: "Learning retune batches by status",
		},
		[]string{"status"},
	)

	// PerformanceP95Gauge reports the rolling p95 decision latency in seconds.
	PerformanceP95Gauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capgate_performance_p95_seconds",
			Help: "Rolling p95 decision latency",
		},
	)

	// PerformanceErrorRateGauge reports the rolling error rate (0.0-1.0).
	PerformanceErrorRateGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capgate_performance_error_rate",
			Help: "Rolling decision error rate",
		},
	)

	// DegradedGauge is 1 while sustained degradation is flagged.
	DegradedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capgate_performance_degraded",
			Help: "1 while the performance monitor flags sustained degradation",
		},
	)

	// NotificationsTotal counts emitted and suppressed notifications.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_notifications_total",
			Help: "User notifications by severity and outcome",
		},
		[]string{"severity", "outcome"},
	)
)

// RecordSignalExtraction records one extractor run.
func RecordSignalExtraction(signal string, seconds float64) {
	SignalExtractionLatency.WithLabelValues(signal).Observe(seconds)
}

// RecordSignalFailure records an extractor timeout or error.
func RecordSignalFailure(signal, reason string) {
	SignalExtractionFailures.WithLabelValues(signal, reason).Inc()
}

// RecordDecision records a finished decision.
func RecordDecision(level string, seconds float64, categories int) {
	DecisionEvaluationLatency.Observe(seconds)
	DecisionsTotal.WithLabelValues(level).Inc()
	CategoriesLoadedGauge.Set(float64(categories))
}

// RecordBreakerPhase updates the breaker phase gauge.
func RecordBreakerPhase(phase float64) {
	BreakerPhaseGauge.Set(phase)
}

// RecordBreakerTransition records a breaker phase transition.
func RecordBreakerTransition(from, to string) {
	BreakerTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordRecoveryAttempt records one recovery strategy execution.
func RecordRecoveryAttempt(kind, outcome string) {
	RecoveryAttemptsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordCacheOperation records a cache lookup or write.
func RecordCacheOperation(operation, outcome string) {
	CacheOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordNotification records an emitted or suppressed notification.
func RecordNotification(severity, outcome string) {
	NotificationsTotal.WithLabelValues(severity, outcome).Inc()
}
