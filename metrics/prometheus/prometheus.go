// Package prometheus provides a Prometheus implementation of the metrics interface.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"saboteur/circuit"
	"saboteur/metrics"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	// Trial metrics
	trialPlannedTotal    *prometheus.CounterVec
	trialConfirmedTotal  *prometheus.CounterVec
	trialMismatchedTotal *prometheus.CounterVec
	trialErroredTotal    *prometheus.CounterVec
	trialDiscardedTotal  *prometheus.CounterVec
	trialDuplicateTotal  *prometheus.CounterVec
	trialDuration        *prometheus.HistogramVec

	// Mutation and execution metrics
	mutationAppliedTotal *prometheus.CounterVec
	mutationFailedTotal  *prometheus.CounterVec
	executionDuration    *prometheus.HistogramVec

	// Circuit breaker metrics
	circuitState *prometheus.GaugeVec

	// Replay metrics
	replayScannedTotal   prometheus.Counter
	replayProcessedTotal *prometheus.CounterVec

	// Lock metrics
	lockAcquiredTotal   prometheus.Counter
	lockFailedTotal     *prometheus.CounterVec
	lockAcquireDuration prometheus.Histogram
}

var _ metrics.Metrics = (*PrometheusMetrics)(nil)

// Config holds configuration for PrometheusMetrics.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "saboteur")
	Namespace string
	// Subsystem is an optional subsystem name
	Subsystem string
	// Registry is the Prometheus registry to use. If nil, the default registry is used.
	Registry prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "saboteur",
		Subsystem: "",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// New creates a new PrometheusMetrics instance with the given configuration.
func New(cfg Config) *PrometheusMetrics {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &PrometheusMetrics{
		// Trial metrics
		trialPlannedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trial_planned_total",
			Help:      "Total number of trials planned",
		}, []string{"failure"}),

		trialConfirmedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trial_confirmed_total",
			Help:      "Total number of trials whose revert matched the expectation",
		}, []string{"failure"}),

		trialMismatchedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trial_mismatched_total",
			Help:      "Total number of trials whose observed outcome diverged from the expectation",
		}, []string{"failure"}),

		trialErroredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trial_errored_total",
			Help:      "Total number of trials that failed with an infrastructure error",
		}, []string{"failure", "reason"}),

		trialDiscardedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trial_discarded_total",
			Help:      "Total number of trials discarded before execution",
		}, []string{"reason"}),

		trialDuplicateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trial_duplicate_total",
			Help:      "Total number of trials skipped as duplicates",
		}, []string{"failure"}),

		trialDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trial_duration_seconds",
			Help:      "Trial duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"failure"}),

		// Mutation and execution metrics
		mutationAppliedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mutation_applied_total",
			Help:      "Total number of mutations applied to scenarios",
		}, []string{"failure", "mutation"}),

		mutationFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mutation_failed_total",
			Help:      "Total number of mutations that could not be applied",
		}, []string{"failure", "mutation", "reason"}),

		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "execution_duration_seconds",
			Help:      "Settlement execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"mutation"}),

		// Circuit breaker metrics
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
		}, []string{"mutation"}),

		// Replay metrics
		replayScannedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "replay_scanned_total",
			Help:      "Total number of trials scanned for replay",
		}),

		replayProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "replay_processed_total",
			Help:      "Total number of trials processed by replay",
		}, []string{"failure", "success"}),

		// Lock metrics
		lockAcquiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_acquired_total",
			Help:      "Total number of trial locks acquired",
		}),

		lockFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_failed_total",
			Help:      "Total number of trial lock acquisition failures",
		}, []string{"reason"}),

		lockAcquireDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_acquire_duration_seconds",
			Help:      "Time taken to acquire trial locks in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
	}
}

// Trial metrics

func (p *PrometheusMetrics) TrialPlanned(failure string) {
	p.trialPlannedTotal.WithLabelValues(failure).Inc()
}

func (p *PrometheusMetrics) TrialConfirmed(failure string, duration time.Duration) {
	p.trialConfirmedTotal.WithLabelValues(failure).Inc()
	p.trialDuration.WithLabelValues(failure).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) TrialMismatched(failure string) {
	p.trialMismatchedTotal.WithLabelValues(failure).Inc()
}

func (p *PrometheusMetrics) TrialErrored(failure string, reason string) {
	p.trialErroredTotal.WithLabelValues(failure, reason).Inc()
}

func (p *PrometheusMetrics) TrialDiscarded(reason string) {
	p.trialDiscardedTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusMetrics) TrialDuplicate(failure string) {
	p.trialDuplicateTotal.WithLabelValues(failure).Inc()
}

// Mutation and execution metrics

func (p *PrometheusMetrics) MutationApplied(failure, mutation string) {
	p.mutationAppliedTotal.WithLabelValues(failure, mutation).Inc()
}

func (p *PrometheusMetrics) MutationFailed(failure, mutation string, reason string) {
	p.mutationFailedTotal.WithLabelValues(failure, mutation, reason).Inc()
}

func (p *PrometheusMetrics) TrialExecuted(mutation string, duration time.Duration) {
	p.executionDuration.WithLabelValues(mutation).Observe(duration.Seconds())
}

// Circuit breaker metrics

func (p *PrometheusMetrics) CircuitStateChanged(mutation string, state circuit.State) {
	p.circuitState.WithLabelValues(mutation).Set(float64(state))
}

// Replay metrics

func (p *PrometheusMetrics) ReplayScanned(count int) {
	p.replayScannedTotal.Add(float64(count))
}

func (p *PrometheusMetrics) ReplayProcessed(failure string, success bool) {
	successStr := "false"
	if success {
		successStr = "true"
	}
	p.replayProcessedTotal.WithLabelValues(failure, successStr).Inc()
}

// Lock metrics

func (p *PrometheusMetrics) LockAcquired(duration time.Duration) {
	p.lockAcquiredTotal.Inc()
	p.lockAcquireDuration.Observe(duration.Seconds())
}

func (p *PrometheusMetrics) LockFailed(reason string) {
	p.lockFailedTotal.WithLabelValues(reason).Inc()
}
