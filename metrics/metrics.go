// Package metrics provides the metrics interface for the saboteur campaign runner.
package metrics

import (
	"time"

	"saboteur/circuit"
)

// Metrics receives campaign counters and timings. The prometheus subpackage
// is the production implementation; NoopMetrics drops everything.
type Metrics interface {
	// Trial metrics
	TrialPlanned(failure string)
	TrialConfirmed(failure string, duration time.Duration)
	TrialMismatched(failure string)
	TrialErrored(failure string, reason string)
	TrialDiscarded(reason string)
	TrialDuplicate(failure string)

	// Mutation and execution metrics
	MutationApplied(failure, mutation string)
	MutationFailed(failure, mutation string, reason string)
	TrialExecuted(mutation string, duration time.Duration)

	// Circuit breaker metrics
	CircuitStateChanged(mutation string, state circuit.State)

	// Replay metrics
	ReplayScanned(count int)
	ReplayProcessed(failure string, success bool)

	// Lock metrics
	LockAcquired(duration time.Duration)
	LockFailed(reason string)
}

// NoopMetrics discards every observation. It is the runner's default when no
// metrics backend is wired.
type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

func (n *NoopMetrics) TrialPlanned(failure string)                              {}
func (n *NoopMetrics) TrialConfirmed(failure string, duration time.Duration)    {}
func (n *NoopMetrics) TrialMismatched(failure string)                           {}
func (n *NoopMetrics) TrialErrored(failure string, reason string)               {}
func (n *NoopMetrics) TrialDiscarded(reason string)                             {}
func (n *NoopMetrics) TrialDuplicate(failure string)                            {}
func (n *NoopMetrics) MutationApplied(failure, mutation string)                 {}
func (n *NoopMetrics) MutationFailed(failure, mutation string, reason string)   {}
func (n *NoopMetrics) TrialExecuted(mutation string, duration time.Duration)    {}
func (n *NoopMetrics) CircuitStateChanged(mutation string, state circuit.State) {}
func (n *NoopMetrics) ReplayScanned(count int)                                  {}
func (n *NoopMetrics) ReplayProcessed(failure string, success bool)             {}
func (n *NoopMetrics) LockAcquired(duration time.Duration)                      {}
func (n *NoopMetrics) LockFailed(reason string)                                 {}
