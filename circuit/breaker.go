// Package circuit guards trial execution with per-mutation circuit breakers.
//
// A campaign keeps one breaker per mutation. When a mutation keeps crashing
// the settlement engine its breaker opens and sheds that mutation's trials
// while the rest of the campaign keeps running. After a cool-down the breaker
// admits a few probe executions and closes again once they succeed.
package circuit

import (
	"context"
	"time"
)

// Breaker hands out circuit breakers keyed by mutation name.
type Breaker interface {
	// Get returns the breaker for mutation, creating it with the default
	// configuration on first use.
	Get(mutation string) CircuitBreaker
	// GetWithConfig returns the breaker for mutation, creating it with the
	// given configuration on first use.
	GetWithConfig(mutation string, config BreakerConfig) CircuitBreaker
}

// CircuitBreaker shields one mutation's executions.
type CircuitBreaker interface {
	// Execute runs fn unless the breaker is open.
	Execute(ctx context.Context, fn func() error) error
	// State reports the current state.
	State() State
	// Reset force-closes the breaker and clears its counts.
	Reset()
	// Counts returns a snapshot of the execution statistics.
	Counts() BreakerCounts
}

// BreakerConfig tunes when a breaker trips and how it probes recovery.
type BreakerConfig struct {
	// Threshold is how many consecutive failures open the breaker.
	Threshold int
	// Timeout is how long an open breaker waits before going half-open.
	Timeout time.Duration
	// HalfOpenMaxReqs is how many probe executions a half-open breaker
	// admits before deciding whether to close.
	HalfOpenMaxReqs int
}

// DefaultBreakerConfig returns the configuration breakers are created with
// when the caller does not supply one.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:       5,
		Timeout:         30 * time.Second,
		HalfOpenMaxReqs: 3,
	}
}

// BreakerCounts is a snapshot of one breaker's execution statistics.
type BreakerCounts struct {
	Requests             int64 // executions admitted, including probes
	TotalSuccesses       int64
	TotalFailures        int64
	ConsecutiveSuccesses int64
	ConsecutiveFailures  int64
}

// State is the position of a circuit breaker.
type State int

const (
	// StateClosed admits every execution.
	StateClosed State = iota
	// StateOpen sheds every execution.
	StateOpen
	// StateHalfOpen admits a limited number of probe executions.
	StateHalfOpen
)

var stateNames = [...]string{"CLOSED", "OPEN", "HALF_OPEN"}

// String returns the uppercase state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}
