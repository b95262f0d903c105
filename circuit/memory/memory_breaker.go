// Package memory provides the in-process circuit breaker used by
// single-worker campaigns.
package memory

import (
	"context"
	"sync"
	"time"

	"saboteur"
	"saboteur/circuit"
)

// MemoryBreaker hands out in-process circuit breakers, one per mutation.
type MemoryBreaker struct {
	mu            sync.RWMutex
	byMutation    map[string]*mutationBreaker
	defaultConfig circuit.BreakerConfig
}

// NewMemoryBreaker creates a breaker manager with the default configuration.
func NewMemoryBreaker() *MemoryBreaker {
	return NewMemoryBreakerWithConfig(circuit.DefaultBreakerConfig())
}

// NewMemoryBreakerWithConfig creates a breaker manager whose breakers are
// created with the given configuration.
func NewMemoryBreakerWithConfig(config circuit.BreakerConfig) *MemoryBreaker {
	return &MemoryBreaker{
		byMutation:    make(map[string]*mutationBreaker),
		defaultConfig: config,
	}
}

// Get returns the breaker for mutation, creating it with the manager's
// default configuration on first use.
func (m *MemoryBreaker) Get(mutation string) circuit.CircuitBreaker {
	return m.GetWithConfig(mutation, m.defaultConfig)
}

// GetWithConfig returns the breaker for mutation, creating it with config on
// first use. The configuration of an existing breaker is never changed.
func (m *MemoryBreaker) GetWithConfig(mutation string, config circuit.BreakerConfig) circuit.CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.byMutation[mutation]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.byMutation[mutation]; ok {
		return cb
	}
	cb = &mutationBreaker{
		mutation: mutation,
		config:   config,
		state:    circuit.StateClosed,
	}
	m.byMutation[mutation] = cb
	return cb
}

// mutationBreaker is the circuit breaker for a single mutation.
type mutationBreaker struct {
	mu       sync.RWMutex
	mutation string
	config   circuit.BreakerConfig
	state    circuit.State
	counts   circuit.BreakerCounts

	// trippedAt is when the breaker last opened
	trippedAt time.Time
	// probes counts executions admitted in the current half-open episode
	probes int
}

// Execute runs fn unless the breaker sheds it.
func (b *mutationBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

// admit decides whether an execution may proceed, moving an open breaker to
// half-open once its cool-down has elapsed.
func (b *mutationBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuit.StateOpen && time.Since(b.trippedAt) >= b.config.Timeout {
		// Cool-down over, start probing.
		b.state = circuit.StateHalfOpen
		b.probes = 0
	}

	switch b.state {
	case circuit.StateOpen:
		return saboteur.ErrCircuitOpen
	case circuit.StateHalfOpen:
		if b.probes >= b.config.HalfOpenMaxReqs {
			return saboteur.ErrCircuitOpen
		}
		b.probes++
	}

	b.counts.Requests++
	return nil
}

// record folds an execution outcome into the counts and moves the state.
func (b *mutationBreaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == circuit.StateHalfOpen && b.counts.ConsecutiveSuccesses >= int64(b.config.HalfOpenMaxReqs) {
			// Every probe passed.
			b.state = circuit.StateClosed
			b.probes = 0
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0

	switch b.state {
	case circuit.StateClosed:
		if b.counts.ConsecutiveFailures >= int64(b.config.Threshold) {
			b.trip()
		}
	case circuit.StateHalfOpen:
		// One failed probe reopens immediately.
		b.trip()
	}
}

// trip opens the breaker. Caller holds the lock.
func (b *mutationBreaker) trip() {
	b.state = circuit.StateOpen
	b.trippedAt = time.Now()
	b.probes = 0
}

// State reports the breaker's position. An open breaker whose cool-down has
// elapsed reports half-open; the actual switch happens on the next Execute.
func (b *mutationBreaker) State() circuit.State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == circuit.StateOpen && time.Since(b.trippedAt) >= b.config.Timeout {
		return circuit.StateHalfOpen
	}
	return b.state
}

// Reset force-closes the breaker and clears its counts.
func (b *mutationBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = circuit.StateClosed
	b.counts = circuit.BreakerCounts{}
	b.probes = 0
}

// Counts returns a snapshot of the execution statistics.
func (b *mutationBreaker) Counts() circuit.BreakerCounts {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.counts
}
