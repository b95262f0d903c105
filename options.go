package saboteur

import (
	"time"

	"saboteur/circuit"
)

// Config holds the configuration for a fuzz campaign runner.
type Config struct {
	// Lock configuration
	LockTTL time.Duration // Trial lock timeout, default 30s

	// Execution configuration
	ExecTimeout time.Duration // Settlement execution timeout, default 10s

	// Replay configuration
	MaxReplays     int           // Maximum replay count per trial, default 3
	ReplayInterval time.Duration // Replay scan interval, default 30s
	StuckThreshold time.Duration // Stuck trial threshold, default 5min

	// Circuit breaker configuration
	CircuitThreshold    int           // Circuit breaker threshold, default 5
	CircuitTimeout      time.Duration // Circuit breaker recovery time, default 30s
	CircuitHalfOpenReqs int           // Half-open state max requests, default 3

	// Dedupe configuration
	DedupeTTL time.Duration // Seen-trial record TTL, default 24h
}

// DefaultConfig returns the default configuration for a campaign runner.
func DefaultConfig() Config {
	return Config{
		LockTTL:             30 * time.Second,
		ExecTimeout:         10 * time.Second,
		MaxReplays:          3,
		ReplayInterval:      30 * time.Second,
		StuckThreshold:      5 * time.Minute,
		CircuitThreshold:    5,
		CircuitTimeout:      30 * time.Second,
		CircuitHalfOpenReqs: 3,
		DedupeTTL:           24 * time.Hour,
	}
}

// Option is a function that modifies the Config.
type Option func(*Config)

// WithLockTTL sets the trial lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.LockTTL = ttl
	}
}

// WithExecTimeout sets the settlement execution timeout.
func WithExecTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ExecTimeout = timeout
	}
}

// WithMaxReplays sets the maximum replay count per trial.
func WithMaxReplays(maxReplays int) Option {
	return func(c *Config) {
		c.MaxReplays = maxReplays
	}
}

// WithReplayInterval sets the replay scan interval.
func WithReplayInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.ReplayInterval = interval
	}
}

// WithStuckThreshold sets the stuck trial threshold.
func WithStuckThreshold(threshold time.Duration) Option {
	return func(c *Config) {
		c.StuckThreshold = threshold
	}
}

// WithCircuitThreshold sets the circuit breaker failure threshold.
func WithCircuitThreshold(threshold int) Option {
	return func(c *Config) {
		c.CircuitThreshold = threshold
	}
}

// WithCircuitTimeout sets the circuit breaker recovery timeout.
func WithCircuitTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.CircuitTimeout = timeout
	}
}

// WithCircuitHalfOpenReqs sets the maximum requests in half-open state.
func WithCircuitHalfOpenReqs(reqs int) Option {
	return func(c *Config) {
		c.CircuitHalfOpenReqs = reqs
	}
}

// WithDedupeTTL sets the seen-trial record TTL.
func WithDedupeTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.DedupeTTL = ttl
	}
}

// WithConfig applies a complete Config, overriding all values.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// ApplyOptions applies the given options to a default config and returns
// the result.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ToBreakerConfig converts the circuit breaker settings to a BreakerConfig.
func (c *Config) ToBreakerConfig() circuit.BreakerConfig {
	return circuit.BreakerConfig{
		Threshold:       c.CircuitThreshold,
		Timeout:         c.CircuitTimeout,
		HalfOpenMaxReqs: c.CircuitHalfOpenReqs,
	}
}

// Validate validates the configuration and returns an error if invalid.
// The lock TTL must outlast the execution timeout: a trial holds its lock
// through a single execution and nothing extends it.
func (c *Config) Validate() error {
	if c.LockTTL <= 0 {
		return ErrInvalidConfig
	}
	if c.ExecTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.LockTTL <= c.ExecTimeout {
		return ErrInvalidConfig
	}
	if c.MaxReplays < 0 {
		return ErrInvalidConfig
	}
	if c.ReplayInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.StuckThreshold <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitThreshold <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitHalfOpenReqs <= 0 {
		return ErrInvalidConfig
	}
	if c.DedupeTTL <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
