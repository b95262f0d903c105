// Package replay provides the replay worker for stuck and replayable trials.
package replay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"saboteur/event"
	"saboteur/lock"
	"saboteur/metrics"
)

// Trial is the worker's view of a stored trial record. The worker keeps
// its own narrow types so it can run against any store backend without
// depending on the engine package.
type Trial struct {
	ID            int64
	TrialID       string
	CampaignID    string
	ScenarioID    string
	Seed          uint64
	Failure       string
	Scope         string
	Mutation      string
	OrderIndex    int
	ResolverIndex int
	Status        string
	ErrorMsg      string
	Attempts      int
	MaxAttempts   int
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExecutedAt    *time.Time
	CompletedAt   *time.Time
}

// TrialStore defines the storage interface needed by the replay worker.
type TrialStore interface {
	GetTrial(ctx context.Context, trialID string) (*Trial, error)
	UpdateTrial(ctx context.Context, trial *Trial) error
	GetStuckTrials(ctx context.Context, olderThan time.Duration) ([]*Trial, error)
	GetReplayableTrials(ctx context.Context, maxAttempts int) ([]*Trial, error)
}

// Runner defines the interface for replaying trials.
type Runner interface {
	ReplayTrial(ctx context.Context, trialID string) error
}

// Config holds the configuration for the replay worker.
type Config struct {
	// ReplayInterval is the interval between replay scans.
	ReplayInterval time.Duration
	// StuckThreshold is the duration after which an in-flight trial is considered stuck.
	StuckThreshold time.Duration
	// MaxReplays is the maximum number of replay attempts per trial.
	MaxReplays int
	// LockTTL is the TTL for replay locks.
	LockTTL time.Duration
}

// DefaultConfig returns the default configuration for the replay worker.
func DefaultConfig() Config {
	return Config{
		ReplayInterval: 30 * time.Second,
		StuckThreshold: 5 * time.Minute,
		MaxReplays:     3,
		LockTTL:        30 * time.Second,
	}
}

// Logger defines the logging interface.
type Logger interface {
	Printf(format string, v ...any)
}

// defaultLogger is the default logger implementation.
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[ReplayWorker] "+format, v...)
}

// Worker is the replay worker that handles stuck and replayable trials.
// It periodically scans for trials that need attention: in-flight trials
// stuck beyond the threshold are demoted to ERRORED, and mismatched or
// errored trials with attempts left are replayed.
type Worker struct {
	store   TrialStore
	locker  lock.Locker
	runner  Runner
	events  event.EventBus
	metrics metrics.Metrics
	config  Config
	logger  Logger

	// State
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex

	// Counters
	scannedCount   int64
	processedCount int64
	failedCount    int64
	countersMu     sync.RWMutex
}

// WorkerOption is a function that configures the Worker.
type WorkerOption func(*Worker)

// WithStore sets the store for the worker.
func WithStore(s TrialStore) WorkerOption {
	return func(w *Worker) {
		w.store = s
	}
}

// WithLocker sets the locker for the worker.
func WithLocker(l lock.Locker) WorkerOption {
	return func(w *Worker) {
		w.locker = l
	}
}

// WithRunner sets the runner for the worker.
func WithRunner(r Runner) WorkerOption {
	return func(w *Worker) {
		w.runner = r
	}
}

// WithEventBus sets the event bus for the worker.
func WithEventBus(e event.EventBus) WorkerOption {
	return func(w *Worker) {
		w.events = e
	}
}

// WithMetrics sets the metrics collector for the worker.
func WithMetrics(m metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithConfig sets the configuration for the worker.
func WithConfig(cfg Config) WorkerOption {
	return func(w *Worker) {
		w.config = cfg
	}
}

// WithLogger sets the logger for the worker.
func WithLogger(l Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a new replay worker with the given options.
func NewWorker(opts ...WorkerOption) *Worker {
	w := &Worker{
		config:  DefaultConfig(),
		logger:  &defaultLogger{},
		metrics: &metrics.NoopMetrics{},
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Start starts the replay worker.
// It runs in the background and periodically scans for trials that need attention.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("replay worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Printf("started with interval=%v, stuckThreshold=%v", w.config.ReplayInterval, w.config.StuckThreshold)
	return nil
}

// Stop stops the replay worker gracefully.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Printf("stopped")
}

// IsRunning returns true if the worker is running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main loop of the replay worker.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ReplayInterval)
	defer ticker.Stop()

	// Run initial scan immediately
	w.scan(ctx)

	for {
		select {
		case <-ticker.C:
			w.scan(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// scan performs a single replay scan.
func (w *Worker) scan(ctx context.Context) {
	w.publishEvent(ctx, event.NewEvent(event.EventReplayStart))

	// 1. Demote stuck trials (in flight beyond threshold)
	stuck, err := w.store.GetStuckTrials(ctx, w.config.StuckThreshold)
	if err != nil {
		w.logger.Printf("failed to get stuck trials: %v", err)
	} else {
		w.incrementScanned(int64(len(stuck)))
		w.metrics.ReplayScanned(len(stuck))
		for _, trial := range stuck {
			w.recoverStuckTrial(ctx, trial)
		}
	}

	// 2. Replay mismatched and errored trials
	replayable, err := w.store.GetReplayableTrials(ctx, w.config.MaxReplays)
	if err != nil {
		w.logger.Printf("failed to get replayable trials: %v", err)
	} else {
		w.incrementScanned(int64(len(replayable)))
		w.metrics.ReplayScanned(len(replayable))
		for _, trial := range replayable {
			w.replayTrial(ctx, trial)
		}
	}
}

// recoverStuckTrial demotes a stuck in-flight trial to ERRORED and, when
// attempts remain, replays it immediately.
func (w *Worker) recoverStuckTrial(ctx context.Context, trial *Trial) {
	// Acquire distributed lock to prevent concurrent handling
	handle, err := w.acquireLock(ctx, trial.TrialID)
	if err != nil {
		// Another instance is processing this trial
		w.logger.Printf("skipping trial %s: lock acquisition failed (likely being processed by another instance)", trial.TrialID)
		return
	}
	defer handle.Release(ctx)

	// Reload trial state to ensure it is still stuck
	current, err := w.store.GetTrial(ctx, trial.TrialID)
	if err != nil {
		w.logger.Printf("failed to reload trial %s: %v", trial.TrialID, err)
		return
	}

	// Only demote trials still in flight
	if current.Status != "PLANNED" && current.Status != "APPLIED" && current.Status != "EXECUTED" {
		w.logger.Printf("trial %s no longer stuck (status=%s)", trial.TrialID, current.Status)
		return
	}

	w.logger.Printf("demoting stuck trial %s (status=%s, stuck since %v)", trial.TrialID, current.Status, current.UpdatedAt)

	// Demote to ERRORED so the replay path can pick it up
	current.ErrorMsg = fmt.Sprintf("stuck in %s since %s", current.Status, current.UpdatedAt.Format(time.RFC3339))
	current.Status = "ERRORED"
	current.Version++
	current.UpdatedAt = time.Now()
	if err := w.store.UpdateTrial(ctx, current); err != nil {
		w.logger.Printf("failed to demote trial %s: %v", trial.TrialID, err)
		w.incrementFailed()
		return
	}

	w.metrics.TrialErrored(current.Failure, "stuck")
	w.publishEvent(ctx, event.NewEvent(event.EventTrialErrored).
		WithTrialID(current.TrialID).
		WithCampaignID(current.CampaignID).
		WithFailure(current.Failure).
		WithMutation(current.Mutation).
		WithData("reason", "stuck"))

	if current.Attempts >= current.MaxAttempts {
		w.alertExhausted(ctx, current)
		return
	}

	// Replay immediately while holding the lock
	w.replayLocked(ctx, current)
}

// replayTrial attempts to replay a mismatched or errored trial.
func (w *Worker) replayTrial(ctx context.Context, trial *Trial) {
	// Acquire distributed lock to prevent concurrent replay
	handle, err := w.acquireLock(ctx, trial.TrialID)
	if err != nil {
		// Another instance is processing this trial
		return
	}
	defer handle.Release(ctx)

	// Reload trial state
	current, err := w.store.GetTrial(ctx, trial.TrialID)
	if err != nil {
		w.logger.Printf("failed to reload trial %s: %v", trial.TrialID, err)
		return
	}

	// Check if trial still needs replay
	if current.Status != "MISMATCHED" && current.Status != "ERRORED" {
		return
	}

	// Check attempt count
	if current.Attempts >= current.MaxAttempts {
		w.alertExhausted(ctx, current)
		return
	}

	w.replayLocked(ctx, current)
}

// replayLocked replays a trial. The caller holds the replay lock.
func (w *Worker) replayLocked(ctx context.Context, trial *Trial) {
	w.logger.Printf("replaying trial %s (attempt %d/%d)", trial.TrialID, trial.Attempts+1, trial.MaxAttempts)

	if err := w.runner.ReplayTrial(ctx, trial.TrialID); err != nil {
		w.logger.Printf("failed to replay trial %s: %v", trial.TrialID, err)
		w.incrementFailed()
		w.metrics.ReplayProcessed(trial.Failure, false)
		w.publishEvent(ctx, event.NewEvent(event.EventAlertWarning).
			WithTrialID(trial.TrialID).
			WithCampaignID(trial.CampaignID).
			WithFailure(trial.Failure).
			WithData("message", fmt.Sprintf("replay failed: %v", err)).
			WithError(err))
		return
	}

	w.incrementProcessed()
	w.metrics.ReplayProcessed(trial.Failure, true)
	w.logger.Printf("successfully replayed trial %s", trial.TrialID)
}

// alertExhausted publishes a critical alert for a trial out of attempts.
func (w *Worker) alertExhausted(ctx context.Context, trial *Trial) {
	w.logger.Printf("trial %s exceeded max replays (%d/%d)", trial.TrialID, trial.Attempts, trial.MaxAttempts)
	w.publishEvent(ctx, event.NewEvent(event.EventAlertCritical).
		WithTrialID(trial.TrialID).
		WithCampaignID(trial.CampaignID).
		WithFailure(trial.Failure).
		WithData("message", fmt.Sprintf("trial %s exceeded max replays", trial.TrialID)).
		WithData("attempts", trial.Attempts).
		WithData("max_attempts", trial.MaxAttempts))
}

// acquireLock acquires the replay lock for a trial.
func (w *Worker) acquireLock(ctx context.Context, trialID string) (lock.LockHandle, error) {
	if w.locker == nil {
		return lock.NoOpHandle{}, nil
	}
	lockKey := fmt.Sprintf("replay:%s", trialID)
	return w.locker.Acquire(ctx, []string{lockKey}, w.config.LockTTL)
}

// publishEvent publishes an event to the event bus.
func (w *Worker) publishEvent(ctx context.Context, e event.Event) {
	if w.events != nil {
		w.events.Publish(ctx, e)
	}
}

// Counter methods

func (w *Worker) incrementScanned(count int64) {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	w.scannedCount += count
}

func (w *Worker) incrementProcessed() {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	w.processedCount++
}

func (w *Worker) incrementFailed() {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	w.failedCount++
}

// Stats holds the current statistics of the replay worker.
type Stats struct {
	ScannedCount   int64
	ProcessedCount int64
	FailedCount    int64
	IsRunning      bool
}

// Stats returns the current statistics of the replay worker.
func (w *Worker) Stats() Stats {
	w.countersMu.RLock()
	defer w.countersMu.RUnlock()
	return Stats{
		ScannedCount:   w.scannedCount,
		ProcessedCount: w.processedCount,
		FailedCount:    w.failedCount,
		IsRunning:      w.IsRunning(),
	}
}

// ResetStats resets the statistics counters.
func (w *Worker) ResetStats() {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	w.scannedCount = 0
	w.processedCount = 0
	w.failedCount = 0
}

// ScanOnce performs a single replay scan synchronously.
// This is useful for testing.
func (w *Worker) ScanOnce(ctx context.Context) {
	w.scan(ctx)
}
