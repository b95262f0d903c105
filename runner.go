package saboteur

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"saboteur/circuit"
	"saboteur/dedupe"
	"saboteur/event"
	"saboteur/lock"
	"saboteur/metrics"
	"saboteur/tracing"
)

// TrialResult represents the outcome of running one trial.
type TrialResult struct {
	// TrialID is the trial ID.
	TrialID string
	// Status is the final trial status.
	Status TrialStatus
	// Verdict is the settlement engine's observed outcome. It stays nil
	// when the trial never reached execution.
	Verdict *Verdict
	// Error contains any error that occurred.
	Error error
	// Duration is the total run time.
	Duration time.Duration
}

// Runner drives trials end to end: plan a failure for a scenario, apply
// its mutation, submit the corrupted payload to the settlement engine
// and judge the verdict against the planned revert payload.
type Runner struct {
	// Dependencies
	engine   *Engine
	store    TrialStore
	locker   lock.Locker
	breaker  circuit.Breaker
	events   event.EventBus
	checker  dedupe.Checker
	metrics  metrics.Metrics
	tracer   tracing.Tracer
	mutator  Mutator
	executor Executor
	source   ScenarioSource

	// Campaign identity
	campaignID string

	// Configuration
	config Config
}

// RunnerOption is a function that configures the Runner.
type RunnerOption func(*Runner)

// WithEngine sets the planning engine for the runner.
func WithEngine(e *Engine) RunnerOption {
	return func(r *Runner) {
		r.engine = e
	}
}

// WithStore sets the trial store for the runner.
func WithStore(s TrialStore) RunnerOption {
	return func(r *Runner) {
		r.store = s
	}
}

// WithLocker sets the locker for the runner.
func WithLocker(l lock.Locker) RunnerOption {
	return func(r *Runner) {
		r.locker = l
	}
}

// WithBreaker sets the circuit breaker for the runner.
func WithBreaker(b circuit.Breaker) RunnerOption {
	return func(r *Runner) {
		r.breaker = b
	}
}

// WithEventBus sets the event bus for the runner.
func WithEventBus(e event.EventBus) RunnerOption {
	return func(r *Runner) {
		r.events = e
	}
}

// WithChecker sets the dedupe checker for the runner.
func WithChecker(ch dedupe.Checker) RunnerOption {
	return func(r *Runner) {
		r.checker = ch
	}
}

// WithMetrics sets the metrics collector for the runner.
func WithMetrics(m metrics.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTracer sets the tracer for the runner.
func WithTracer(t tracing.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = t
	}
}

// WithMutator sets the mutator for the runner.
func WithMutator(m Mutator) RunnerOption {
	return func(r *Runner) {
		r.mutator = m
	}
}

// WithExecutor sets the settlement executor for the runner.
func WithExecutor(e Executor) RunnerOption {
	return func(r *Runner) {
		r.executor = e
	}
}

// WithScenarioSource sets the scenario source used to reproduce
// scenarios for replayed trials.
func WithScenarioSource(s ScenarioSource) RunnerOption {
	return func(r *Runner) {
		r.source = s
	}
}

// WithCampaignID sets the campaign the runner's trials belong to.
func WithCampaignID(id string) RunnerOption {
	return func(r *Runner) {
		r.campaignID = id
	}
}

// WithRunnerConfig sets the configuration for the runner.
func WithRunnerConfig(cfg Config) RunnerOption {
	return func(r *Runner) {
		r.config = cfg
	}
}

// NewRunner creates a new Runner with the given options.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		campaignID: "default",
		config:     DefaultConfig(),
		metrics:    &metrics.NoopMetrics{},
		tracer:     &tracing.NoopTracer{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// CampaignID returns the campaign the runner's trials belong to.
func (r *Runner) CampaignID() string {
	return r.campaignID
}

// Run plans and runs one trial for a scenario and returns the result.
// This is the main entry point for trial execution.
func (r *Runner) Run(ctx context.Context, scn *Scenario) (*TrialResult, error) {
	startTime := time.Now()

	if err := r.validate(); err != nil {
		return nil, err
	}

	trialID := uuid.New().String()

	// Plan the failure
	plan, err := r.engine.Plan(scn)
	if err != nil {
		if errors.Is(err, ErrNoEligibleFailure) ||
			errors.Is(err, ErrNoEligibleOrder) ||
			errors.Is(err, ErrNoEligibleResolver) {
			return r.discardTrial(ctx, trialID, scn, err, startTime)
		}
		return nil, err
	}

	ctx, span := r.tracer.StartTrial(ctx, trialID, plan.Failure.String())
	defer span.End()

	// Serialize identical trials
	key := trialKey(r.campaignID, scn.Seed, plan)
	lockHandle, err := r.acquireLock(ctx, key)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	defer lockHandle.Release(ctx)

	// Check for an already completed identical trial
	if dup, err := r.checkSeen(ctx, key, plan, startTime); err != nil {
		span.SetError(err)
		return nil, err
	} else if dup != nil {
		return dup, ErrDuplicateTrial
	}

	// Create trial record in store
	trial := NewStoreTrial(trialID, r.campaignID, scn)
	trial.SetPlan(plan)
	trial.MaxAttempts = r.config.MaxReplays
	if err := r.store.CreateTrial(ctx, trial); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to create trial: %w", err)
	}

	r.metrics.TrialPlanned(trial.Failure)
	r.publishEvent(ctx, event.NewEvent(event.EventTrialPlanned).
		WithTrialID(trial.TrialID).
		WithCampaignID(trial.CampaignID).
		WithFailure(trial.Failure).
		WithMutation(trial.Mutation))

	// Mutate and execute
	verdict, err := r.runTrial(ctx, trial, scn, plan)
	if err != nil {
		span.SetError(err)
		return r.handleFailure(ctx, trial, err, startTime)
	}

	// Judge the verdict
	return r.settleVerdict(ctx, trial, plan, verdict, startTime)
}

// Replay re-runs a mismatched or errored trial from its reproduced
// scenario. This is called by the replay worker; the caller holds the
// replay lock and has reloaded the trial.
func (r *Runner) Replay(ctx context.Context, trial *StoreTrial, scn *Scenario) (*TrialResult, error) {
	startTime := time.Now()

	if err := r.validate(); err != nil {
		return nil, err
	}

	if !trial.IsReplayable() {
		return nil, fmt.Errorf("%w: cannot replay status %s", ErrInvalidTrialState, trial.Status)
	}
	if !trial.CanReplay() {
		return nil, fmt.Errorf("%w: %d of %d attempts used", ErrMaxReplaysExceeded, trial.Attempts, trial.MaxAttempts)
	}

	// Re-plan from the reproduced scenario. Planning is deterministic in
	// the seed, so a divergence means the scenario source or the catalog
	// changed under the trial.
	plan, err := r.engine.Plan(scn)
	if err != nil {
		return nil, err
	}
	if plan.Detail.Mutation != trial.Mutation ||
		plan.State.OrderIndex != trial.OrderIndex ||
		plan.State.ResolverIndex != trial.ResolverIndex {
		return nil, fmt.Errorf("%w: replay planned %s[%d,%d] but trial recorded %s[%d,%d]",
			ErrInvalidTrialState,
			plan.Detail.Mutation, plan.State.OrderIndex, plan.State.ResolverIndex,
			trial.Mutation, trial.OrderIndex, trial.ResolverIndex)
	}

	trial.Attempts++
	trial.Status = TrialStatusPlanned
	trial.ErrorMsg = ""
	trial.Actual = nil
	trial.Expected = plan.Expected
	if err := r.updateTrialWithVersion(ctx, trial); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.StartTrial(ctx, trial.TrialID, trial.Failure)
	defer span.End()

	verdict, err := r.runTrial(ctx, trial, scn, plan)
	if err != nil {
		span.SetError(err)
		return r.handleFailure(ctx, trial, err, startTime)
	}

	return r.settleVerdict(ctx, trial, plan, verdict, startTime)
}

// ReplayTrial reloads a trial by ID, reproduces its scenario and
// replays it. The replay worker calls this through its Runner
// interface.
func (r *Runner) ReplayTrial(ctx context.Context, trialID string) error {
	if r.store == nil {
		return fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if r.source == nil {
		return fmt.Errorf("%w: scenario source is required", ErrInvalidConfig)
	}

	trial, err := r.store.GetTrial(ctx, trialID)
	if err != nil {
		return err
	}

	scn, err := r.source.Reproduce(ctx, trial)
	if err != nil {
		return fmt.Errorf("failed to reproduce scenario for trial %s: %w", trialID, err)
	}

	_, err = r.Replay(ctx, trial, scn)
	return err
}

// validate checks that the runner has everything a trial needs.
func (r *Runner) validate() error {
	if r.engine == nil {
		return fmt.Errorf("%w: engine is required", ErrInvalidConfig)
	}
	if r.store == nil {
		return fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if r.mutator == nil {
		return fmt.Errorf("%w: mutator is required", ErrInvalidConfig)
	}
	if r.executor == nil {
		return fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}
	return nil
}

// acquireLock acquires the distributed lock for a trial key.
func (r *Runner) acquireLock(ctx context.Context, key string) (lock.LockHandle, error) {
	if r.locker == nil {
		// Return a no-op lock handle if no locker is configured
		return lock.NoOpHandle{}, nil
	}

	start := time.Now()
	handle, err := r.locker.Acquire(ctx, []string{key}, r.config.LockTTL)
	if err != nil {
		r.metrics.LockFailed("acquire")
		return nil, fmt.Errorf("%w: %v", ErrLockAcquisitionFailed, err)
	}

	// The lock outlives a single execution because Config.Validate
	// requires LockTTL > ExecTimeout; nothing extends it.
	r.metrics.LockAcquired(time.Since(start))
	return handle, nil
}

// seenResult is the cached outcome stored against a trial key.
type seenResult struct {
	TrialID string      `json:"trial_id"`
	Status  TrialStatus `json:"status"`
}

// checkSeen reports a completed identical trial as a duplicate result,
// or nil when the key is unseen.
func (r *Runner) checkSeen(ctx context.Context, key string, plan *Plan, startTime time.Time) (*TrialResult, error) {
	if r.checker == nil {
		return nil, nil
	}

	exists, cached, err := r.checker.Seen(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDedupeCheckFailed, err)
	}
	if !exists {
		return nil, nil
	}

	result := &TrialResult{
		Error:    ErrDuplicateTrial,
		Duration: time.Since(startTime),
	}
	if len(cached) > 0 {
		var seen seenResult
		if err := json.Unmarshal(cached, &seen); err == nil {
			result.TrialID = seen.TrialID
			result.Status = seen.Status
		}
	}

	r.metrics.TrialDuplicate(plan.Failure.String())
	r.publishEvent(ctx, event.NewEvent(event.EventTrialDuplicate).
		WithTrialID(result.TrialID).
		WithCampaignID(r.campaignID).
		WithFailure(plan.Failure.String()).
		WithMutation(plan.Detail.Mutation).
		WithData("key", key))

	return result, nil
}

// markSeen records a completed trial's outcome against its key.
func (r *Runner) markSeen(ctx context.Context, trial *StoreTrial) {
	if r.checker == nil {
		return
	}
	result, _ := json.Marshal(seenResult{TrialID: trial.TrialID, Status: trial.Status})
	r.checker.Mark(ctx, trial.Key(), result, r.config.DedupeTTL)
}

// runTrial applies the planned mutation and submits the corrupted
// payload, walking the trial through APPLIED and EXECUTED.
func (r *Runner) runTrial(ctx context.Context, trial *StoreTrial, scn *Scenario, plan *Plan) (*Verdict, error) {
	payload, err := r.applyMutation(ctx, trial, scn, plan)
	if err != nil {
		return nil, err
	}

	return r.executePayload(ctx, trial, plan, payload)
}

// applyMutation runs the mutate phase.
func (r *Runner) applyMutation(ctx context.Context, trial *StoreTrial, scn *Scenario, plan *Plan) ([]byte, error) {
	phaseCtx, span := r.tracer.StartPhase(ctx, trial.TrialID, "mutate", plan.Detail.Mutation)
	defer span.End()

	payload, err := r.mutator.Apply(phaseCtx, scn, plan)
	if err != nil {
		span.SetError(err)
		r.metrics.MutationFailed(trial.Failure, trial.Mutation, "apply")
		return nil, fmt.Errorf("%w: %s: %v", ErrMutationFailed, plan.Detail.Mutation, err)
	}

	trial.Status = TrialStatusApplied
	if err := r.updateTrialWithVersion(ctx, trial); err != nil {
		return nil, err
	}

	r.metrics.MutationApplied(trial.Failure, trial.Mutation)
	r.publishEvent(ctx, event.NewEvent(event.EventTrialApplied).
		WithTrialID(trial.TrialID).
		WithCampaignID(trial.CampaignID).
		WithFailure(trial.Failure).
		WithMutation(trial.Mutation))

	return payload, nil
}

// executePayload runs the execute phase with circuit breaker protection.
func (r *Runner) executePayload(ctx context.Context, trial *StoreTrial, plan *Plan, payload []byte) (*Verdict, error) {
	phaseCtx, span := r.tracer.StartPhase(ctx, trial.TrialID, "execute", plan.Detail.Mutation)
	defer span.End()

	execStart := time.Now()

	// Execute with circuit breaker
	var verdict *Verdict
	run := func() error {
		v, err := r.executeWithTimeout(phaseCtx, payload)
		if err != nil {
			return err
		}
		if v == nil {
			return errors.New("executor returned no verdict")
		}
		verdict = v
		return nil
	}

	var execErr error
	if r.breaker != nil {
		cb := r.breaker.Get(plan.Detail.Mutation)
		execErr = cb.Execute(phaseCtx, run)
	} else {
		execErr = run()
	}

	if execErr != nil {
		span.SetError(execErr)
		if errors.Is(execErr, ErrExecutionTimeout) || errors.Is(execErr, ErrCircuitOpen) {
			return nil, execErr
		}
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, execErr)
	}

	now := time.Now()
	trial.Status = TrialStatusExecuted
	trial.ExecutedAt = &now
	if err := r.updateTrialWithVersion(ctx, trial); err != nil {
		return nil, err
	}

	r.metrics.TrialExecuted(trial.Mutation, time.Since(execStart))
	r.publishEvent(ctx, event.NewEvent(event.EventTrialExecuted).
		WithTrialID(trial.TrialID).
		WithCampaignID(trial.CampaignID).
		WithFailure(trial.Failure).
		WithMutation(trial.Mutation).
		WithData("reverted", verdict.Reverted))

	return verdict, nil
}

// executeWithTimeout submits the payload with a timeout.
func (r *Runner) executeWithTimeout(ctx context.Context, payload []byte) (*Verdict, error) {
	// Create timeout context
	timeoutCtx, cancel := context.WithTimeout(ctx, r.config.ExecTimeout)
	defer cancel()

	type outcome struct {
		verdict *Verdict
		err     error
	}

	// Execute the settlement call
	done := make(chan outcome, 1)
	go func() {
		v, err := r.executor.Execute(timeoutCtx, payload)
		done <- outcome{verdict: v, err: err}
	}()

	select {
	case out := <-done:
		return out.verdict, out.err
	case <-timeoutCtx.Done():
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return nil, ErrExecutionTimeout
		}
		return nil, timeoutCtx.Err()
	}
}

// settleVerdict confirms the trial when the settlement engine reverted
// with exactly the planned payload, and records a mismatch otherwise.
func (r *Runner) settleVerdict(ctx context.Context, trial *StoreTrial, plan *Plan, verdict *Verdict, startTime time.Time) (*TrialResult, error) {
	if verdict.Reverted && bytes.Equal(verdict.Payload, plan.Expected) {
		return r.confirmTrial(ctx, trial, verdict, startTime)
	}
	return r.mismatchTrial(ctx, trial, verdict, startTime)
}

// confirmTrial marks a trial CONFIRMED.
func (r *Runner) confirmTrial(ctx context.Context, trial *StoreTrial, verdict *Verdict, startTime time.Time) (*TrialResult, error) {
	trial.Status = TrialStatusConfirmed
	now := time.Now()
	trial.CompletedAt = &now
	if err := r.updateTrialWithVersion(ctx, trial); err != nil {
		return nil, err
	}

	r.metrics.TrialConfirmed(trial.Failure, time.Since(startTime))
	r.publishEvent(ctx, event.NewEvent(event.EventTrialConfirmed).
		WithTrialID(trial.TrialID).
		WithCampaignID(trial.CampaignID).
		WithFailure(trial.Failure).
		WithMutation(trial.Mutation))

	r.markSeen(ctx, trial)

	return &TrialResult{
		TrialID:  trial.TrialID,
		Status:   TrialStatusConfirmed,
		Verdict:  verdict,
		Duration: time.Since(startTime),
	}, nil
}

// mismatchTrial marks a trial MISMATCHED and records what the engine
// actually produced. A mismatch is a finding, not a run error.
func (r *Runner) mismatchTrial(ctx context.Context, trial *StoreTrial, verdict *Verdict, startTime time.Time) (*TrialResult, error) {
	trial.Status = TrialStatusMismatched
	trial.Actual = verdict.Payload
	if !verdict.Reverted {
		trial.ErrorMsg = "settlement engine accepted the corrupted payload"
	}
	if err := r.updateTrialWithVersion(ctx, trial); err != nil {
		return nil, err
	}

	r.metrics.TrialMismatched(trial.Failure)
	r.publishEvent(ctx, event.NewEvent(event.EventTrialMismatched).
		WithTrialID(trial.TrialID).
		WithCampaignID(trial.CampaignID).
		WithFailure(trial.Failure).
		WithMutation(trial.Mutation).
		WithData("reverted", verdict.Reverted))

	r.markSeen(ctx, trial)

	return &TrialResult{
		TrialID:  trial.TrialID,
		Status:   TrialStatusMismatched,
		Verdict:  verdict,
		Duration: time.Since(startTime),
	}, nil
}

// handleFailure marks a trial ERRORED after a mutation or execution
// failure. Errored trials stay eligible for replay.
func (r *Runner) handleFailure(ctx context.Context, trial *StoreTrial, execErr error, startTime time.Time) (*TrialResult, error) {
	trial.Status = TrialStatusErrored
	trial.ErrorMsg = execErr.Error()
	if err := r.updateTrialWithVersion(ctx, trial); err != nil {
		return nil, err
	}

	r.metrics.TrialErrored(trial.Failure, errorReason(execErr))
	r.publishEvent(ctx, event.NewEvent(event.EventTrialErrored).
		WithTrialID(trial.TrialID).
		WithCampaignID(trial.CampaignID).
		WithFailure(trial.Failure).
		WithMutation(trial.Mutation).
		WithError(execErr))

	return &TrialResult{
		TrialID:  trial.TrialID,
		Status:   TrialStatusErrored,
		Error:    execErr,
		Duration: time.Since(startTime),
	}, execErr
}

// discardTrial records a scenario the planner could not choose a
// failure for.
func (r *Runner) discardTrial(ctx context.Context, trialID string, scn *Scenario, planErr error, startTime time.Time) (*TrialResult, error) {
	trial := NewStoreTrial(trialID, r.campaignID, scn)
	trial.Status = TrialStatusDiscarded
	trial.ErrorMsg = planErr.Error()
	now := time.Now()
	trial.CompletedAt = &now
	if err := r.store.CreateTrial(ctx, trial); err != nil {
		return nil, fmt.Errorf("failed to create trial: %w", err)
	}

	r.metrics.TrialDiscarded(discardReason(planErr))
	r.publishEvent(ctx, event.NewEvent(event.EventTrialDiscarded).
		WithTrialID(trialID).
		WithCampaignID(r.campaignID).
		WithData("reason", discardReason(planErr)).
		WithError(planErr))

	return &TrialResult{
		TrialID:  trialID,
		Status:   TrialStatusDiscarded,
		Error:    planErr,
		Duration: time.Since(startTime),
	}, planErr
}

// updateTrialWithVersion updates a trial with optimistic locking.
func (r *Runner) updateTrialWithVersion(ctx context.Context, trial *StoreTrial) error {
	trial.IncrementVersion()
	if err := r.store.UpdateTrial(ctx, trial); err != nil {
		return fmt.Errorf("%w: %v", ErrVersionConflict, err)
	}
	return nil
}

// publishEvent publishes an event to the event bus.
func (r *Runner) publishEvent(ctx context.Context, e event.Event) {
	if r.events != nil {
		r.events.Publish(ctx, e)
	}
}

// errorReason classifies a trial failure for metrics.
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrMutationFailed):
		return "mutate"
	case errors.Is(err, ErrExecutionTimeout):
		return "timeout"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	default:
		return "execute"
	}
}

// discardReason classifies a planner exhaustion for metrics.
func discardReason(err error) string {
	switch {
	case errors.Is(err, ErrNoEligibleFailure):
		return "no_eligible_failure"
	case errors.Is(err, ErrNoEligibleOrder):
		return "no_eligible_order"
	case errors.Is(err, ErrNoEligibleResolver):
		return "no_eligible_resolver"
	default:
		return "plan"
	}
}
