package saboteur

import (
	"context"
	"fmt"
)

// Mutator applies a planned failure to a scenario and returns the
// corrupted call payload to submit to the settlement engine under test.
// Implementations dispatch on plan.Detail.Mutation.
type Mutator interface {
	// Apply corrupts the scenario per the plan and encodes the
	// settlement call.
	Apply(ctx context.Context, scn *Scenario, plan *Plan) ([]byte, error)
}

// MutatorFunc adapts a function to the Mutator interface.
type MutatorFunc func(ctx context.Context, scn *Scenario, plan *Plan) ([]byte, error)

// Apply implements Mutator.
func (f MutatorFunc) Apply(ctx context.Context, scn *Scenario, plan *Plan) ([]byte, error) {
	return f(ctx, scn, plan)
}

// Verdict is the observed outcome of submitting a corrupted payload.
type Verdict struct {
	// Reverted reports whether the settlement engine rejected the run.
	Reverted bool

	// Payload is the revert payload produced on rejection. It stays
	// empty when the run settled.
	Payload []byte
}

// Executor submits one settlement call to the engine under test and
// reports the outcome. A revert is a regular Verdict, not an error;
// errors mean the engine could not be reached or answered garbage.
type Executor interface {
	Execute(ctx context.Context, payload []byte) (*Verdict, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, payload []byte) (*Verdict, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, payload []byte) (*Verdict, error) {
	return f(ctx, payload)
}

// ScenarioSource reproduces the scenario a stored trial ran against,
// usually by regenerating it from the trial's seed.
type ScenarioSource interface {
	Reproduce(ctx context.Context, trial *StoreTrial) (*Scenario, error)
}

// ScenarioSourceFunc adapts a function to the ScenarioSource interface.
type ScenarioSourceFunc func(ctx context.Context, trial *StoreTrial) (*Scenario, error)

// Reproduce implements ScenarioSource.
func (f ScenarioSourceFunc) Reproduce(ctx context.Context, trial *StoreTrial) (*Scenario, error) {
	return f(ctx, trial)
}

// trialKey derives the dedupe and lock key identifying a trial up to
// replay: the same campaign, seed and plan target collapse to the same
// key, so a replayed or concurrently re-planned trial is recognized.
func trialKey(campaignID string, seed uint64, plan *Plan) string {
	return fmt.Sprintf("%s:%d:%s:%d:%d",
		campaignID, seed, plan.Detail.Mutation, plan.State.OrderIndex, plan.State.ResolverIndex)
}
