package testinfra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"

	"saboteur"
)

// ============================================================================
// Campaign Property Tests
// ============================================================================

// propCampaignCounter issues unique campaign suffixes across rapid
// iterations so trial keys from different iterations never collide.
var propCampaignCounter int64

// freshCopy copies the scenario definition into a new value. Planning
// marks eligibility state on the scenario it is given, so re-planning the
// same definition needs a clean copy.
func freshCopy(scn *saboteur.Scenario) *saboteur.Scenario {
	return &saboteur.Scenario{
		ID:                scn.ID,
		Orders:            scn.Orders,
		CriteriaResolvers: scn.CriteriaResolvers,
		Caller:            scn.Caller,
		Route:             scn.Route,
		ExpectedExplicit:  scn.ExpectedExplicit,
		ExpectedImplicit:  scn.ExpectedImplicit,
		Seed:              scn.Seed,
	}
}

// exhausted reports whether err marks a scenario the planner had nothing
// eligible for.
func exhausted(err error) bool {
	return errors.Is(err, saboteur.ErrNoEligibleFailure) ||
		errors.Is(err, saboteur.ErrNoEligibleOrder) ||
		errors.Is(err, saboteur.ErrNoEligibleResolver)
}

// checkPlanShape validates a plan against the scenario it was made for.
func checkPlanShape(rt *rapid.T, scn *saboteur.Scenario, plan *saboteur.Plan) {
	if plan.Detail.Mutation == "" {
		rt.Fatalf("plan for %s has no mutation", plan.Failure)
	}
	if len(plan.Expected) == 0 {
		rt.Fatalf("plan for %s has no expected revert payload", plan.Failure)
	}
	if !scn.FailureEligible(plan.Failure) {
		rt.Fatalf("planned failure %s is marked ineligible", plan.Failure)
	}

	switch plan.Detail.Scope {
	case saboteur.ScopeGeneric:
		if plan.State.OrderIndex != -1 || plan.State.ResolverIndex != -1 {
			rt.Fatalf("generic plan for %s has targets (%d, %d)",
				plan.Failure, plan.State.OrderIndex, plan.State.ResolverIndex)
		}
	case saboteur.ScopePerOrder:
		if plan.State.OrderIndex < 0 || plan.State.OrderIndex >= len(scn.Orders) {
			rt.Fatalf("order plan for %s has index %d outside %d orders",
				plan.Failure, plan.State.OrderIndex, len(scn.Orders))
		}
		if plan.State.ResolverIndex != -1 {
			rt.Fatalf("order plan for %s has resolver index %d",
				plan.Failure, plan.State.ResolverIndex)
		}
	case saboteur.ScopePerCriteriaResolver:
		if plan.State.ResolverIndex < 0 || plan.State.ResolverIndex >= len(scn.CriteriaResolvers) {
			rt.Fatalf("resolver plan for %s has index %d outside %d resolvers",
				plan.Failure, plan.State.ResolverIndex, len(scn.CriteriaResolvers))
		}
		if plan.State.OrderIndex != -1 {
			rt.Fatalf("resolver plan for %s has order index %d",
				plan.Failure, plan.State.OrderIndex)
		}
	default:
		rt.Fatalf("plan for %s has unknown scope %v", plan.Failure, plan.Detail.Scope)
	}
}

// TestProperty_GeneratedScenariosPlanOrDiscard checks that every generated
// scenario either yields a well-formed plan or a recognized exhaustion
// error, never anything in between.
func TestProperty_GeneratedScenariosPlanOrDiscard(t *testing.T) {
	engine, err := saboteur.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		scn := ScenarioGenerator().Draw(rt, "scenario")

		plan, err := engine.Plan(scn)
		if err != nil {
			if !exhausted(err) {
				rt.Fatalf("unexpected planning error: %v", err)
			}
			return
		}

		checkPlanShape(rt, scn, plan)
	})
}

// TestProperty_PlanningDeterministicForGeneratedScenarios checks that
// planning depends only on the scenario definition and its seed.
func TestProperty_PlanningDeterministicForGeneratedScenarios(t *testing.T) {
	engine, err := saboteur.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		scn := ScenarioGenerator().Draw(rt, "scenario")

		first, firstErr := engine.Plan(freshCopy(scn))
		second, secondErr := engine.Plan(freshCopy(scn))

		if (firstErr == nil) != (secondErr == nil) {
			rt.Fatalf("planning diverged: %v vs %v", firstErr, secondErr)
		}
		if firstErr != nil {
			if firstErr.Error() != secondErr.Error() {
				rt.Fatalf("planning errors diverged: %v vs %v", firstErr, secondErr)
			}
			return
		}

		if first.Failure != second.Failure {
			rt.Fatalf("failure diverged: %s vs %s", first.Failure, second.Failure)
		}
		if first.Detail.Mutation != second.Detail.Mutation {
			rt.Fatalf("mutation diverged: %s vs %s", first.Detail.Mutation, second.Detail.Mutation)
		}
		if first.State.OrderIndex != second.State.OrderIndex {
			rt.Fatalf("order index diverged: %d vs %d", first.State.OrderIndex, second.State.OrderIndex)
		}
		if first.State.ResolverIndex != second.State.ResolverIndex {
			rt.Fatalf("resolver index diverged: %d vs %d", first.State.ResolverIndex, second.State.ResolverIndex)
		}
		if !bytes.Equal(first.Expected, second.Expected) {
			rt.Fatalf("expected payload diverged")
		}
	})
}

// TestProperty_EvaluateIdempotentOnGeneratedScenarios checks that a second
// evaluation pass marks nothing further.
func TestProperty_EvaluateIdempotentOnGeneratedScenarios(t *testing.T) {
	engine, err := saboteur.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		scn := ScenarioGenerator().Draw(rt, "scenario")

		if err := engine.Evaluate(scn); err != nil {
			rt.Fatalf("Evaluate failed: %v", err)
		}
		afterFirst := scn.EligibleFailures()

		if err := engine.Evaluate(scn); err != nil {
			rt.Fatalf("second Evaluate failed: %v", err)
		}
		afterSecond := scn.EligibleFailures()

		if len(afterFirst) != len(afterSecond) {
			rt.Fatalf("eligible set changed on re-evaluation: %d vs %d", len(afterFirst), len(afterSecond))
		}
		for i := range afterFirst {
			if afterFirst[i] != afterSecond[i] {
				rt.Fatalf("eligible set changed on re-evaluation at %d: %s vs %s",
					i, afterFirst[i], afterSecond[i])
			}
		}
	})
}

// TestProperty_OrderlessScenariosPlanOnlyGenericKinds checks that a
// scenario with no orders can only plan scenario-level failure cases.
func TestProperty_OrderlessScenariosPlanOnlyGenericKinds(t *testing.T) {
	engine, err := saboteur.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		scn := OrderlessScenarioGenerator().Draw(rt, "scenario")

		plan, err := engine.Plan(scn)
		if err != nil {
			if !exhausted(err) {
				rt.Fatalf("unexpected planning error: %v", err)
			}
			return
		}

		if plan.Detail.Scope != saboteur.ScopeGeneric {
			rt.Fatalf("orderless scenario planned %s scope for %s",
				plan.Detail.Scope, plan.Failure)
		}
		if plan.State.OrderIndex != -1 || plan.State.ResolverIndex != -1 {
			rt.Fatalf("orderless scenario planned targets (%d, %d)",
				plan.State.OrderIndex, plan.State.ResolverIndex)
		}
	})
}

// TestProperty_RichScenariosAlwaysPlan checks that scenarios built to keep
// the whole catalog eligible never exhaust the planner.
func TestProperty_RichScenariosAlwaysPlan(t *testing.T) {
	engine, err := saboteur.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		scn := RichScenarioGenerator().Draw(rt, "scenario")

		plan, err := engine.Plan(scn)
		if err != nil {
			rt.Fatalf("rich scenario failed to plan: %v", err)
		}

		checkPlanShape(rt, scn, plan)
	})
}

// TestProperty_RunOutcomeMatchesStoredTrial runs generated scenarios
// through the full pipeline against real infrastructure and checks the
// returned result agrees with the stored trial.
func TestProperty_RunOutcomeMatchesStoredTrial(t *testing.T) {
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()
	defer ti.Cleanup(t)

	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		n := atomic.AddInt64(&propCampaignCounter, 1)
		campaignID := ti.GenerateCampaignID(fmt.Sprintf("prop-%d", n))

		sim := NewSettlementSim()
		runner := ti.NewCampaignRunner(campaignID, sim.Mutator(), sim.Executor())

		scn := RichScenarioGenerator().Draw(rt, "scenario")

		result, err := runner.Run(ctx, scn)
		if err != nil {
			rt.Fatalf("Run failed: %v", err)
		}
		if result.Status != saboteur.TrialStatusConfirmed {
			rt.Fatalf("honest engine should confirm, got %s", result.Status)
		}

		trial, err := ti.TrialStore.GetTrial(ctx, result.TrialID)
		if err != nil {
			rt.Fatalf("GetTrial failed: %v", err)
		}
		if trial.Status != result.Status {
			rt.Fatalf("stored status %s does not match result %s", trial.Status, result.Status)
		}
		if trial.Seed != scn.Seed {
			rt.Fatalf("stored seed %d does not match scenario %d", trial.Seed, scn.Seed)
		}
	})
}
