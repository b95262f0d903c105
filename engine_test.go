package saboteur

import (
	"bytes"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// ============================================================================
// Unit Tests for engine.go
// Tests engine construction, derivation, and the full planning pipeline
// ============================================================================

func newTestEngine(t testing.TB) *Engine {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return engine
}

func TestNewEngine_Defaults(t *testing.T) {
	engine := newTestEngine(t)

	if engine.Rules() == nil {
		t.Error("expected default rules")
	}
	if engine.Details() == nil {
		t.Error("expected default details")
	}
	if engine.Details().Len() != FailureCount() {
		t.Errorf("expected %d details, got %d", FailureCount(), engine.Details().Len())
	}
}

func TestNewEngine_CoverageGap(t *testing.T) {
	// A rule set missing a case fails construction
	rs := NewRuleSet()
	rs.AddGeneric(neverInapplicable, FailInvalidRoute)

	_, err := NewEngine(WithRules(rs))
	if !errors.Is(err, ErrFailureNotCovered) {
		t.Errorf("expected ErrFailureNotCovered, got %v", err)
	}
}

func TestNewEngine_DetailGap(t *testing.T) {
	ds := NewDetailSet()
	if err := ds.Add(FailInvalidRoute, Detail{Mutation: "corruptRoute", Scope: ScopeGeneric}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := NewEngine(WithDetails(ds))
	if !errors.Is(err, ErrDetailMissing) {
		t.Errorf("expected ErrDetailMissing, got %v", err)
	}
}

func TestNewEngine_MalformedRule(t *testing.T) {
	rs := DefaultRules()
	rs.AddGeneric(nil, FailInvalidRoute)

	_, err := NewEngine(WithRules(rs))
	if err == nil {
		t.Error("expected validation error for rule without predicate")
	}
}

func TestNewEngine_ScopeMismatch(t *testing.T) {
	// FailInvalidRoute's first rule is generic; register it with a
	// per-order detail instead.
	ds := NewDetailSet()
	for _, kind := range AllFailures() {
		scope := ScopeGeneric
		switch {
		case kind == FailInvalidRoute:
			scope = ScopePerOrder
		case kind >= FailBadSignature && kind <= FailCallerNotApproved:
			scope = ScopePerOrder
		case kind >= FailCriteriaProofInvalid:
			scope = ScopePerCriteriaResolver
		}
		if err := ds.Add(kind, Detail{Mutation: "m-" + kind.String(), Scope: scope}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	_, err := NewEngine(WithDetails(ds))
	if !errors.Is(err, ErrScopeMismatch) {
		t.Errorf("expected ErrScopeMismatch, got %v", err)
	}
}

func TestEngine_Derive_Generic(t *testing.T) {
	engine := newTestEngine(t)
	scn := testScenario(1)

	state, err := engine.Derive(scn, FailInvalidRoute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.HasOrder() || state.HasResolver() {
		t.Error("generic derivation should resolve no target")
	}
	if state.OrderIndex != -1 || state.ResolverIndex != -1 {
		t.Errorf("expected absent indices, got %d/%d", state.OrderIndex, state.ResolverIndex)
	}
}

func TestEngine_Derive_PerOrderNarrows(t *testing.T) {
	engine := newTestEngine(t)
	scn := testScenario(1)

	// Only order 1 is partial, so deriving a partial-only case must pick it
	state, err := engine.Derive(scn, FailBadFraction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.HasOrder() {
		t.Fatal("per-order derivation should resolve an order")
	}
	if state.OrderIndex != 1 {
		t.Errorf("expected the partial order 1, got %d", state.OrderIndex)
	}
	if state.Order.Kind != OrderPartial {
		t.Errorf("expected a partial order, got %s", state.Order.Kind)
	}
}

func TestEngine_Derive_PerOrderRestricted(t *testing.T) {
	engine := newTestEngine(t)
	scn := testScenario(1)

	state, err := engine.Derive(scn, FailCallerNotApproved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.OrderIndex != 2 {
		t.Errorf("expected the restricted order 2, got %d", state.OrderIndex)
	}
}

func TestEngine_Derive_PerOrderExhausted(t *testing.T) {
	engine := newTestEngine(t)

	// No partial orders at all
	scn := NewScenario().
		WithCaller("dave").
		AddOrder(Order{Offerer: "alice", Signature: testSignature()}).
		MustBuild()

	_, err := engine.Derive(scn, FailBadFraction)
	if !errors.Is(err, ErrNoEligibleOrder) {
		t.Errorf("expected ErrNoEligibleOrder, got %v", err)
	}
}

func TestEngine_Derive_PerResolverNarrows(t *testing.T) {
	engine := newTestEngine(t)
	scn := testScenario(1)

	// Only resolver 0 is proof-backed
	state, err := engine.Derive(scn, FailCriteriaProofInvalid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.HasResolver() {
		t.Fatal("per-resolver derivation should resolve a resolver")
	}
	if state.ResolverIndex != 0 {
		t.Errorf("expected the proof-backed resolver 0, got %d", state.ResolverIndex)
	}

	// Only resolver 1 is wildcard
	scn = testScenario(1)
	state, err = engine.Derive(scn, FailWildcardIdentifierMismatch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.ResolverIndex != 1 {
		t.Errorf("expected the wildcard resolver 1, got %d", state.ResolverIndex)
	}
}

func TestEngine_Derive_PerResolverExhausted(t *testing.T) {
	engine := newTestEngine(t)

	scn := NewScenario().
		WithCaller("dave").
		AddOrder(Order{Offerer: "alice", Signature: testSignature()}).
		MustBuild()

	_, err := engine.Derive(scn, FailUnresolvedCriteria)
	if !errors.Is(err, ErrNoEligibleResolver) {
		t.Errorf("expected ErrNoEligibleResolver, got %v", err)
	}
}

func TestEngine_Derive_UnknownKind(t *testing.T) {
	engine := newTestEngine(t)
	scn := testScenario(1)

	_, err := engine.Derive(scn, Failure(999))
	if !errors.Is(err, ErrDetailMissing) {
		t.Errorf("expected ErrDetailMissing, got %v", err)
	}
}

func TestEngine_Plan(t *testing.T) {
	engine := newTestEngine(t)
	scn := testScenario(12)

	plan, err := engine.Plan(scn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !plan.Failure.Valid() {
		t.Errorf("planned failure %d should be valid", int(plan.Failure))
	}
	if !scn.FailureEligible(plan.Failure) {
		t.Errorf("planned failure %s should be eligible", plan.Failure)
	}
	if plan.Detail.Mutation == "" {
		t.Error("planned detail should name a mutation")
	}
	if len(plan.Expected) < 4 {
		t.Errorf("expected payload should carry at least the fault code, got %d bytes", len(plan.Expected))
	}

	// The payload leads with the detail's fault code
	if !bytes.Equal(plan.Expected[:4], plan.Detail.Code.Payload()) {
		t.Errorf("payload should lead with code 0x%04x, got % x",
			uint32(plan.Detail.Code), plan.Expected[:4])
	}

	// The derived state matches the detail's scope
	switch plan.Detail.Scope {
	case ScopeGeneric:
		if plan.State.HasOrder() || plan.State.HasResolver() {
			t.Error("generic plan should carry no target")
		}
	case ScopePerOrder:
		if !plan.State.HasOrder() {
			t.Error("per-order plan should carry an order target")
		}
	case ScopePerCriteriaResolver:
		if !plan.State.HasResolver() {
			t.Error("per-resolver plan should carry a resolver target")
		}
	}
}

func TestEngine_Plan_Exhausted(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Plan(exhaustedScenario(3))
	if !errors.Is(err, ErrNoEligibleFailure) {
		t.Errorf("expected ErrNoEligibleFailure, got %v", err)
	}
}

func TestEngine_Plan_Deterministic(t *testing.T) {
	engine := newTestEngine(t)

	for seed := uint64(0); seed < 32; seed++ {
		first, err := engine.Plan(testScenario(seed))
		if err != nil {
			t.Fatalf("seed %d: unexpected error: %v", seed, err)
		}
		second, err := engine.Plan(testScenario(seed))
		if err != nil {
			t.Fatalf("seed %d: unexpected error: %v", seed, err)
		}

		if first.Failure != second.Failure {
			t.Errorf("seed %d: failure diverged: %s vs %s", seed, first.Failure, second.Failure)
		}
		if first.Detail.Mutation != second.Detail.Mutation {
			t.Errorf("seed %d: mutation diverged: %s vs %s", seed, first.Detail.Mutation, second.Detail.Mutation)
		}
		if first.State.OrderIndex != second.State.OrderIndex {
			t.Errorf("seed %d: order index diverged: %d vs %d", seed, first.State.OrderIndex, second.State.OrderIndex)
		}
		if first.State.ResolverIndex != second.State.ResolverIndex {
			t.Errorf("seed %d: resolver index diverged: %d vs %d", seed, first.State.ResolverIndex, second.State.ResolverIndex)
		}
		if !bytes.Equal(first.Expected, second.Expected) {
			t.Errorf("seed %d: expected payload diverged", seed)
		}
	}
}

func TestEngine_Plan_SpreadsAcrossCatalog(t *testing.T) {
	engine := newTestEngine(t)

	seen := make(map[Failure]bool)
	for seed := uint64(0); seed < 128; seed++ {
		plan, err := engine.Plan(testScenario(seed))
		if err != nil {
			t.Fatalf("seed %d: unexpected error: %v", seed, err)
		}
		seen[plan.Failure] = true
	}

	if len(seen) < FailureCount()/2 {
		t.Errorf("128 seeds should reach at least half the catalog, got %d cases", len(seen))
	}
}

func TestProperty_PlanConsistency(t *testing.T) {
	engine := newTestEngine(t)

	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		scn := testScenario(seed)

		plan, err := engine.Plan(scn)
		if err != nil {
			rt.Fatalf("rich scenario should always plan: %v", err)
		}

		// The detail registered for the planned failure is the plan's detail
		detail, err := engine.Details().Get(plan.Failure)
		if err != nil {
			rt.Fatalf("planned failure has no detail: %v", err)
		}
		if detail.Mutation != plan.Detail.Mutation {
			rt.Fatalf("plan detail mismatch: %s vs %s", detail.Mutation, plan.Detail.Mutation)
		}

		// Target indices point into the scenario
		if plan.State.HasOrder() {
			if plan.State.OrderIndex < 0 || plan.State.OrderIndex >= len(scn.Orders) {
				rt.Fatalf("order index %d out of range", plan.State.OrderIndex)
			}
			if plan.State.Order != &scn.Orders[plan.State.OrderIndex] {
				rt.Fatal("order target should point into the scenario")
			}
		}
		if plan.State.HasResolver() {
			if plan.State.ResolverIndex < 0 || plan.State.ResolverIndex >= len(scn.CriteriaResolvers) {
				rt.Fatalf("resolver index %d out of range", plan.State.ResolverIndex)
			}
		}

		// The expected payload reproduces from the plan's own state
		expected, err := engine.RevertReason(scn, &plan.State, plan.Failure)
		if err != nil {
			rt.Fatalf("revert reason failed: %v", err)
		}
		if !bytes.Equal(expected, plan.Expected) {
			rt.Fatalf("expected payload not reproducible: % x vs % x", expected, plan.Expected)
		}
	})
}
