package saboteur

import (
	"errors"
	"strings"
	"testing"
)

// ============================================================================
// Unit Tests for rules.go
// Tests Rule.Covers, RuleSet registration, lookup, coverage and validation
// ============================================================================

func neverInapplicable(_ *Scenario) bool {
	return false
}

func alwaysInapplicable(_ *Scenario) bool {
	return true
}

func TestRule_Covers(t *testing.T) {
	rule := Rule{
		Kinds: []Failure{FailBadSignature, FailSignatureTooShort},
		Scope: ScopePerOrder,
	}

	if !rule.Covers(FailBadSignature) {
		t.Error("rule should cover FailBadSignature")
	}
	if !rule.Covers(FailSignatureTooShort) {
		t.Error("rule should cover FailSignatureTooShort")
	}
	if rule.Covers(FailOrderExpired) {
		t.Error("rule should not cover FailOrderExpired")
	}
}

func TestRuleSet_Registration(t *testing.T) {
	rs := NewRuleSet()
	if rs.Len() != 0 {
		t.Errorf("empty rule set should have length 0, got %d", rs.Len())
	}

	rs.AddGeneric(neverInapplicable, FailInvalidRoute)
	rs.AddPerOrder(func(_ *Scenario, _ *Order, _ int) bool { return false },
		FailBadSignature, FailSignatureTooShort)
	rs.AddPerResolver(func(_ *Scenario, _ *CriteriaResolver, _ int) bool { return false },
		FailCriteriaProofInvalid)

	if rs.Len() != 3 {
		t.Errorf("expected 3 rules, got %d", rs.Len())
	}

	rules := rs.Rules()
	if rules[0].Scope != ScopeGeneric {
		t.Errorf("rule 0: expected generic scope, got %s", rules[0].Scope)
	}
	if rules[1].Scope != ScopePerOrder {
		t.Errorf("rule 1: expected per-order scope, got %s", rules[1].Scope)
	}
	if rules[2].Scope != ScopePerCriteriaResolver {
		t.Errorf("rule 2: expected per-resolver scope, got %s", rules[2].Scope)
	}
	if len(rules[1].Kinds) != 2 {
		t.Errorf("rule 1: expected 2 kinds, got %d", len(rules[1].Kinds))
	}
}

func TestRuleSet_RulesReturnsCopy(t *testing.T) {
	rs := NewRuleSet()
	rs.AddGeneric(neverInapplicable, FailInvalidRoute)

	rules := rs.Rules()
	rules[0].Kinds = []Failure{FailOrderExpired}

	again := rs.Rules()
	if len(again[0].Kinds) != 1 || again[0].Kinds[0] != FailInvalidRoute {
		t.Error("mutating the returned slice should not affect the rule set")
	}
}

func TestRuleSet_FirstRuleFor(t *testing.T) {
	rs := NewRuleSet()
	rs.AddGeneric(neverInapplicable, FailInvalidRoute)
	rs.AddGeneric(alwaysInapplicable, FailInvalidRoute, FailMissingNativeValue)

	// The first registered rule decides
	rule, err := rs.FirstRuleFor(FailInvalidRoute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule.Generic(nil) {
		t.Error("expected the first registered rule for FailInvalidRoute")
	}

	rule, err = rs.FirstRuleFor(FailMissingNativeValue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rule.Generic(nil) {
		t.Error("expected the second rule for FailMissingNativeValue")
	}
}

func TestRuleSet_FirstRuleFor_InvalidKind(t *testing.T) {
	rs := NewRuleSet()

	_, err := rs.FirstRuleFor(Failure(-1))
	if !errors.Is(err, ErrInvalidFailure) {
		t.Errorf("expected ErrInvalidFailure, got %v", err)
	}
}

func TestRuleSet_FirstRuleFor_Uncovered(t *testing.T) {
	rs := NewRuleSet()
	rs.AddGeneric(neverInapplicable, FailInvalidRoute)

	_, err := rs.FirstRuleFor(FailOrderExpired)
	if !errors.Is(err, ErrNoRuleForFailure) {
		t.Errorf("expected ErrNoRuleForFailure, got %v", err)
	}
}

func TestRuleSet_AssertCoverage(t *testing.T) {
	rs := NewRuleSet()
	rs.AddGeneric(neverInapplicable, FailInvalidRoute, FailMissingNativeValue)

	if err := rs.AssertCoverage([]Failure{FailInvalidRoute, FailMissingNativeValue}); err != nil {
		t.Errorf("covered kinds should pass, got %v", err)
	}

	err := rs.AssertCoverage([]Failure{FailInvalidRoute, FailOrderExpired})
	if !errors.Is(err, ErrFailureNotCovered) {
		t.Fatalf("expected ErrFailureNotCovered, got %v", err)
	}
	// The error names the first uncovered case
	if want := FailOrderExpired.String(); err != nil && !strings.Contains(err.Error(), want) {
		t.Errorf("expected error to name %s, got %v", want, err)
	}
}

func TestRuleSet_Validate_Passes(t *testing.T) {
	rs := NewRuleSet()
	rs.AddGeneric(neverInapplicable, FailInvalidRoute)
	rs.AddPerOrder(func(_ *Scenario, _ *Order, _ int) bool { return false }, FailBadSignature)
	rs.AddPerResolver(func(_ *Scenario, _ *CriteriaResolver, _ int) bool { return false }, FailUnresolvedCriteria)

	if err := rs.Validate(); err != nil {
		t.Errorf("well-formed rule set should validate, got %v", err)
	}
}

func TestRuleSet_Validate_NoKinds(t *testing.T) {
	rs := NewRuleSet()
	rs.AddGeneric(neverInapplicable)

	if err := rs.Validate(); err == nil {
		t.Error("rule without kinds should fail validation")
	}
}

func TestRuleSet_Validate_InvalidKind(t *testing.T) {
	rs := NewRuleSet()
	rs.AddGeneric(neverInapplicable, Failure(999))

	err := rs.Validate()
	if !errors.Is(err, ErrInvalidFailure) {
		t.Errorf("expected ErrInvalidFailure, got %v", err)
	}
}

func TestRuleSet_Validate_MissingPredicate(t *testing.T) {
	rs := NewRuleSet()
	rs.AddGeneric(nil, FailInvalidRoute)

	if err := rs.Validate(); err == nil {
		t.Error("generic rule without predicate should fail validation")
	}

	rs = NewRuleSet()
	rs.AddPerOrder(nil, FailBadSignature)
	if err := rs.Validate(); err == nil {
		t.Error("per-order rule without predicate should fail validation")
	}

	rs = NewRuleSet()
	rs.AddPerResolver(nil, FailUnresolvedCriteria)
	if err := rs.Validate(); err == nil {
		t.Error("per-resolver rule without predicate should fail validation")
	}
}
