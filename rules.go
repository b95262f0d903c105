package saboteur

import "fmt"

// GenericPredicate reports whether the scenario as a whole cannot exhibit
// the rule's failure cases.
type GenericPredicate func(scn *Scenario) bool

// OrderPredicate reports whether the order at index cannot exhibit the
// rule's failure cases.
type OrderPredicate func(scn *Scenario, order *Order, index int) bool

// ResolverPredicate reports whether the criteria resolver at index cannot
// exhibit the rule's failure cases.
type ResolverPredicate func(scn *Scenario, resolver *CriteriaResolver, index int) bool

// Rule binds one inapplicability predicate to the failure cases it
// covers. Predicates answer "is this target unable to exhibit the case",
// so a rule that never fires keeps its cases eligible. Exactly one of the
// three predicate fields is set, matching Scope.
type Rule struct {
	Kinds []Failure
	Scope DerivationScope

	Generic  GenericPredicate
	Order    OrderPredicate
	Resolver ResolverPredicate
}

// Covers reports whether the rule covers kind.
func (r *Rule) Covers(kind Failure) bool {
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// RuleSet holds the registered eligibility rules in registration order.
// Registration happens once at setup; a RuleSet is read-only afterwards
// and safe for concurrent use.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		rules: make([]Rule, 0),
	}
}

// AddGeneric registers pred as the inapplicability predicate for the
// given scenario-scoped failure cases.
func (rs *RuleSet) AddGeneric(pred GenericPredicate, kinds ...Failure) {
	rs.rules = append(rs.rules, Rule{
		Kinds:   kinds,
		Scope:   ScopeGeneric,
		Generic: pred,
	})
}

// AddPerOrder registers pred as the inapplicability predicate for the
// given order-scoped failure cases.
func (rs *RuleSet) AddPerOrder(pred OrderPredicate, kinds ...Failure) {
	rs.rules = append(rs.rules, Rule{
		Kinds: kinds,
		Scope: ScopePerOrder,
		Order: pred,
	})
}

// AddPerResolver registers pred as the inapplicability predicate for the
// given resolver-scoped failure cases.
func (rs *RuleSet) AddPerResolver(pred ResolverPredicate, kinds ...Failure) {
	rs.rules = append(rs.rules, Rule{
		Kinds:    kinds,
		Scope:    ScopePerCriteriaResolver,
		Resolver: pred,
	})
}

// Len returns the number of registered rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the registered rules in registration order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// FirstRuleFor returns the first registered rule covering kind. The first
// rule decides the derivation narrowing for a kind covered by several.
func (rs *RuleSet) FirstRuleFor(kind Failure) (*Rule, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFailure, int(kind))
	}
	for i := range rs.rules {
		if rs.rules[i].Covers(kind) {
			return &rs.rules[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRuleForFailure, kind)
}

// AssertCoverage verifies that every given failure case is covered by at
// least one rule. It returns ErrFailureNotCovered naming the first case
// without one.
func (rs *RuleSet) AssertCoverage(kinds []Failure) error {
	for _, kind := range kinds {
		covered := false
		for i := range rs.rules {
			if rs.rules[i].Covers(kind) {
				covered = true
				break
			}
		}
		if !covered {
			return fmt.Errorf("%w: %s", ErrFailureNotCovered, kind)
		}
	}
	return nil
}

// Validate checks the shape of every registered rule: at least one
// catalog kind, a known scope, and exactly the predicate the scope
// requires.
func (rs *RuleSet) Validate() error {
	for i := range rs.rules {
		rule := &rs.rules[i]
		if len(rule.Kinds) == 0 {
			return fmt.Errorf("rule %d: no failure cases", i)
		}
		for _, kind := range rule.Kinds {
			if !kind.Valid() {
				return fmt.Errorf("rule %d: %w: %d", i, ErrInvalidFailure, int(kind))
			}
		}
		switch rule.Scope {
		case ScopeGeneric:
			if rule.Generic == nil {
				return fmt.Errorf("rule %d: generic rule without predicate", i)
			}
		case ScopePerOrder:
			if rule.Order == nil {
				return fmt.Errorf("rule %d: per-order rule without predicate", i)
			}
		case ScopePerCriteriaResolver:
			if rule.Resolver == nil {
				return fmt.Errorf("rule %d: per-resolver rule without predicate", i)
			}
		default:
			return fmt.Errorf("rule %d: %w: %v", i, ErrUnknownScope, rule.Scope)
		}
	}
	return nil
}
