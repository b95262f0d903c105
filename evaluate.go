package saboteur

import "fmt"

// Evaluate runs every registered rule against the scenario and marks the
// failure cases the scenario cannot exhibit.
//
// A generic rule marks its cases when its scenario-wide predicate holds.
// A per-order or per-resolver rule marks its cases only when its
// predicate holds for every target; a scenario with zero targets has
// nothing that could exhibit the case, so the cases are marked. Marks
// accumulate, so evaluating twice leaves the sets unchanged.
func (rs *RuleSet) Evaluate(scn *Scenario) error {
	for i := range rs.rules {
		rule := &rs.rules[i]
		inapplicable, err := rule.inapplicableForAll(scn)
		if err != nil {
			return err
		}
		if inapplicable {
			for _, kind := range rule.Kinds {
				scn.MarkFailureIneligible(kind)
			}
		}
	}
	return nil
}

// inapplicableForAll reports whether no target in the scenario can
// exhibit the rule's failure cases.
func (r *Rule) inapplicableForAll(scn *Scenario) (bool, error) {
	switch r.Scope {
	case ScopeGeneric:
		return r.Generic(scn), nil

	case ScopePerOrder:
		for i := range scn.Orders {
			if !r.Order(scn, &scn.Orders[i], i) {
				return false, nil
			}
		}
		return true, nil

	case ScopePerCriteriaResolver:
		for i := range scn.CriteriaResolvers {
			if !r.Resolver(scn, &scn.CriteriaResolvers[i], i) {
				return false, nil
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("%w: %v", ErrUnknownScope, r.Scope)
	}
}

// narrowOrders marks every order the rule's predicate rejects, leaving
// only orders that can exhibit the rule's failure cases.
func narrowOrders(scn *Scenario, rule *Rule) {
	for i := range scn.Orders {
		if rule.Order(scn, &scn.Orders[i], i) {
			scn.MarkOrderIneligible(i)
		}
	}
}

// narrowResolvers marks every criteria resolver the rule's predicate
// rejects.
func narrowResolvers(scn *Scenario, rule *Rule) {
	for i := range scn.CriteriaResolvers {
		if rule.Resolver(scn, &scn.CriteriaResolvers[i], i) {
			scn.MarkResolverIneligible(i)
		}
	}
}
