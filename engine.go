package saboteur

import "fmt"

// Engine plans failures for generated scenarios. It holds the validated
// rule and detail registries and walks one scenario through evaluation,
// failure selection, target derivation and revert reason derivation.
//
// An Engine is immutable after construction and safe for concurrent use.
// The scenarios passed to it are not.
type Engine struct {
	rules   *RuleSet
	details *DetailSet
}

// EngineOption is a function that configures the Engine.
type EngineOption func(*Engine)

// WithRules sets the eligibility rules. Defaults to DefaultRules.
func WithRules(rs *RuleSet) EngineOption {
	return func(e *Engine) {
		e.rules = rs
	}
}

// WithDetails sets the failure details. Defaults to DefaultDetails.
func WithDetails(ds *DetailSet) EngineOption {
	return func(e *Engine) {
		e.details = ds
	}
}

// NewEngine creates an Engine and verifies the registries against the
// catalog: every failure case needs at least one rule and exactly one
// detail, every rule must be well-formed, and the first rule of each case
// must agree with its detail on scope. A broken registration fails here,
// before any scenario is planned.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	if e.rules == nil {
		e.rules = DefaultRules()
	}
	if e.details == nil {
		e.details = DefaultDetails()
	}

	if err := e.rules.Validate(); err != nil {
		return nil, err
	}

	kinds := AllFailures()
	if err := e.rules.AssertCoverage(kinds); err != nil {
		return nil, err
	}
	if err := e.details.AssertComplete(kinds); err != nil {
		return nil, err
	}

	for _, kind := range kinds {
		rule, err := e.rules.FirstRuleFor(kind)
		if err != nil {
			return nil, err
		}
		detail, err := e.details.Get(kind)
		if err != nil {
			return nil, err
		}
		if rule.Scope != detail.Scope {
			return nil, fmt.Errorf("%w: %s: rule %s, detail %s", ErrScopeMismatch, kind, rule.Scope, detail.Scope)
		}
	}

	return e, nil
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() *RuleSet {
	return e.rules
}

// Details returns the engine's detail set.
func (e *Engine) Details() *DetailSet {
	return e.details
}

// Evaluate marks every failure case the scenario cannot exhibit.
func (e *Engine) Evaluate(scn *Scenario) error {
	return e.rules.Evaluate(scn)
}

// SelectFailure picks one still-eligible failure case from the scenario
// seed.
func (e *Engine) SelectFailure(scn *Scenario) (Failure, error) {
	return SelectEligibleFailure(scn)
}

// Derive resolves the mutation target for the chosen failure case.
// Order-scoped cases narrow the scenario's orders with the case's own
// predicate and select among the survivors; resolver-scoped cases do the
// same over criteria resolvers. Generic cases resolve no target.
func (e *Engine) Derive(scn *Scenario, kind Failure) (MutationState, error) {
	state := newMutationState()

	detail, err := e.details.Get(kind)
	if err != nil {
		return state, err
	}

	switch detail.Scope {
	case ScopeGeneric:
		return state, nil

	case ScopePerOrder:
		rule, err := e.rules.FirstRuleFor(kind)
		if err != nil {
			return state, err
		}
		narrowOrders(scn, rule)
		order, index, err := SelectEligibleOrder(scn)
		if err != nil {
			return state, fmt.Errorf("deriving %s: %w", kind, err)
		}
		state.Order = order
		state.OrderIndex = index
		return state, nil

	case ScopePerCriteriaResolver:
		rule, err := e.rules.FirstRuleFor(kind)
		if err != nil {
			return state, err
		}
		narrowResolvers(scn, rule)
		resolver, index, err := SelectEligibleResolver(scn)
		if err != nil {
			return state, fmt.Errorf("deriving %s: %w", kind, err)
		}
		state.Resolver = resolver
		state.ResolverIndex = index
		return state, nil

	default:
		return state, fmt.Errorf("%w: %v", ErrUnknownScope, detail.Scope)
	}
}

// RevertReason computes the payload the settlement engine must reject the
// mutated scenario with.
func (e *Engine) RevertReason(scn *Scenario, state *MutationState, kind Failure) ([]byte, error) {
	return e.details.RevertReason(scn, state, kind)
}

// Plan is one fully planned failure for a scenario.
type Plan struct {
	// Failure is the chosen case.
	Failure Failure

	// Detail is the registered detail for the case.
	Detail Detail

	// State is the derived mutation target.
	State MutationState

	// Expected is the revert payload the settlement engine must produce
	// once the mutation is applied.
	Expected []byte
}

// Plan walks one scenario through the whole pipeline: evaluate, select a
// failure case, derive its target, and derive the expected revert
// payload. A scenario that cannot exhibit anything comes back as
// ErrNoEligibleFailure; one whose chosen case has no surviving target as
// ErrNoEligibleOrder or ErrNoEligibleResolver.
func (e *Engine) Plan(scn *Scenario) (*Plan, error) {
	if err := e.Evaluate(scn); err != nil {
		return nil, err
	}

	kind, err := e.SelectFailure(scn)
	if err != nil {
		return nil, err
	}

	state, err := e.Derive(scn, kind)
	if err != nil {
		return nil, err
	}

	expected, err := e.RevertReason(scn, &state, kind)
	if err != nil {
		return nil, err
	}

	detail, err := e.details.Get(kind)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Failure:  kind,
		Detail:   detail,
		State:    state,
		Expected: expected,
	}, nil
}
