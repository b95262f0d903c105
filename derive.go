package saboteur

// MutationState is the target context derived for one planned failure:
// the order or criteria resolver the mutation will corrupt. Generic
// failures leave both targets unset.
type MutationState struct {
	// Order points into the scenario's order slice when the failure is
	// order-scoped. OrderIndex is -1 otherwise.
	Order      *Order
	OrderIndex int

	// Resolver points into the scenario's resolver slice when the
	// failure is resolver-scoped. ResolverIndex is -1 otherwise.
	Resolver      *CriteriaResolver
	ResolverIndex int
}

// newMutationState returns a state with no targets resolved.
func newMutationState() MutationState {
	return MutationState{
		OrderIndex:    -1,
		ResolverIndex: -1,
	}
}

// HasOrder reports whether an order target was derived.
func (st *MutationState) HasOrder() bool {
	return st.Order != nil
}

// HasResolver reports whether a criteria resolver target was derived.
func (st *MutationState) HasResolver() bool {
	return st.Resolver != nil
}
