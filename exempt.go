package saboteur

// IsExemptFromTransferFailures reports whether corrupting the transfer of
// item, moved out of participant over the scenario's route, cannot make
// the run revert.
//
// Native items are always exempt: native value moves inside the
// settlement call itself, and there is no external transfer to sabotage.
// Any other item is exempt when an expected transfer already covers the
// same participant, route, kind and token. Explicit transfers are scanned
// before implicit ones and the first covering transfer decides.
func IsExemptFromTransferFailures(scn *Scenario, participant Account, item Item) bool {
	if item.Kind.IsNative() {
		return true
	}
	for i := range scn.ExpectedExplicit {
		if scn.ExpectedExplicit[i].Covers(participant, scn.Route, item) {
			return true
		}
	}
	for i := range scn.ExpectedImplicit {
		if scn.ExpectedImplicit[i].Covers(participant, scn.Route, item) {
			return true
		}
	}
	return false
}

// orderFullyExempt reports whether every item the order moves is exempt
// from transfer failures. Offer items move out of the offerer,
// consideration items out of the caller.
func orderFullyExempt(scn *Scenario, order *Order) bool {
	for _, item := range order.Offer {
		if !IsExemptFromTransferFailures(scn, order.Offerer, item) {
			return false
		}
	}
	for _, item := range order.Consideration {
		if !IsExemptFromTransferFailures(scn, scn.Caller, item) {
			return false
		}
	}
	return true
}
