package saboteur

// Fault codes the settlement engine rejects corrupted runs with, one per
// failure case. Codes are grouped by scope and are part of the wire
// contract with the engine under test; they never change meaning.
const (
	CodeInvalidRoute                 FaultCode = 0x0101
	CodeMissingNativeValue           FaultCode = 0x0102
	CodeDuplicateOrder               FaultCode = 0x0103
	CodeBadSignature                 FaultCode = 0x0201
	CodeSignatureTooShort            FaultCode = 0x0202
	CodeOrderNotYetValid             FaultCode = 0x0203
	CodeOrderExpired                 FaultCode = 0x0204
	CodeOrderCancelled               FaultCode = 0x0205
	CodeMissingOriginalConsideration FaultCode = 0x0206
	CodeConsiderationLengthExceeded  FaultCode = 0x0207
	CodeTokenTransferReverted        FaultCode = 0x0208
	CodeNativeTransferFailed         FaultCode = 0x0209
	CodeBadFraction                  FaultCode = 0x020a
	CodeFillExceeded                 FaultCode = 0x020b
	CodeCallerNotApproved            FaultCode = 0x020c
	CodeCriteriaProofInvalid         FaultCode = 0x0301
	CodeWildcardIdentifierMismatch   FaultCode = 0x0302
	CodeCriteriaResolverOutOfRange   FaultCode = 0x0303
	CodeUnresolvedCriteria           FaultCode = 0x0304
)

// DefaultRules returns the eligibility rules covering the full catalog.
// Several cases share one rule when the same condition rules them out.
func DefaultRules() *RuleSet {
	rs := NewRuleSet()

	rs.AddGeneric(inapplicableWhenUnrouted, FailInvalidRoute)
	rs.AddGeneric(inapplicableWhenNoNativeValue, FailMissingNativeValue)
	rs.AddGeneric(inapplicableWhenNoOrders, FailDuplicateOrder)

	rs.AddPerOrder(inapplicableWhenUnsigned, FailBadSignature, FailSignatureTooShort)
	rs.AddPerOrder(orderAlwaysApplicable, FailOrderNotYetValid, FailOrderExpired)
	rs.AddPerOrder(inapplicableWhenNotCancellable, FailOrderCancelled)
	rs.AddPerOrder(inapplicableWhenNoConsideration, FailMissingOriginalConsideration)
	rs.AddPerOrder(inapplicableWhenShortConsideration, FailConsiderationLengthExceeded)
	rs.AddPerOrder(inapplicableWhenTransfersExempt, FailTokenTransferReverted)
	rs.AddPerOrder(inapplicableWhenNoNativeConsideration, FailNativeTransferFailed)
	rs.AddPerOrder(inapplicableWhenNotPartial, FailBadFraction, FailFillExceeded)
	rs.AddPerOrder(inapplicableWhenNotRestricted, FailCallerNotApproved)

	rs.AddPerResolver(inapplicableWhenWildcard, FailCriteriaProofInvalid)
	rs.AddPerResolver(inapplicableWhenProofBacked, FailWildcardIdentifierMismatch)
	rs.AddPerResolver(resolverAlwaysApplicable, FailCriteriaResolverOutOfRange, FailUnresolvedCriteria)

	return rs
}

// Generic predicates

// inapplicableWhenUnrouted holds for scenarios settling directly: there
// is no route to corrupt.
func inapplicableWhenUnrouted(scn *Scenario) bool {
	return !scn.Routed()
}

// inapplicableWhenNoNativeValue holds when the run attaches no native
// value that could be stripped.
func inapplicableWhenNoNativeValue(scn *Scenario) bool {
	return scn.TotalNativeConsideration() == 0
}

// inapplicableWhenNoOrders holds for scenarios with nothing to duplicate.
func inapplicableWhenNoOrders(scn *Scenario) bool {
	return len(scn.Orders) == 0
}

// Per-order predicates

// inapplicableWhenUnsigned holds for orders with no signature to corrupt
// or truncate, including every contract order.
func inapplicableWhenUnsigned(_ *Scenario, order *Order, _ int) bool {
	return !order.Signed()
}

// orderAlwaysApplicable holds for no order: every order has a validity
// window to push the run outside of.
func orderAlwaysApplicable(_ *Scenario, _ *Order, _ int) bool {
	return false
}

// inapplicableWhenNotCancellable holds for contract orders, which are
// produced per run and cannot be cancelled ahead of it.
func inapplicableWhenNotCancellable(_ *Scenario, order *Order, _ int) bool {
	return order.Kind == OrderContract
}

// inapplicableWhenNoConsideration holds for orders whose original
// consideration length is already zero and cannot be understated.
func inapplicableWhenNoConsideration(_ *Scenario, order *Order, _ int) bool {
	return len(order.Consideration) == 0
}

// inapplicableWhenShortConsideration holds for orders with fewer than two
// consideration items. Overstating the length of a shorter list produces
// a rejection the derived arguments cannot describe.
func inapplicableWhenShortConsideration(_ *Scenario, order *Order, _ int) bool {
	return len(order.Consideration) < 2
}

// inapplicableWhenTransfersExempt holds for orders whose every item is
// exempt from transfer failures.
func inapplicableWhenTransfersExempt(scn *Scenario, order *Order, _ int) bool {
	return orderFullyExempt(scn, order)
}

// inapplicableWhenNoNativeConsideration holds for orders paying no native
// consideration: there is no native recipient to make reject payment.
func inapplicableWhenNoNativeConsideration(_ *Scenario, order *Order, _ int) bool {
	return !order.HasNativeConsideration()
}

// inapplicableWhenNotPartial holds for orders that do not support
// fractional fills.
func inapplicableWhenNotPartial(_ *Scenario, order *Order, _ int) bool {
	return order.Kind != OrderPartial
}

// inapplicableWhenNotRestricted holds for orders with no approval
// authority to refuse the caller.
func inapplicableWhenNotRestricted(_ *Scenario, order *Order, _ int) bool {
	return order.Kind != OrderRestricted
}

// Per-resolver predicates

// inapplicableWhenWildcard holds for wildcard resolvers, which carry no
// proof to corrupt.
func inapplicableWhenWildcard(_ *Scenario, resolver *CriteriaResolver, _ int) bool {
	return resolver.Wildcard()
}

// inapplicableWhenProofBacked holds for proof-backed resolvers: their
// identifier is pinned by the proof, not chosen freely.
func inapplicableWhenProofBacked(_ *Scenario, resolver *CriteriaResolver, _ int) bool {
	return !resolver.Wildcard()
}

// resolverAlwaysApplicable holds for no resolver: any resolver can be
// re-pointed out of range or dropped.
func resolverAlwaysApplicable(_ *Scenario, _ *CriteriaResolver, _ int) bool {
	return false
}

// DefaultDetails returns the details for the full catalog.
func DefaultDetails() *DetailSet {
	ds := NewDetailSet()

	mustAdd(ds, FailInvalidRoute, Detail{
		Mutation: "corruptRoute",
		Code:     CodeInvalidRoute,
		Scope:    ScopeGeneric,
	})
	mustAdd(ds, FailMissingNativeValue, Detail{
		Mutation: "stripNativeValue",
		Code:     CodeMissingNativeValue,
		Scope:    ScopeGeneric,
		Deriver:  deriveRequiredNativeValue,
	})
	mustAdd(ds, FailDuplicateOrder, Detail{
		Mutation: "duplicateOrder",
		Code:     CodeDuplicateOrder,
		Scope:    ScopeGeneric,
	})

	mustAdd(ds, FailBadSignature, Detail{
		Mutation: "flipSignatureByte",
		Code:     CodeBadSignature,
		Scope:    ScopePerOrder,
	})
	mustAdd(ds, FailSignatureTooShort, Detail{
		Mutation: "truncateSignature",
		Code:     CodeSignatureTooShort,
		Scope:    ScopePerOrder,
	})
	mustAdd(ds, FailOrderNotYetValid, Detail{
		Mutation: "postdateStart",
		Code:     CodeOrderNotYetValid,
		Scope:    ScopePerOrder,
		Deriver:  deriveValidityWindow,
	})
	mustAdd(ds, FailOrderExpired, Detail{
		Mutation: "predateEnd",
		Code:     CodeOrderExpired,
		Scope:    ScopePerOrder,
		Deriver:  deriveValidityWindow,
	})
	mustAdd(ds, FailOrderCancelled, Detail{
		Mutation: "cancelOrder",
		Code:     CodeOrderCancelled,
		Scope:    ScopePerOrder,
	})
	mustAdd(ds, FailMissingOriginalConsideration, Detail{
		Mutation: "understateOriginalConsideration",
		Code:     CodeMissingOriginalConsideration,
		Scope:    ScopePerOrder,
	})
	mustAdd(ds, FailConsiderationLengthExceeded, Detail{
		Mutation: "overstateOriginalConsideration",
		Code:     CodeConsiderationLengthExceeded,
		Scope:    ScopePerOrder,
		Deriver:  deriveConsiderationLength,
	})
	mustAdd(ds, FailTokenTransferReverted, Detail{
		Mutation: "revokeTokenApproval",
		Code:     CodeTokenTransferReverted,
		Scope:    ScopePerOrder,
		Deriver:  deriveTargetOrderIndex,
	})
	mustAdd(ds, FailNativeTransferFailed, Detail{
		Mutation: "rejectNativePayment",
		Code:     CodeNativeTransferFailed,
		Scope:    ScopePerOrder,
		Deriver:  deriveNativePaymentAmount,
	})
	mustAdd(ds, FailBadFraction, Detail{
		Mutation: "zeroFraction",
		Code:     CodeBadFraction,
		Scope:    ScopePerOrder,
	})
	mustAdd(ds, FailFillExceeded, Detail{
		Mutation: "overfill",
		Code:     CodeFillExceeded,
		Scope:    ScopePerOrder,
	})
	mustAdd(ds, FailCallerNotApproved, Detail{
		Mutation: "revokeCallerApproval",
		Code:     CodeCallerNotApproved,
		Scope:    ScopePerOrder,
	})

	mustAdd(ds, FailCriteriaProofInvalid, Detail{
		Mutation: "corruptCriteriaProof",
		Code:     CodeCriteriaProofInvalid,
		Scope:    ScopePerCriteriaResolver,
		Deriver:  deriveResolverCoords,
	})
	mustAdd(ds, FailWildcardIdentifierMismatch, Detail{
		Mutation: "mismatchWildcardIdentifier",
		Code:     CodeWildcardIdentifierMismatch,
		Scope:    ScopePerCriteriaResolver,
	})
	mustAdd(ds, FailCriteriaResolverOutOfRange, Detail{
		Mutation: "pointResolverOutOfRange",
		Code:     CodeCriteriaResolverOutOfRange,
		Scope:    ScopePerCriteriaResolver,
		Deriver:  deriveResolverSide,
	})
	mustAdd(ds, FailUnresolvedCriteria, Detail{
		Mutation: "dropResolver",
		Code:     CodeUnresolvedCriteria,
		Scope:    ScopePerCriteriaResolver,
		Deriver:  deriveResolverCoords,
	})

	return ds
}

// mustAdd registers a catalog detail. The default catalog is static, so a
// registration error here is a bug.
func mustAdd(ds *DetailSet, kind Failure, detail Detail) {
	if err := ds.Add(kind, detail); err != nil {
		panic(err)
	}
}

// Reason derivers

// deriveRequiredNativeValue reports the native value the run should have
// attached.
func deriveRequiredNativeValue(scn *Scenario, _ *MutationState, code FaultCode) []byte {
	return code.Payload(scn.TotalNativeConsideration())
}

// deriveValidityWindow reports the validity window of the target order.
func deriveValidityWindow(_ *Scenario, state *MutationState, code FaultCode) []byte {
	return code.Payload(uint64(state.Order.StartTime), uint64(state.Order.EndTime))
}

// deriveConsiderationLength reports the target order index and the actual
// consideration length the overstated value exceeded.
func deriveConsiderationLength(_ *Scenario, state *MutationState, code FaultCode) []byte {
	return code.Payload(uint64(state.OrderIndex), uint64(len(state.Order.Consideration)))
}

// deriveTargetOrderIndex reports just the target order index.
func deriveTargetOrderIndex(_ *Scenario, state *MutationState, code FaultCode) []byte {
	return code.Payload(uint64(state.OrderIndex))
}

// deriveNativePaymentAmount reports the amount of the first native
// consideration item of the target order, the payment made to fail.
func deriveNativePaymentAmount(_ *Scenario, state *MutationState, code FaultCode) []byte {
	for _, item := range state.Order.Consideration {
		if item.Kind.IsNative() {
			return code.Payload(item.Amount)
		}
	}
	return code.Payload(0)
}

// deriveResolverCoords reports the order and item the target resolver
// addresses.
func deriveResolverCoords(_ *Scenario, state *MutationState, code FaultCode) []byte {
	return code.Payload(uint64(state.Resolver.OrderIndex), uint64(state.Resolver.ItemIndex))
}

// deriveResolverSide reports which side of the order the re-pointed
// resolver addressed.
func deriveResolverSide(_ *Scenario, state *MutationState, code FaultCode) []byte {
	return code.Payload(uint64(state.Resolver.Side))
}
