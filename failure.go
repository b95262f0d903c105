// Package saboteur selects and plans deliberate failures for generated
// settlement scenarios. Given a scenario produced by a fuzz campaign, the
// engine decides which failure cases the scenario can exhibit, picks one
// deterministically from the scenario seed, derives the mutation target,
// and computes the exact revert payload the settlement engine under test
// must produce once the mutation is applied.
package saboteur

import "fmt"

// Failure identifies one case in the failure catalog: a specific way a
// scenario can be corrupted so that the settlement engine must reject it.
// The catalog is closed. Eligibility sets, selection order and stored
// trials all index by these values, so new cases are appended at the end
// of their scope group and existing values are never reordered.
type Failure int

const (
	// Generic failures corrupt the scenario as a whole.

	// FailInvalidRoute swaps the transfer route for one that was never
	// authorized by the participants.
	FailInvalidRoute Failure = iota
	// FailMissingNativeValue strips the native value attached to the
	// settlement call.
	FailMissingNativeValue
	// FailDuplicateOrder submits the same order twice in one run.
	FailDuplicateOrder

	// Per-order failures corrupt a single order.

	// FailBadSignature flips a byte inside an order signature.
	FailBadSignature
	// FailSignatureTooShort truncates an order signature below the
	// minimum accepted length.
	FailSignatureTooShort
	// FailOrderNotYetValid moves the order start time into the future.
	FailOrderNotYetValid
	// FailOrderExpired moves the order end time into the past.
	FailOrderExpired
	// FailOrderCancelled cancels the order before the run executes.
	FailOrderCancelled
	// FailMissingOriginalConsideration understates the original
	// consideration length carried alongside the order.
	FailMissingOriginalConsideration
	// FailConsiderationLengthExceeded overstates the original
	// consideration length beyond the actual item count.
	FailConsiderationLengthExceeded
	// FailTokenTransferReverted makes a token transfer required by the
	// order revert on execution.
	FailTokenTransferReverted
	// FailNativeTransferFailed makes a native consideration recipient
	// reject payment.
	FailNativeTransferFailed
	// FailBadFraction gives a partial-fill order an invalid fraction.
	FailBadFraction
	// FailFillExceeded fills a partial order beyond its remaining amount.
	FailFillExceeded
	// FailCallerNotApproved settles a restricted order with a caller the
	// approval authority rejects.
	FailCallerNotApproved

	// Per-resolver failures corrupt a single criteria resolver.

	// FailCriteriaProofInvalid corrupts a criteria membership proof.
	FailCriteriaProofInvalid
	// FailWildcardIdentifierMismatch resolves a wildcard criteria item to
	// an identifier the offerer never committed to.
	FailWildcardIdentifierMismatch
	// FailCriteriaResolverOutOfRange points a resolver at an order index
	// outside the scenario.
	FailCriteriaResolverOutOfRange
	// FailUnresolvedCriteria drops the resolver for a criteria item.
	FailUnresolvedCriteria

	failureCount // sentinel, keep last
)

var failureNames = [...]string{
	FailInvalidRoute:                 "InvalidRoute",
	FailMissingNativeValue:           "MissingNativeValue",
	FailDuplicateOrder:               "DuplicateOrder",
	FailBadSignature:                 "BadSignature",
	FailSignatureTooShort:            "SignatureTooShort",
	FailOrderNotYetValid:             "OrderNotYetValid",
	FailOrderExpired:                 "OrderExpired",
	FailOrderCancelled:               "OrderCancelled",
	FailMissingOriginalConsideration: "MissingOriginalConsideration",
	FailConsiderationLengthExceeded:  "ConsiderationLengthExceeded",
	FailTokenTransferReverted:        "TokenTransferReverted",
	FailNativeTransferFailed:         "NativeTransferFailed",
	FailBadFraction:                  "BadFraction",
	FailFillExceeded:                 "FillExceeded",
	FailCallerNotApproved:            "CallerNotApproved",
	FailCriteriaProofInvalid:         "CriteriaProofInvalid",
	FailWildcardIdentifierMismatch:   "WildcardIdentifierMismatch",
	FailCriteriaResolverOutOfRange:   "CriteriaResolverOutOfRange",
	FailUnresolvedCriteria:           "UnresolvedCriteria",
}

// String returns the catalog name of the failure case.
func (f Failure) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Failure(%d)", int(f))
	}
	return failureNames[f]
}

// Valid reports whether f is a member of the catalog.
func (f Failure) Valid() bool {
	return f >= 0 && f < failureCount
}

// FailureCount returns the number of cases in the catalog.
func FailureCount() int {
	return int(failureCount)
}

// AllFailures returns every case in catalog order.
func AllFailures() []Failure {
	out := make([]Failure, 0, failureCount)
	for f := Failure(0); f < failureCount; f++ {
		out = append(out, f)
	}
	return out
}

// DerivationScope says which target a failure case mutates: the scenario
// as a whole, one order, or one criteria resolver.
type DerivationScope int

const (
	// ScopeGeneric targets the scenario as a whole.
	ScopeGeneric DerivationScope = iota
	// ScopePerOrder targets a single order.
	ScopePerOrder
	// ScopePerCriteriaResolver targets a single criteria resolver.
	ScopePerCriteriaResolver
)

// String returns the scope name used in stored trials and metrics labels.
func (s DerivationScope) String() string {
	switch s {
	case ScopeGeneric:
		return "generic"
	case ScopePerOrder:
		return "per_order"
	case ScopePerCriteriaResolver:
		return "per_criteria_resolver"
	default:
		return fmt.Sprintf("DerivationScope(%d)", int(s))
	}
}

// Valid reports whether s is a known scope.
func (s DerivationScope) Valid() bool {
	switch s {
	case ScopeGeneric, ScopePerOrder, ScopePerCriteriaResolver:
		return true
	default:
		return false
	}
}
