package saboteur

import "errors"

// Catalog errors. These indicate a broken rule or detail registration and
// are raised once at engine construction, before any scenario is planned.
var (
	// ErrFailureNotCovered indicates a failure case has no eligibility rule
	ErrFailureNotCovered = errors.New("failure case not covered by any eligibility rule")

	// ErrDetailMissing indicates a failure case has no registered detail
	ErrDetailMissing = errors.New("failure detail not registered")

	// ErrDetailAlreadyRegistered indicates a second detail was registered for a failure case
	ErrDetailAlreadyRegistered = errors.New("failure detail already registered")

	// ErrScopeMismatch indicates a failure case whose rule and detail disagree on scope
	ErrScopeMismatch = errors.New("rule scope does not match detail scope")

	// ErrUnknownScope indicates a rule or detail with an unrecognized derivation scope
	ErrUnknownScope = errors.New("unknown derivation scope")
)

// Lookup errors. These indicate a programming error in the caller, not a
// catalog coverage gap.
var (
	// ErrNoRuleForFailure indicates a rule lookup for an uncovered failure case
	ErrNoRuleForFailure = errors.New("no eligibility rule for failure case")

	// ErrInvalidFailure indicates a failure value outside the catalog
	ErrInvalidFailure = errors.New("failure case not in catalog")
)

// Selection errors. These indicate an exhausted scenario, not a bug: the
// generated scenario simply cannot exhibit what was asked of it.
var (
	// ErrNoEligibleFailure indicates every failure case is ineligible for the scenario
	ErrNoEligibleFailure = errors.New("no eligible failure case")

	// ErrNoEligibleOrder indicates no order can exhibit the chosen failure case
	ErrNoEligibleOrder = errors.New("no eligible order")

	// ErrNoEligibleResolver indicates no criteria resolver can exhibit the chosen failure case
	ErrNoEligibleResolver = errors.New("no eligible criteria resolver")
)

// Trial errors
var (
	// ErrTrialNotFound indicates the trial does not exist
	ErrTrialNotFound = errors.New("trial not found")

	// ErrTrialAlreadyExists indicates the trial already exists
	ErrTrialAlreadyExists = errors.New("trial already exists")

	// ErrInvalidTrialState indicates an invalid trial state transition
	ErrInvalidTrialState = errors.New("invalid trial state")

	// ErrDuplicateTrial indicates an identical trial was already executed for this seed
	ErrDuplicateTrial = errors.New("duplicate trial")

	// ErrMutationFailed indicates the mutator could not apply the planned corruption
	ErrMutationFailed = errors.New("mutation failed")

	// ErrExecutionFailed indicates the settlement engine under test could not be invoked
	ErrExecutionFailed = errors.New("execution failed")

	// ErrExecutionTimeout indicates the settlement engine under test did not answer in time
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrMaxReplaysExceeded indicates the maximum replay count has been exceeded
	ErrMaxReplaysExceeded = errors.New("max replays exceeded")
)

// Lock errors
var (
	// ErrLockAcquisitionFailed indicates lock acquisition failed
	ErrLockAcquisitionFailed = errors.New("lock acquisition failed")

	// ErrLockNotHeld indicates the lock is not held
	ErrLockNotHeld = errors.New("lock not held")

	// ErrLockExtensionFailed indicates lock extension failed
	ErrLockExtensionFailed = errors.New("lock extension failed")

	// ErrLockReleaseFailed indicates lock release failed
	ErrLockReleaseFailed = errors.New("lock release failed")
)

// Store errors
var (
	// ErrVersionConflict indicates optimistic lock version conflict
	ErrVersionConflict = errors.New("version conflict")

	// ErrStoreOperationFailed indicates a store operation failed
	ErrStoreOperationFailed = errors.New("store operation failed")
)

// Circuit breaker errors
var (
	// ErrCircuitOpen indicates the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Dedupe errors
var (
	// ErrDedupeCheckFailed indicates the duplicate-trial check failed
	ErrDedupeCheckFailed = errors.New("dedupe check failed")
)

// Config errors
var (
	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)
