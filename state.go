package saboteur

// TrialStatus represents the status of a trial
type TrialStatus string

const (
	// TrialStatusPlanned indicates the failure was planned for the scenario
	TrialStatusPlanned TrialStatus = "PLANNED"
	// TrialStatusApplied indicates the mutation has been applied
	TrialStatusApplied TrialStatus = "APPLIED"
	// TrialStatusExecuted indicates the settlement engine answered
	TrialStatusExecuted TrialStatus = "EXECUTED"
	// TrialStatusConfirmed indicates the engine rejected the run with the expected payload
	TrialStatusConfirmed TrialStatus = "CONFIRMED"
	// TrialStatusMismatched indicates the engine settled the run or rejected it with a different payload
	TrialStatusMismatched TrialStatus = "MISMATCHED"
	// TrialStatusDiscarded indicates the scenario could not exhibit the asked failure
	TrialStatusDiscarded TrialStatus = "DISCARDED"
	// TrialStatusErrored indicates the harness itself failed mid-trial
	TrialStatusErrored TrialStatus = "ERRORED"
)

// validTrialTransitions defines valid state transitions for trials.
// MISMATCHED and ERRORED loop back to PLANNED when a replay re-runs the
// trial from its seed.
var validTrialTransitions = map[TrialStatus][]TrialStatus{
	TrialStatusPlanned: {
		TrialStatusApplied,
		TrialStatusDiscarded,
		TrialStatusErrored,
	},
	TrialStatusApplied: {
		TrialStatusExecuted,
		TrialStatusErrored,
	},
	TrialStatusExecuted: {
		TrialStatusConfirmed,
		TrialStatusMismatched,
		TrialStatusErrored,
	},
	TrialStatusConfirmed: {},
	TrialStatusMismatched: {
		TrialStatusPlanned,
	},
	TrialStatusDiscarded: {},
	TrialStatusErrored: {
		TrialStatusPlanned,
	},
}

// ValidateTrialTransition checks if a trial state transition is valid
func ValidateTrialTransition(from, to TrialStatus) bool {
	validTargets, ok := validTrialTransitions[from]
	if !ok {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsTrialTerminal returns true if the trial status is terminal (no further transitions)
func IsTrialTerminal(status TrialStatus) bool {
	switch status {
	case TrialStatusConfirmed, TrialStatusDiscarded:
		return true
	default:
		return false
	}
}

// IsTrialReplayable returns true if a replay may re-run the trial
func IsTrialReplayable(status TrialStatus) bool {
	switch status {
	case TrialStatusMismatched, TrialStatusErrored:
		return true
	default:
		return false
	}
}

// IsTrialInFlight returns true if the trial has started but not finished.
// In-flight trials older than the stuck threshold are picked up by the
// replay worker.
func IsTrialInFlight(status TrialStatus) bool {
	switch status {
	case TrialStatusPlanned, TrialStatusApplied, TrialStatusExecuted:
		return true
	default:
		return false
	}
}
