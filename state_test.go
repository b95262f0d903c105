package saboteur

import (
	"testing"

	"pgregory.net/rapid"
)

// ============================================================================
// Unit Tests for state.go
// Tests ValidateTrialTransition, IsTrialTerminal, IsTrialReplayable, and
// IsTrialInFlight
// ============================================================================

// All valid trial statuses
var allTrialStatuses = []TrialStatus{
	TrialStatusPlanned,
	TrialStatusApplied,
	TrialStatusExecuted,
	TrialStatusConfirmed,
	TrialStatusMismatched,
	TrialStatusDiscarded,
	TrialStatusErrored,
}

func TestValidateTrialTransition_ValidTransitions(t *testing.T) {
	// Test all valid transitions from the state machine
	validTransitions := []struct {
		from TrialStatus
		to   TrialStatus
	}{
		// From PLANNED
		{TrialStatusPlanned, TrialStatusApplied},
		{TrialStatusPlanned, TrialStatusDiscarded},
		{TrialStatusPlanned, TrialStatusErrored},
		// From APPLIED
		{TrialStatusApplied, TrialStatusExecuted},
		{TrialStatusApplied, TrialStatusErrored},
		// From EXECUTED
		{TrialStatusExecuted, TrialStatusConfirmed},
		{TrialStatusExecuted, TrialStatusMismatched},
		{TrialStatusExecuted, TrialStatusErrored},
		// Replays loop MISMATCHED and ERRORED back to PLANNED
		{TrialStatusMismatched, TrialStatusPlanned},
		{TrialStatusErrored, TrialStatusPlanned},
	}

	for _, tt := range validTransitions {
		if !ValidateTrialTransition(tt.from, tt.to) {
			t.Errorf("transition from %s to %s should be valid", tt.from, tt.to)
		}
	}
}

func TestValidateTrialTransition_InvalidTransitions(t *testing.T) {
	// Test some invalid transitions
	invalidTransitions := []struct {
		from TrialStatus
		to   TrialStatus
	}{
		// Cannot skip states
		{TrialStatusPlanned, TrialStatusExecuted},
		{TrialStatusPlanned, TrialStatusConfirmed},
		{TrialStatusApplied, TrialStatusConfirmed},
		// Cannot go back mid-run
		{TrialStatusApplied, TrialStatusPlanned},
		{TrialStatusExecuted, TrialStatusApplied},
		// Terminal states cannot transition
		{TrialStatusConfirmed, TrialStatusPlanned},
		{TrialStatusConfirmed, TrialStatusMismatched},
		{TrialStatusDiscarded, TrialStatusPlanned},
		// Replayable states only loop back to PLANNED
		{TrialStatusMismatched, TrialStatusApplied},
		{TrialStatusErrored, TrialStatusExecuted},
		// Self-transitions are invalid
		{TrialStatusPlanned, TrialStatusPlanned},
		{TrialStatusExecuted, TrialStatusExecuted},
	}

	for _, tt := range invalidTransitions {
		if ValidateTrialTransition(tt.from, tt.to) {
			t.Errorf("transition from %s to %s should be invalid", tt.from, tt.to)
		}
	}
}

func TestValidateTrialTransition_UnknownStatus(t *testing.T) {
	unknownStatus := TrialStatus("UNKNOWN")

	// Unknown source status
	if ValidateTrialTransition(unknownStatus, TrialStatusApplied) {
		t.Error("transition from unknown status should be invalid")
	}

	// Unknown target status
	if ValidateTrialTransition(TrialStatusPlanned, unknownStatus) {
		t.Error("transition to unknown status should be invalid")
	}
}

func TestValidateTrialTransition_TerminalStatesHaveNoTransitions(t *testing.T) {
	terminalStates := []TrialStatus{
		TrialStatusConfirmed,
		TrialStatusDiscarded,
	}

	for _, terminal := range terminalStates {
		for _, target := range allTrialStatuses {
			if ValidateTrialTransition(terminal, target) {
				t.Errorf("terminal state %s should not allow transition to %s", terminal, target)
			}
		}
	}
}

func TestIsTrialTerminal(t *testing.T) {
	terminalStatuses := []TrialStatus{
		TrialStatusConfirmed,
		TrialStatusDiscarded,
	}

	nonTerminalStatuses := []TrialStatus{
		TrialStatusPlanned,
		TrialStatusApplied,
		TrialStatusExecuted,
		TrialStatusMismatched,
		TrialStatusErrored,
	}

	for _, status := range terminalStatuses {
		if !IsTrialTerminal(status) {
			t.Errorf("%s should be terminal", status)
		}
	}

	for _, status := range nonTerminalStatuses {
		if IsTrialTerminal(status) {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestIsTrialReplayable(t *testing.T) {
	replayableStatuses := []TrialStatus{
		TrialStatusMismatched,
		TrialStatusErrored,
	}

	nonReplayableStatuses := []TrialStatus{
		TrialStatusPlanned,
		TrialStatusApplied,
		TrialStatusExecuted,
		TrialStatusConfirmed,
		TrialStatusDiscarded,
	}

	for _, status := range replayableStatuses {
		if !IsTrialReplayable(status) {
			t.Errorf("%s should be replayable", status)
		}
	}

	for _, status := range nonReplayableStatuses {
		if IsTrialReplayable(status) {
			t.Errorf("%s should not be replayable", status)
		}
	}
}

func TestIsTrialInFlight(t *testing.T) {
	inFlightStatuses := []TrialStatus{
		TrialStatusPlanned,
		TrialStatusApplied,
		TrialStatusExecuted,
	}

	settledStatuses := []TrialStatus{
		TrialStatusConfirmed,
		TrialStatusMismatched,
		TrialStatusDiscarded,
		TrialStatusErrored,
	}

	for _, status := range inFlightStatuses {
		if !IsTrialInFlight(status) {
			t.Errorf("%s should be in flight", status)
		}
	}

	for _, status := range settledStatuses {
		if IsTrialInFlight(status) {
			t.Errorf("%s should not be in flight", status)
		}
	}
}

func TestProperty_TrialTransitionValidity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		fromIdx := rapid.IntRange(0, len(allTrialStatuses)-1).Draw(rt, "fromIdx")
		toIdx := rapid.IntRange(0, len(allTrialStatuses)-1).Draw(rt, "toIdx")

		from := allTrialStatuses[fromIdx]
		to := allTrialStatuses[toIdx]

		// Check if transition is in the valid transitions map
		validTargets, exists := validTrialTransitions[from]
		expectedValid := false
		if exists {
			for _, target := range validTargets {
				if target == to {
					expectedValid = true
					break
				}
			}
		}

		actualValid := ValidateTrialTransition(from, to)

		if actualValid != expectedValid {
			rt.Fatalf("ValidateTrialTransition(%s, %s) = %v, expected %v",
				from, to, actualValid, expectedValid)
		}

		if IsTrialTerminal(from) && actualValid {
			rt.Fatalf("terminal state %s should not allow transition to %s", from, to)
		}
	})
}

func TestProperty_TrialStatusClassification(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		idx := rapid.IntRange(0, len(allTrialStatuses)-1).Draw(rt, "idx")
		status := allTrialStatuses[idx]

		isTerminal := IsTrialTerminal(status)
		isReplayable := IsTrialReplayable(status)
		isInFlight := IsTrialInFlight(status)

		// Every status belongs to exactly one lifecycle class
		count := 0
		for _, in := range []bool{isTerminal, isReplayable, isInFlight} {
			if in {
				count++
			}
		}
		if count != 1 {
			rt.Fatalf("status %s matched %d lifecycle classes, expected exactly 1", status, count)
		}

		// Terminal statuses admit no transitions
		validTargets := validTrialTransitions[status]
		if isTerminal && len(validTargets) > 0 {
			rt.Fatalf("terminal state %s should have no valid transitions, but has %v",
				status, validTargets)
		}

		// Replayable statuses loop back to PLANNED and nowhere else
		if isReplayable {
			if len(validTargets) != 1 || validTargets[0] != TrialStatusPlanned {
				rt.Fatalf("replayable state %s should transition only to PLANNED, but has %v",
					status, validTargets)
			}
		}
	})
}
