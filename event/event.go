// Package event provides event definitions and event bus for the saboteur campaign runner.
package event

import (
	"time"
)

// EventType identifies a class of campaign event.
type EventType string

const (
	// Trial lifecycle events
	EventTrialPlanned    EventType = "trial.planned"
	EventTrialApplied    EventType = "trial.applied"
	EventTrialExecuted   EventType = "trial.executed"
	EventTrialConfirmed  EventType = "trial.confirmed"
	EventTrialMismatched EventType = "trial.mismatched"
	EventTrialDiscarded  EventType = "trial.discarded"
	EventTrialErrored    EventType = "trial.errored"
	EventTrialDuplicate  EventType = "trial.duplicate"

	// Circuit breaker events
	EventCircuitOpened EventType = "circuit.opened"
	EventCircuitClosed EventType = "circuit.closed"

	// Replay events
	EventReplayStart EventType = "replay.start"

	// Alert events
	EventAlertWarning  EventType = "alert.warning"
	EventAlertCritical EventType = "alert.critical"
)

// Event carries what happened to one trial, for monitors and alerting.
type Event struct {
	Type       EventType      // event type
	TrialID    string         // trial ID
	CampaignID string         // campaign the trial belongs to
	Failure    string         // planned failure case (trial events only)
	Mutation   string         // applied mutation name (trial events only)
	Timestamp  time.Time      // event timestamp
	Data       map[string]any // additional data
	Error      error          // error detail (failure events only)
}

// NewEvent creates an event of the given type, stamped with the current time.
func NewEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      make(map[string]any),
	}
}

// WithTrialID sets the trial ID on the event.
func (e Event) WithTrialID(trialID string) Event {
	e.TrialID = trialID
	return e
}

// WithCampaignID sets the campaign ID on the event.
func (e Event) WithCampaignID(campaignID string) Event {
	e.CampaignID = campaignID
	return e
}

// WithFailure sets the planned failure case on the event.
func (e Event) WithFailure(failure string) Event {
	e.Failure = failure
	return e
}

// WithMutation sets the mutation name on the event.
func (e Event) WithMutation(mutation string) Event {
	e.Mutation = mutation
	return e
}

// WithError attaches the error detail.
func (e Event) WithError(err error) Event {
	e.Error = err
	return e
}

// WithData adds one key-value pair to the event data.
func (e Event) WithData(key string, value any) Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// String returns the event type as a string.
func (t EventType) String() string {
	return string(t)
}
