// Package testinfra provides test infrastructure for saboteur campaign validation.
package testinfra

import (
	"context"
	"errors"
	"sync"
	"testing"

	"saboteur"
	"saboteur/event"
)

// AssertTrialStatus asserts that a stored trial has the expected status.
func AssertTrialStatus(t testing.TB, store saboteur.TrialStore, trialID string, expected saboteur.TrialStatus) {
	t.Helper()
	trial, err := store.GetTrial(context.Background(), trialID)
	if err != nil {
		t.Fatalf("Failed to get trial %s: %v", trialID, err)
	}
	if trial.Status != expected {
		t.Errorf("Trial %s status: expected %s, got %s", trialID, expected, trial.Status)
	}
}

// AssertTrialConfirmed asserts that a trial confirmed the planned revert.
func AssertTrialConfirmed(t testing.TB, store saboteur.TrialStore, trialID string) {
	t.Helper()
	AssertTrialStatus(t, store, trialID, saboteur.TrialStatusConfirmed)
}

// AssertTrialMismatched asserts that a trial recorded a mismatch.
func AssertTrialMismatched(t testing.TB, store saboteur.TrialStore, trialID string) {
	t.Helper()
	AssertTrialStatus(t, store, trialID, saboteur.TrialStatusMismatched)
}

// AssertTrialErrored asserts that a trial errored.
func AssertTrialErrored(t testing.TB, store saboteur.TrialStore, trialID string) {
	t.Helper()
	AssertTrialStatus(t, store, trialID, saboteur.TrialStatusErrored)
}

// AssertTrialDiscarded asserts that a trial was discarded before execution.
func AssertTrialDiscarded(t testing.TB, store saboteur.TrialStore, trialID string) {
	t.Helper()
	AssertTrialStatus(t, store, trialID, saboteur.TrialStatusDiscarded)
}

// AssertSeenMarked asserts that the dedupe key for a trial was recorded.
func AssertSeenMarked(t testing.TB, store saboteur.TrialStore, key string) {
	t.Helper()
	exists, _, err := store.CheckSeen(context.Background(), key)
	if err != nil {
		t.Fatalf("CheckSeen %s failed: %v", key, err)
	}
	if !exists {
		t.Errorf("Expected seen record for key %s", key)
	}
}

// AssertStatusCounts asserts a campaign's per-status trial counts.
func AssertStatusCounts(t testing.TB, store saboteur.TrialStore, campaignID string, expected map[saboteur.TrialStatus]int64) {
	t.Helper()
	counts, err := store.CountTrialsByStatus(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("CountTrialsByStatus %s failed: %v", campaignID, err)
	}
	for status, want := range expected {
		if counts[status] != want {
			t.Errorf("Campaign %s: expected %d %s trials, got %d", campaignID, want, status, counts[status])
		}
	}
	for status, got := range counts {
		if _, ok := expected[status]; !ok && got != 0 {
			t.Errorf("Campaign %s: unexpected %d trials in status %s", campaignID, got, status)
		}
	}
}

// EventCollector collects events for testing
type EventCollector struct {
	events []event.Event
	mu     sync.Mutex
}

// NewEventCollector creates a new event collector
func NewEventCollector() *EventCollector {
	return &EventCollector{
		events: make([]event.Event, 0),
	}
}

// Handle handles an event by collecting it (matches event.EventHandler signature)
func (c *EventCollector) Handle(ctx context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

// Events returns a snapshot of all collected events
func (c *EventCollector) Events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]event.Event, len(c.events))
	copy(snapshot, c.events)
	return snapshot
}

// Clear clears all collected events
func (c *EventCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

// HasEventType checks if an event of the given type was collected
func (c *EventCollector) HasEventType(eventType event.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// CountEventType counts events of the given type
func (c *EventCollector) CountEventType(eventType event.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, e := range c.events {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// EventsForTrial returns the collected events carrying the given trial ID,
// in arrival order.
func (c *EventCollector) EventsForTrial(trialID string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, e := range c.events {
		if e.TrialID == trialID {
			out = append(out, e)
		}
	}
	return out
}

// AssertEventPublished asserts that an event of the given type was published
func AssertEventPublished(t testing.TB, collector *EventCollector, eventType event.EventType) {
	t.Helper()
	if !collector.HasEventType(eventType) {
		t.Errorf("Expected event %s to be published, but it was not", eventType)
	}
}

// AssertEventNotPublished asserts that an event of the given type was not published
func AssertEventNotPublished(t testing.TB, collector *EventCollector, eventType event.EventType) {
	t.Helper()
	if collector.HasEventType(eventType) {
		t.Errorf("Expected event %s to not be published, but it was", eventType)
	}
}

// AssertEventCount asserts the count of events of the given type
func AssertEventCount(t testing.TB, collector *EventCollector, eventType event.EventType, expected int) {
	t.Helper()
	actual := collector.CountEventType(eventType)
	if actual != expected {
		t.Errorf("Expected %d events of type %s, got %d", expected, eventType, actual)
	}
}

// AssertTrialEventSequence asserts the exact event type sequence observed for
// one trial.
func AssertTrialEventSequence(t testing.TB, collector *EventCollector, trialID string, expected ...event.EventType) {
	t.Helper()
	events := collector.EventsForTrial(trialID)
	if len(events) != len(expected) {
		got := make([]event.EventType, len(events))
		for i, e := range events {
			got[i] = e.Type
		}
		t.Errorf("Trial %s: expected event sequence %v, got %v", trialID, expected, got)
		return
	}
	for i, e := range events {
		if e.Type != expected[i] {
			t.Errorf("Trial %s: event %d: expected %s, got %s", trialID, i, expected[i], e.Type)
		}
	}
}

// AssertNoError asserts that there is no error
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// AssertError asserts that there is an error
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Error("Expected an error, got nil")
	}
}

// AssertErrorIs asserts that err wraps the expected sentinel
func AssertErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("Expected error %v, got %v", target, err)
	}
}

// AssertTrue asserts that a condition is true
func AssertTrue(t testing.TB, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}

// AssertEqual asserts that two values are equal
func AssertEqual[T comparable](t testing.TB, expected, actual T) {
	t.Helper()
	if expected != actual {
		t.Errorf("Expected %v, got %v", expected, actual)
	}
}
