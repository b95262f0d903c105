// Package dedupe provides duplicate-trial detection for the saboteur campaign runner.
package dedupe

import (
	"context"
	"time"
)

// Checker defines the interface for duplicate-trial detection.
// It provides methods to check whether a trial was already executed
// and to mark a trial as executed.
type Checker interface {
	// Seen checks if a trial was already executed.
	// Returns:
	//   - exists: true if the trial was already executed
	//   - result: the recorded outcome of the trial (if exists is true)
	//   - err: any error that occurred during the check
	Seen(ctx context.Context, key string) (exists bool, result []byte, err error)

	// Mark marks a trial as executed with its outcome.
	// The outcome will be stored with the given TTL.
	// Parameters:
	//   - key: the trial key (unique per campaign, seed and mutation target)
	//   - result: the serialized outcome of the trial
	//   - ttl: how long to keep the seen record
	Mark(ctx context.Context, key string, result []byte, ttl time.Duration) error
}
