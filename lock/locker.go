// Package lock provides the distributed locking interface used to keep
// parallel campaign workers from running the same trial twice.
package lock

import (
	"context"
	"time"
)

// Locker is the distributed lock interface.
// Campaign workers lock the trial key before mutating and executing, so a
// seed planned on two workers at once runs on exactly one of them.
type Locker interface {
	// Acquire takes every key or none. Implementations sort the keys before
	// acquiring so two workers grabbing overlapping sets cannot deadlock.
	Acquire(ctx context.Context, keys []string, ttl time.Duration) (LockHandle, error)
}

// LockHandle is the grip on a set of acquired locks.
type LockHandle interface {
	// Extend pushes out the TTL of every held lock.
	Extend(ctx context.Context, ttl time.Duration) error

	// Release frees the held locks. Every lock is attempted even when some
	// releases fail.
	Release(ctx context.Context) error

	// Keys lists the held keys.
	Keys() []string
}

// NoOpHandle is a lock handle holding nothing. Runners fall back to it
// when no locker is configured.
type NoOpHandle struct{}

// Extend implements LockHandle.
func (NoOpHandle) Extend(ctx context.Context, ttl time.Duration) error {
	return nil
}

// Release implements LockHandle.
func (NoOpHandle) Release(ctx context.Context) error {
	return nil
}

// Keys implements LockHandle.
func (NoOpHandle) Keys() []string {
	return nil
}
