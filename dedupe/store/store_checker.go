// Package store provides a store-based implementation of the dedupe.Checker interface.
package store

import (
	"context"
	"time"

	"saboteur/dedupe"
)

// SeenStore defines the storage operations required for duplicate-trial detection.
// This interface is a subset of the trial store, allowing for flexible implementations.
type SeenStore interface {
	// CheckSeen checks if a trial was already executed.
	CheckSeen(ctx context.Context, key string) (exists bool, result []byte, err error)

	// MarkSeen marks a trial as executed with its outcome.
	MarkSeen(ctx context.Context, key string, result []byte, ttl time.Duration) error
}

// StoreChecker implements the dedupe.Checker interface using a store backend.
type StoreChecker struct {
	store SeenStore
}

// New creates a new StoreChecker with the given store.
func New(store SeenStore) *StoreChecker {
	return &StoreChecker{
		store: store,
	}
}

// Seen checks if a trial was already executed.
// It delegates to the underlying store's CheckSeen method.
func (c *StoreChecker) Seen(ctx context.Context, key string) (bool, []byte, error) {
	return c.store.CheckSeen(ctx, key)
}

// Mark marks a trial as executed with its outcome.
// It delegates to the underlying store's MarkSeen method.
func (c *StoreChecker) Mark(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	return c.store.MarkSeen(ctx, key, result, ttl)
}

// Ensure StoreChecker implements dedupe.Checker interface.
var _ dedupe.Checker = (*StoreChecker)(nil)
