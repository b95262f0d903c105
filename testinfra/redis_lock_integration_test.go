package testinfra

import (
	"context"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Redis Lock Integration Tests
// ============================================================================

// TestIntegration_RedisLock_AcquireRelease tests basic lock operations
// against a real Redis instance.
func TestIntegration_RedisLock_AcquireRelease(t *testing.T) {
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()
	defer ti.Cleanup(t)

	ctx := context.Background()

	t.Run("Single_Key", func(t *testing.T) {
		key := ti.TestID() + "-lock-single"

		handle, err := ti.Locker.Acquire(ctx, []string{key}, 30*time.Second)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if handle == nil {
			t.Fatal("Expected non-nil handle")
		}

		held := handle.Keys()
		if len(held) != 1 || held[0] != key {
			t.Errorf("Expected held keys [%s], got %v", key, held)
		}

		// The lock key exists in Redis under the locker prefix
		exists, err := ti.Redis.Exists(ctx, "saboteur:lock:"+key).Result()
		if err != nil {
			t.Fatalf("Redis EXISTS failed: %v", err)
		}
		if exists != 1 {
			t.Error("Expected lock key to exist in Redis")
		}

		if err := handle.Release(ctx); err != nil {
			t.Fatalf("Release failed: %v", err)
		}

		exists, err = ti.Redis.Exists(ctx, "saboteur:lock:"+key).Result()
		if err != nil {
			t.Fatalf("Redis EXISTS failed: %v", err)
		}
		if exists != 0 {
			t.Error("Expected lock key to be deleted after release")
		}
	})

	t.Run("Multiple_Keys_Sorted", func(t *testing.T) {
		// Keys given out of order are acquired in sorted order
		keys := []string{
			ti.TestID() + "-lock-c",
			ti.TestID() + "-lock-a",
			ti.TestID() + "-lock-b",
		}

		handle, err := ti.Locker.Acquire(ctx, keys, 30*time.Second)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		held := handle.Keys()
		if len(held) != 3 {
			t.Fatalf("Expected 3 held keys, got %d", len(held))
		}
		for i := 1; i < len(held); i++ {
			if held[i-1] >= held[i] {
				t.Errorf("Expected sorted keys, got %v", held)
			}
		}

		for _, key := range keys {
			exists, err := ti.Redis.Exists(ctx, "saboteur:lock:"+key).Result()
			if err != nil {
				t.Fatalf("Redis EXISTS failed: %v", err)
			}
			if exists != 1 {
				t.Errorf("Expected lock key %s to exist", key)
			}
		}

		if err := handle.Release(ctx); err != nil {
			t.Fatalf("Release failed: %v", err)
		}

		for _, key := range keys {
			exists, err := ti.Redis.Exists(ctx, "saboteur:lock:"+key).Result()
			if err != nil {
				t.Fatalf("Redis EXISTS failed: %v", err)
			}
			if exists != 0 {
				t.Errorf("Expected lock key %s to be released", key)
			}
		}
	})

	t.Run("Release_Is_Idempotent", func(t *testing.T) {
		key := ti.TestID() + "-lock-idempotent"

		handle, err := ti.Locker.Acquire(ctx, []string{key}, 30*time.Second)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		if err := handle.Release(ctx); err != nil {
			t.Fatalf("First release failed: %v", err)
		}
		if err := handle.Release(ctx); err != nil {
			t.Errorf("Second release should be a no-op, got %v", err)
		}
	})
}

// TestIntegration_RedisLock_Contention tests that a held lock blocks other
// workers until released.
func TestIntegration_RedisLock_Contention(t *testing.T) {
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()
	defer ti.Cleanup(t)

	ctx := context.Background()
	key := ti.TestID() + "-lock-contended"

	first, err := ti.Locker.Acquire(ctx, []string{key}, 30*time.Second)
	if err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	// Second acquisition of the same key must fail while the first holds it
	second, err := ti.Locker.Acquire(ctx, []string{key}, 30*time.Second)
	if err == nil {
		second.Release(ctx)
		t.Fatal("Expected second acquire to fail while lock is held")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// After release the key is free again
	third, err := ti.Locker.Acquire(ctx, []string{key}, 30*time.Second)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	third.Release(ctx)
}

// TestIntegration_RedisLock_Extend tests TTL extension on held locks.
func TestIntegration_RedisLock_Extend(t *testing.T) {
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()
	defer ti.Cleanup(t)

	ctx := context.Background()

	t.Run("Extend_Outlives_Original_TTL", func(t *testing.T) {
		key := ti.TestID() + "-lock-extend"

		handle, err := ti.Locker.Acquire(ctx, []string{key}, 1*time.Second)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer handle.Release(ctx)

		if err := handle.Extend(ctx, 30*time.Second); err != nil {
			t.Fatalf("Extend failed: %v", err)
		}

		// Wait past the original TTL; the extended lock must still be held
		time.Sleep(1500 * time.Millisecond)

		exists, err := ti.Redis.Exists(ctx, "saboteur:lock:"+key).Result()
		if err != nil {
			t.Fatalf("Redis EXISTS failed: %v", err)
		}
		if exists != 1 {
			t.Error("Expected extended lock to outlive its original TTL")
		}
	})

	t.Run("Extend_After_Expiry_Fails", func(t *testing.T) {
		key := ti.TestID() + "-lock-extend-expired"

		handle, err := ti.Locker.Acquire(ctx, []string{key}, 500*time.Millisecond)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		// Let the lock expire, then try to extend it
		time.Sleep(1 * time.Second)

		if err := handle.Extend(ctx, 30*time.Second); err == nil {
			t.Error("Expected extend of an expired lock to fail")
		}
	})
}

// TestIntegration_RedisLock_Expiry tests that expired locks can be acquired
// by another worker.
func TestIntegration_RedisLock_Expiry(t *testing.T) {
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()
	defer ti.Cleanup(t)

	ctx := context.Background()
	key := ti.TestID() + "-lock-expiry"

	// Acquire with a short TTL and do not release
	_, err := ti.Locker.Acquire(ctx, []string{key}, 1*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Wait for expiry
	time.Sleep(1500 * time.Millisecond)

	// The lock should be acquirable again
	handle, err := ti.Locker.Acquire(ctx, []string{key}, 30*time.Second)
	if err != nil {
		t.Fatalf("Expected acquire to succeed after expiry, got %v", err)
	}
	handle.Release(ctx)
}

// TestIntegration_RedisLock_ConcurrentAcquire tests that exactly one of many
// concurrent workers wins the lock.
func TestIntegration_RedisLock_ConcurrentAcquire(t *testing.T) {
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()
	defer ti.Cleanup(t)

	ctx := context.Background()
	key := ti.TestID() + "-lock-race"

	const numWorkers = 10
	var wg sync.WaitGroup
	winners := 0
	var mu sync.Mutex

	startCh := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			<-startCh

			handle, err := ti.Locker.Acquire(ctx, []string{key}, 30*time.Second)
			if err != nil {
				return
			}

			mu.Lock()
			winners++
			mu.Unlock()

			// Hold briefly so losers observe contention, then release
			time.Sleep(50 * time.Millisecond)
			handle.Release(ctx)
		}()
	}

	close(startCh)
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}
}
