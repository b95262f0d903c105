// Package testinfra provides test infrastructure for saboteur campaign validation.
package testinfra

import (
	"context"
	"testing"
	"time"

	"saboteur"
)

// TestInfrastructureConnection validates MySQL and Redis connections
func TestInfrastructureConnection(t *testing.T) {
	// Skip if infrastructure is not available
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()

	t.Run("MySQL_Connection", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Test ping
		if err := ti.DB.PingContext(ctx); err != nil {
			t.Fatalf("MySQL ping failed: %v", err)
		}

		// Test simple query
		var result int
		err := ti.DB.QueryRowContext(ctx, "SELECT 1").Scan(&result)
		if err != nil {
			t.Fatalf("MySQL query failed: %v", err)
		}
		if result != 1 {
			t.Fatalf("Expected 1, got %d", result)
		}

		t.Log("MySQL connection verified successfully")
	})

	t.Run("Redis_Connection", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Test ping
		if err := ti.Redis.Ping(ctx).Err(); err != nil {
			t.Fatalf("Redis ping failed: %v", err)
		}

		// Test set/get
		testKey := ti.TestID() + "-test-key"
		testValue := "test-value"

		err := ti.Redis.Set(ctx, testKey, testValue, time.Minute).Err()
		if err != nil {
			t.Fatalf("Redis SET failed: %v", err)
		}

		got, err := ti.Redis.Get(ctx, testKey).Result()
		if err != nil {
			t.Fatalf("Redis GET failed: %v", err)
		}
		if got != testValue {
			t.Fatalf("Expected %s, got %s", testValue, got)
		}

		// Cleanup test key
		ti.Redis.Del(ctx, testKey)

		t.Log("Redis connection verified successfully")
	})
}

// TestInfrastructureCleanup validates the cleanup functionality
func TestInfrastructureCleanup(t *testing.T) {
	// Skip if infrastructure is not available
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()

	ctx := context.Background()
	campaignID := ti.GenerateCampaignID("cleanup")
	trialID := ti.TestID() + "-trial-cleanup"
	seenKey := campaignID + ":1:corruptRoute:-1:-1"
	lockKey := "saboteur:lock:" + campaignID + ":1:corruptRoute:-1:-1"

	t.Run("Create_Test_Data", func(t *testing.T) {
		scn := saboteur.NewScenarioWithID("scn-cleanup").
			WithSeed(1).
			WithCaller("cleanup-caller").
			MustBuild()

		trial := saboteur.NewStoreTrial(trialID, campaignID, scn)
		if err := ti.TrialStore.CreateTrial(ctx, trial); err != nil {
			t.Fatalf("Failed to create test trial: %v", err)
		}

		if err := ti.TrialStore.MarkSeen(ctx, seenKey, []byte(`{}`), time.Hour); err != nil {
			t.Fatalf("Failed to create test seen record: %v", err)
		}

		if err := ti.Redis.Set(ctx, lockKey, "test-value", time.Minute).Err(); err != nil {
			t.Fatalf("Failed to create test Redis key: %v", err)
		}

		t.Log("Test data created successfully")
	})

	t.Run("Verify_Data_Exists", func(t *testing.T) {
		var count int
		err := ti.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM saboteur_trials WHERE trial_id = ?", trialID).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query trial: %v", err)
		}
		if count != 1 {
			t.Fatalf("Expected 1 trial, got %d", count)
		}

		exists, _, err := ti.TrialStore.CheckSeen(ctx, seenKey)
		if err != nil {
			t.Fatalf("Failed to query seen record: %v", err)
		}
		if !exists {
			t.Fatal("Expected seen record to exist")
		}

		t.Log("Test data verified to exist")
	})

	t.Run("Cleanup", func(t *testing.T) {
		ti.Cleanup(t)
		t.Log("Cleanup executed")
	})

	t.Run("Verify_Data_Cleaned", func(t *testing.T) {
		var count int
		err := ti.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM saboteur_trials WHERE trial_id = ?", trialID).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query trial: %v", err)
		}
		if count != 0 {
			t.Fatalf("Expected 0 trials after cleanup, got %d", count)
		}

		exists, _, err := ti.TrialStore.CheckSeen(ctx, seenKey)
		if err != nil {
			t.Fatalf("Failed to query seen record: %v", err)
		}
		if exists {
			t.Fatal("Expected seen record to be cleaned")
		}

		if n, err := ti.Redis.Exists(ctx, lockKey).Result(); err == nil && n != 0 {
			t.Fatal("Expected Redis lock key to be cleaned")
		}

		t.Log("Test data verified to be cleaned")
	})
}

// TestInfrastructureComponents validates all infrastructure components are initialized
func TestInfrastructureComponents(t *testing.T) {
	// Skip if infrastructure is not available
	SkipIfNoInfrastructure(t)

	ti := NewTestInfrastructure(t)
	defer ti.Close()

	t.Run("DB_Not_Nil", func(t *testing.T) {
		if ti.DB == nil {
			t.Fatal("DB should not be nil")
		}
	})

	t.Run("Redis_Not_Nil", func(t *testing.T) {
		if ti.Redis == nil {
			t.Fatal("Redis should not be nil")
		}
	})

	t.Run("MySQLStore_Not_Nil", func(t *testing.T) {
		if ti.MySQLStore == nil {
			t.Fatal("MySQLStore should not be nil")
		}
	})

	t.Run("TrialStore_Not_Nil", func(t *testing.T) {
		if ti.TrialStore == nil {
			t.Fatal("TrialStore should not be nil")
		}
	})

	t.Run("ReplayStore_Not_Nil", func(t *testing.T) {
		if ti.ReplayStore == nil {
			t.Fatal("ReplayStore should not be nil")
		}
	})

	t.Run("Locker_Not_Nil", func(t *testing.T) {
		if ti.Locker == nil {
			t.Fatal("Locker should not be nil")
		}
	})

	t.Run("EventBus_Not_Nil", func(t *testing.T) {
		if ti.EventBus == nil {
			t.Fatal("EventBus should not be nil")
		}
	})

	t.Run("Breaker_Not_Nil", func(t *testing.T) {
		if ti.Breaker == nil {
			t.Fatal("Breaker should not be nil")
		}
	})

	t.Run("Checker_Not_Nil", func(t *testing.T) {
		if ti.Checker == nil {
			t.Fatal("Checker should not be nil")
		}
	})

	t.Run("Engine_Not_Nil", func(t *testing.T) {
		if ti.Engine == nil {
			t.Fatal("Engine should not be nil")
		}
	})

	t.Run("TestID_Not_Empty", func(t *testing.T) {
		if ti.TestID() == "" {
			t.Fatal("TestID should not be empty")
		}
	})

	t.Log("All infrastructure components initialized successfully")
}
