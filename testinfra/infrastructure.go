// Package testinfra provides test infrastructure for saboteur campaign validation.
// It includes MySQL and Redis connections, cleanup utilities, scenario generators
// and test helpers.
package testinfra

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"saboteur"
	"saboteur/circuit/memory"
	dedupestore "saboteur/dedupe/store"
	"saboteur/event"
	"saboteur/lock"
	saboteurredis "saboteur/lock/redis"
	"saboteur/replay"
	"saboteur/store/mysql"
)

// DefaultConfig reads the test environment, falling back to local defaults.
func DefaultConfig() TestConfig {
	return TestConfig{
		MySQLDSN:       getEnvOrDefault("SABOTEUR_TEST_MYSQL_DSN", "root:123456@tcp(localhost:3306)/saboteur_test?parseTime=true"),
		RedisAddr:      getEnvOrDefault("SABOTEUR_TEST_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnvOrDefault("SABOTEUR_TEST_REDIS_PASSWORD", ""),
		RedisDB:        0,
		LockTTL:        30 * time.Second,
		ExecTimeout:    5 * time.Second,
		MaxReplays:     3,
		ReplayInterval: 100 * time.Millisecond,
		StuckThreshold: 5 * time.Minute,
		DedupeTTL:      24 * time.Hour,
		PropertyRuns:   100,
	}
}

// TestConfig carries connection settings and campaign knobs for the suite.
type TestConfig struct {
	MySQLDSN       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LockTTL        time.Duration
	ExecTimeout    time.Duration
	MaxReplays     int
	ReplayInterval time.Duration
	StuckThreshold time.Duration
	DedupeTTL      time.Duration
	PropertyRuns   int
}

// RunnerConfig converts the test configuration into a campaign runner Config.
func (c TestConfig) RunnerConfig() saboteur.Config {
	cfg := saboteur.DefaultConfig()
	cfg.LockTTL = c.LockTTL
	cfg.ExecTimeout = c.ExecTimeout
	cfg.MaxReplays = c.MaxReplays
	cfg.ReplayInterval = c.ReplayInterval
	cfg.StuckThreshold = c.StuckThreshold
	cfg.DedupeTTL = c.DedupeTTL
	return cfg
}

// TestInfrastructure bundles real MySQL and Redis connections with the
// campaign components built on them.
type TestInfrastructure struct {
	DB          *sql.DB
	Redis       *redis.Client
	MySQLStore  *mysql.MySQLStore
	TrialStore  *StoreAdapter
	ReplayStore *ReplayStoreAdapter
	Locker      lock.Locker
	EventBus    event.EventBus
	Breaker     *memory.MemoryBreaker
	Checker     *dedupestore.StoreChecker
	Engine      *saboteur.Engine
	Config      TestConfig
	testID      string
}

// NewTestInfrastructure creates a new test infrastructure with real MySQL and
// Redis. It skips the test if the infrastructure is not available.
func NewTestInfrastructure(t *testing.T) *TestInfrastructure {
	t.Helper()
	return NewTestInfrastructureWithConfig(t, DefaultConfig())
}

// NewTestInfrastructureWithConfig connects with explicit settings.
func NewTestInfrastructureWithConfig(t *testing.T, cfg TestConfig) *TestInfrastructure {
	t.Helper()

	testID := fmt.Sprintf("test-%d", time.Now().UnixNano())

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		t.Skipf("Skipping test: MySQL connection failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("Skipping test: MySQL ping failed: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		t.Skipf("Skipping test: Redis ping failed: %v", err)
	}

	// Store adapters, locker, bus, breaker and dedupe checker all share the
	// two connections above.
	mysqlStore := mysql.New(db)
	trialStore := NewStoreAdapter(mysqlStore)
	replayStore := NewReplayStoreAdapter(mysqlStore)
	locker := saboteurredis.NewRedisLocker(redisClient)
	eventBus := event.NewMemoryEventBus()
	breaker := memory.NewMemoryBreaker()
	checker := dedupestore.New(mysqlStore)

	// Planning engine from the default catalog.
	engine, err := saboteur.NewEngine()
	if err != nil {
		db.Close()
		redisClient.Close()
		t.Fatalf("failed to construct engine: %v", err)
	}

	return &TestInfrastructure{
		DB:          db,
		Redis:       redisClient,
		MySQLStore:  mysqlStore,
		TrialStore:  trialStore,
		ReplayStore: replayStore,
		Locker:      locker,
		EventBus:    eventBus,
		Breaker:     breaker,
		Checker:     checker,
		Engine:      engine,
		Config:      cfg,
		testID:      testID,
	}
}

// NewCampaignRunner wires a campaign runner against the shared infrastructure.
// The mutator and executor come from the caller; extra options are applied last
// and may override any of the defaults.
func (ti *TestInfrastructure) NewCampaignRunner(campaignID string, m saboteur.Mutator, x saboteur.Executor, extra ...saboteur.RunnerOption) *saboteur.Runner {
	opts := []saboteur.RunnerOption{
		saboteur.WithEngine(ti.Engine),
		saboteur.WithStore(ti.TrialStore),
		saboteur.WithLocker(ti.Locker),
		saboteur.WithBreaker(ti.Breaker),
		saboteur.WithEventBus(ti.EventBus),
		saboteur.WithChecker(ti.Checker),
		saboteur.WithMutator(m),
		saboteur.WithExecutor(x),
		saboteur.WithCampaignID(campaignID),
		saboteur.WithRunnerConfig(ti.Config.RunnerConfig()),
	}
	opts = append(opts, extra...)
	return saboteur.NewRunner(opts...)
}

// NewReplayWorker wires a replay worker against the shared infrastructure.
// The runner must carry a scenario source, or every replay will fail.
func (ti *TestInfrastructure) NewReplayWorker(runner replay.Runner) *replay.Worker {
	return replay.NewWorker(
		replay.WithStore(ti.ReplayStore),
		replay.WithLocker(ti.Locker),
		replay.WithRunner(runner),
		replay.WithEventBus(ti.EventBus),
		replay.WithConfig(replay.Config{
			ReplayInterval: ti.Config.ReplayInterval,
			StuckThreshold: ti.Config.StuckThreshold,
			MaxReplays:     ti.Config.MaxReplays,
			LockTTL:        ti.Config.LockTTL,
		}),
	)
}

// TestID returns this run's unique identifier.
func (ti *TestInfrastructure) TestID() string {
	return ti.testID
}

// GenerateCampaignID generates a unique campaign ID for testing. Trial keys,
// seen records and lock keys all start with the campaign ID, so everything a
// campaign touches is reachable by the test-ID prefix at cleanup time.
func (ti *TestInfrastructure) GenerateCampaignID(suffix string) string {
	return fmt.Sprintf("%s-%s", ti.testID, suffix)
}

// Cleanup deletes this run's trials, seen records and locks. Trial campaign
// IDs, seen keys and lock keys all start with the test ID.
func (ti *TestInfrastructure) Cleanup(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := ti.DB.ExecContext(ctx, "DELETE FROM saboteur_trials WHERE campaign_id LIKE ?", ti.testID+"%")
	if err != nil {
		t.Logf("Warning: failed to cleanup trials: %v", err)
	}

	_, err = ti.DB.ExecContext(ctx, "DELETE FROM saboteur_seen WHERE seen_key LIKE ?", ti.testID+"%")
	if err != nil {
		t.Logf("Warning: failed to cleanup seen records: %v", err)
	}

	keys, err := ti.Redis.Keys(ctx, "saboteur:lock:"+ti.testID+"*").Result()
	if err == nil && len(keys) > 0 {
		ti.Redis.Del(ctx, keys...)
	}
}

// CleanupAll deletes every test-prefixed row and lock, not just this run's.
func (ti *TestInfrastructure) CleanupAll(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := ti.DB.ExecContext(ctx, "DELETE FROM saboteur_trials WHERE campaign_id LIKE 'test-%'")
	if err != nil {
		t.Logf("Warning: failed to cleanup all trials: %v", err)
	}

	_, err = ti.DB.ExecContext(ctx, "DELETE FROM saboteur_seen WHERE seen_key LIKE 'test-%'")
	if err != nil {
		t.Logf("Warning: failed to cleanup all seen records: %v", err)
	}

	keys, err := ti.Redis.Keys(ctx, "saboteur:lock:test-*").Result()
	if err == nil && len(keys) > 0 {
		ti.Redis.Del(ctx, keys...)
	}
}

// Close shuts down the MySQL and Redis connections.
func (ti *TestInfrastructure) Close() {
	if ti.DB != nil {
		ti.DB.Close()
	}
	if ti.Redis != nil {
		ti.Redis.Close()
	}
}

// getEnvOrDefault reads an environment override.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SkipIfNoInfrastructure skips the test when MySQL or Redis cannot be
// reached.
func SkipIfNoInfrastructure(t *testing.T) {
	t.Helper()
	cfg := DefaultConfig()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		t.Skipf("Skipping test: MySQL not available: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("Skipping test: MySQL not available: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test: Redis not available: %v", err)
	}
}
