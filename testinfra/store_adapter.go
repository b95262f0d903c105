// Package testinfra provides test infrastructure for saboteur campaign validation.
package testinfra

import (
	"context"
	"time"

	"saboteur"
	"saboteur/replay"
	"saboteur/store"
	"saboteur/store/mysql"
)

// StoreAdapter adapts store.Store to the saboteur.TrialStore interface.
// This allows using mysql.MySQLStore with the campaign runner.
type StoreAdapter struct {
	store *mysql.MySQLStore
}

// NewStoreAdapter creates a new StoreAdapter wrapping a MySQLStore.
func NewStoreAdapter(s *mysql.MySQLStore) *StoreAdapter {
	return &StoreAdapter{store: s}
}

// CreateTrial creates a new trial record.
func (a *StoreAdapter) CreateTrial(ctx context.Context, trial *saboteur.StoreTrial) error {
	record := toStoreRecord(trial)
	err := a.store.CreateTrial(ctx, record)
	if err != nil {
		return err
	}
	trial.ID = record.ID
	return nil
}

// UpdateTrial updates an existing trial.
func (a *StoreAdapter) UpdateTrial(ctx context.Context, trial *saboteur.StoreTrial) error {
	record := toStoreRecord(trial)
	err := a.store.UpdateTrial(ctx, record)
	if err != nil {
		return err
	}
	trial.UpdatedAt = record.UpdatedAt
	return nil
}

// GetTrial retrieves a trial by its ID.
func (a *StoreAdapter) GetTrial(ctx context.Context, trialID string) (*saboteur.StoreTrial, error) {
	record, err := a.store.GetTrial(ctx, trialID)
	if err != nil {
		return nil, err
	}
	return toStoreTrial(record), nil
}

// GetStuckTrials retrieves in-flight trials older than the specified duration.
func (a *StoreAdapter) GetStuckTrials(ctx context.Context, olderThan time.Duration) ([]*saboteur.StoreTrial, error) {
	records, err := a.store.GetStuckTrials(ctx, olderThan)
	if err != nil {
		return nil, err
	}
	return toStoreTrialSlice(records), nil
}

// GetReplayableTrials retrieves mismatched or errored trials with attempts left.
func (a *StoreAdapter) GetReplayableTrials(ctx context.Context, maxAttempts int) ([]*saboteur.StoreTrial, error) {
	records, err := a.store.GetReplayableTrials(ctx, maxAttempts)
	if err != nil {
		return nil, err
	}
	return toStoreTrialSlice(records), nil
}

// ListTrials lists trials with optional filters.
func (a *StoreAdapter) ListTrials(ctx context.Context, filter *saboteur.StoreTrialFilter) ([]*saboteur.StoreTrial, int64, error) {
	storeFilter := &store.TrialFilter{
		CampaignID: filter.CampaignID,
		Status:     filter.Status,
		Failure:    filter.Failure,
		StartTime:  filter.StartTime,
		EndTime:    filter.EndTime,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	records, total, err := a.store.ListTrials(ctx, storeFilter)
	if err != nil {
		return nil, 0, err
	}
	return toStoreTrialSlice(records), total, nil
}

// CountTrialsByStatus counts a campaign's trials grouped by status.
func (a *StoreAdapter) CountTrialsByStatus(ctx context.Context, campaignID string) (map[saboteur.TrialStatus]int64, error) {
	return a.store.CountTrialsByStatus(ctx, campaignID)
}

// CheckSeen checks if an identical trial was already executed.
func (a *StoreAdapter) CheckSeen(ctx context.Context, key string) (bool, []byte, error) {
	return a.store.CheckSeen(ctx, key)
}

// MarkSeen marks a trial as executed with its result.
func (a *StoreAdapter) MarkSeen(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	return a.store.MarkSeen(ctx, key, result, ttl)
}

// DeleteExpiredSeen removes expired dedupe records.
func (a *StoreAdapter) DeleteExpiredSeen(ctx context.Context) (int64, error) {
	return a.store.DeleteExpiredSeen(ctx)
}

// ============================================================================
// Conversion helpers
// ============================================================================

// toStoreRecord converts saboteur.StoreTrial to store.Trial.
func toStoreRecord(trial *saboteur.StoreTrial) *store.Trial {
	return &store.Trial{
		ID:            trial.ID,
		TrialID:       trial.TrialID,
		CampaignID:    trial.CampaignID,
		ScenarioID:    trial.ScenarioID,
		Seed:          trial.Seed,
		Failure:       trial.Failure,
		Scope:         trial.Scope,
		Mutation:      trial.Mutation,
		OrderIndex:    trial.OrderIndex,
		ResolverIndex: trial.ResolverIndex,
		Expected:      trial.Expected,
		Actual:        trial.Actual,
		Status:        trial.Status,
		ErrorMsg:      trial.ErrorMsg,
		Attempts:      trial.Attempts,
		MaxAttempts:   trial.MaxAttempts,
		Labels:        store.LabelMap(trial.Labels),
		Version:       trial.Version,
		CreatedAt:     trial.CreatedAt,
		UpdatedAt:     trial.UpdatedAt,
		ExecutedAt:    trial.ExecutedAt,
		CompletedAt:   trial.CompletedAt,
	}
}

// toStoreTrial converts store.Trial to saboteur.StoreTrial.
func toStoreTrial(record *store.Trial) *saboteur.StoreTrial {
	return &saboteur.StoreTrial{
		ID:            record.ID,
		TrialID:       record.TrialID,
		CampaignID:    record.CampaignID,
		ScenarioID:    record.ScenarioID,
		Seed:          record.Seed,
		Failure:       record.Failure,
		Scope:         record.Scope,
		Mutation:      record.Mutation,
		OrderIndex:    record.OrderIndex,
		ResolverIndex: record.ResolverIndex,
		Expected:      record.Expected,
		Actual:        record.Actual,
		Status:        record.Status,
		ErrorMsg:      record.ErrorMsg,
		Attempts:      record.Attempts,
		MaxAttempts:   record.MaxAttempts,
		Labels:        map[string]string(record.Labels),
		Version:       record.Version,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
		ExecutedAt:    record.ExecutedAt,
		CompletedAt:   record.CompletedAt,
	}
}

// toStoreTrialSlice converts a slice of store.Trial to saboteur.StoreTrial.
func toStoreTrialSlice(records []*store.Trial) []*saboteur.StoreTrial {
	result := make([]*saboteur.StoreTrial, len(records))
	for i, record := range records {
		result[i] = toStoreTrial(record)
	}
	return result
}

// ============================================================================
// Replay adapter
// ============================================================================

// ReplayStoreAdapter adapts the MySQL store to the replay.TrialStore interface.
// Updates reload the full row first: the replay worker only sees a projection
// of the trial, and writing that projection back directly would clear the
// payload columns it never carried.
type ReplayStoreAdapter struct {
	store *mysql.MySQLStore
}

// NewReplayStoreAdapter creates a new ReplayStoreAdapter wrapping a MySQLStore.
func NewReplayStoreAdapter(s *mysql.MySQLStore) *ReplayStoreAdapter {
	return &ReplayStoreAdapter{store: s}
}

// GetTrial retrieves a trial by its ID.
func (a *ReplayStoreAdapter) GetTrial(ctx context.Context, trialID string) (*replay.Trial, error) {
	record, err := a.store.GetTrial(ctx, trialID)
	if err != nil {
		return nil, err
	}
	return toReplayTrial(record), nil
}

// UpdateTrial updates the replay-visible fields of an existing trial.
func (a *ReplayStoreAdapter) UpdateTrial(ctx context.Context, trial *replay.Trial) error {
	record, err := a.store.GetTrial(ctx, trial.TrialID)
	if err != nil {
		return err
	}

	record.Status = saboteur.TrialStatus(trial.Status)
	record.ErrorMsg = trial.ErrorMsg
	record.Attempts = trial.Attempts
	record.Version = trial.Version
	record.UpdatedAt = trial.UpdatedAt
	record.ExecutedAt = trial.ExecutedAt
	record.CompletedAt = trial.CompletedAt

	return a.store.UpdateTrial(ctx, record)
}

// GetStuckTrials retrieves in-flight trials older than the specified duration.
func (a *ReplayStoreAdapter) GetStuckTrials(ctx context.Context, olderThan time.Duration) ([]*replay.Trial, error) {
	records, err := a.store.GetStuckTrials(ctx, olderThan)
	if err != nil {
		return nil, err
	}
	return toReplayTrialSlice(records), nil
}

// GetReplayableTrials retrieves mismatched or errored trials with attempts left.
func (a *ReplayStoreAdapter) GetReplayableTrials(ctx context.Context, maxAttempts int) ([]*replay.Trial, error) {
	records, err := a.store.GetReplayableTrials(ctx, maxAttempts)
	if err != nil {
		return nil, err
	}
	return toReplayTrialSlice(records), nil
}

// toReplayTrial converts store.Trial to replay.Trial.
func toReplayTrial(record *store.Trial) *replay.Trial {
	return &replay.Trial{
		ID:            record.ID,
		TrialID:       record.TrialID,
		CampaignID:    record.CampaignID,
		ScenarioID:    record.ScenarioID,
		Seed:          record.Seed,
		Failure:       record.Failure,
		Scope:         record.Scope,
		Mutation:      record.Mutation,
		OrderIndex:    record.OrderIndex,
		ResolverIndex: record.ResolverIndex,
		Status:        string(record.Status),
		ErrorMsg:      record.ErrorMsg,
		Attempts:      record.Attempts,
		MaxAttempts:   record.MaxAttempts,
		Version:       record.Version,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
		ExecutedAt:    record.ExecutedAt,
		CompletedAt:   record.CompletedAt,
	}
}

// toReplayTrialSlice converts a slice of store.Trial to replay.Trial.
func toReplayTrialSlice(records []*store.Trial) []*replay.Trial {
	result := make([]*replay.Trial, len(records))
	for i, record := range records {
		result[i] = toReplayTrial(record)
	}
	return result
}

// Ensure the adapters satisfy the interfaces they bridge.
var (
	_ saboteur.TrialStore = (*StoreAdapter)(nil)
	_ replay.TrialStore   = (*ReplayStoreAdapter)(nil)
	_ replay.Runner       = (*saboteur.Runner)(nil)
)
