package saboteur

import (
	"context"
	"fmt"
	"time"
)

// TrialStore defines the storage interface for trial records.
// This interface is implemented by store/mysql and other storage backends.
type TrialStore interface {
	// Trial operations
	CreateTrial(ctx context.Context, trial *StoreTrial) error
	UpdateTrial(ctx context.Context, trial *StoreTrial) error
	GetTrial(ctx context.Context, trialID string) (*StoreTrial, error)

	// Replay queries
	GetStuckTrials(ctx context.Context, olderThan time.Duration) ([]*StoreTrial, error)
	GetReplayableTrials(ctx context.Context, maxAttempts int) ([]*StoreTrial, error)

	// Campaign queries
	ListTrials(ctx context.Context, filter *StoreTrialFilter) ([]*StoreTrial, int64, error)
	CountTrialsByStatus(ctx context.Context, campaignID string) (map[TrialStatus]int64, error)

	// Dedupe operations
	CheckSeen(ctx context.Context, key string) (exists bool, result []byte, err error)
	MarkSeen(ctx context.Context, key string, result []byte, ttl time.Duration) error
	DeleteExpiredSeen(ctx context.Context) (int64, error)
}

// StoreTrial represents a trial record for storage.
type StoreTrial struct {
	ID         int64
	TrialID    string
	CampaignID string
	ScenarioID string

	// Seed is the scenario seed. Together with the campaign's generator
	// version it reproduces the scenario and every choice made for it.
	Seed uint64

	// Failure, Scope and Mutation describe the planned failure by its
	// catalog detail. Failure stays empty for exhausted scenarios that
	// were discarded before a case could be chosen.
	Failure  string
	Scope    string
	Mutation string

	// OrderIndex and ResolverIndex locate the mutation target. -1 marks
	// an absent target.
	OrderIndex    int
	ResolverIndex int

	// Expected is the revert payload the settlement engine must produce.
	// Actual is what it did produce; empty when the run settled.
	Expected []byte
	Actual   []byte

	Status      TrialStatus
	ErrorMsg    string
	Attempts    int
	MaxAttempts int
	Labels      map[string]string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExecutedAt  *time.Time
	CompletedAt *time.Time
}

// StoreTrialFilter defines filters for listing trials.
type StoreTrialFilter struct {
	CampaignID string
	Status     []TrialStatus
	Failure    string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

// NewStoreTrial creates a new StoreTrial for a scenario with default
// values.
func NewStoreTrial(trialID, campaignID string, scn *Scenario) *StoreTrial {
	now := time.Now()
	return &StoreTrial{
		TrialID:       trialID,
		CampaignID:    campaignID,
		ScenarioID:    scn.ID,
		Seed:          scn.Seed,
		OrderIndex:    -1,
		ResolverIndex: -1,
		Status:        TrialStatusPlanned,
		Attempts:      0,
		MaxAttempts:   3,
		Labels:        make(map[string]string),
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SetPlan records the planned failure on the trial.
func (t *StoreTrial) SetPlan(plan *Plan) {
	t.Failure = plan.Failure.String()
	t.Scope = plan.Detail.Scope.String()
	t.Mutation = plan.Detail.Mutation
	t.OrderIndex = plan.State.OrderIndex
	t.ResolverIndex = plan.State.ResolverIndex
	t.Expected = plan.Expected
}

// Key derives the dedupe and lock key identifying the trial up to
// replay. It matches the key computed when the trial was planned.
func (t *StoreTrial) Key() string {
	return fmt.Sprintf("%s:%d:%s:%d:%d",
		t.CampaignID, t.Seed, t.Mutation, t.OrderIndex, t.ResolverIndex)
}

// IsTerminal returns true if the trial is in a terminal state.
func (t *StoreTrial) IsTerminal() bool {
	return IsTrialTerminal(t.Status)
}

// IsReplayable returns true if the trial status admits a replay.
func (t *StoreTrial) IsReplayable() bool {
	return IsTrialReplayable(t.Status)
}

// CanReplay returns true if the trial can still be replayed.
func (t *StoreTrial) CanReplay() bool {
	return IsTrialReplayable(t.Status) && t.Attempts < t.MaxAttempts
}

// IncrementVersion increments the version for optimistic locking.
func (t *StoreTrial) IncrementVersion() {
	t.Version++
	t.UpdatedAt = time.Now()
}
