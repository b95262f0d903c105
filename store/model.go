package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"saboteur"
)

// Trial represents a trial record in the database.
type Trial struct {
	// ID is the auto-increment primary key.
	ID int64 `db:"id" json:"id"`

	// TrialID is the unique trial identifier.
	TrialID string `db:"trial_id" json:"trial_id"`

	// CampaignID is the campaign this trial belongs to.
	CampaignID string `db:"campaign_id" json:"campaign_id"`

	// ScenarioID is the identifier of the scenario under trial.
	ScenarioID string `db:"scenario_id" json:"scenario_id"`

	// Seed is the scenario seed. Together with the campaign's generator
	// version it reproduces the scenario and every choice made for it.
	Seed uint64 `db:"seed" json:"seed"`

	// Failure is the name of the planned failure case. It stays empty for
	// exhausted scenarios that were discarded before a case could be chosen.
	Failure string `db:"failure" json:"failure"`

	// Scope is the derivation scope of the planned failure.
	Scope string `db:"scope" json:"scope"`

	// Mutation is the name of the mutation routine.
	Mutation string `db:"mutation" json:"mutation"`

	// OrderIndex locates the mutated order. -1 marks an absent target.
	OrderIndex int `db:"order_index" json:"order_index"`

	// ResolverIndex locates the mutated criteria resolver. -1 marks an
	// absent target.
	ResolverIndex int `db:"resolver_index" json:"resolver_index"`

	// Expected is the revert payload the settlement engine must produce.
	Expected []byte `db:"expected" json:"expected,omitempty"`

	// Actual is what the engine did produce. Empty when the run settled.
	Actual []byte `db:"actual" json:"actual,omitempty"`

	// Status is the current trial status.
	Status saboteur.TrialStatus `db:"status" json:"status"`

	// ErrorMsg contains the error message if the trial errored.
	ErrorMsg string `db:"error_msg" json:"error_msg"`

	// Attempts is the number of times this trial has been run.
	Attempts int `db:"attempts" json:"attempts"`

	// MaxAttempts is the maximum number of replays allowed.
	MaxAttempts int `db:"max_attempts" json:"max_attempts"`

	// Labels contains free-form campaign labels.
	Labels LabelMap `db:"labels" json:"labels"`

	// Version is used for optimistic locking.
	Version int `db:"version" json:"version"`

	// CreatedAt is when the trial was created.
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// UpdatedAt is when the trial was last updated.
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// ExecutedAt is when the mutated scenario was handed to the engine.
	ExecutedAt *time.Time `db:"executed_at" json:"executed_at,omitempty"`

	// CompletedAt is when the trial reached a terminal status.
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// SeenRecord represents a dedupe record in the database.
type SeenRecord struct {
	// ID is the auto-increment primary key.
	ID int64 `db:"id" json:"id"`

	// SeenKey is the unique trial key for this record.
	SeenKey string `db:"seen_key" json:"seen_key"`

	// Result contains the recorded trial result.
	Result []byte `db:"result" json:"result,omitempty"`

	// CreatedAt is when the record was created.
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// ExpiresAt is when the record expires.
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// LabelMap is a custom type for storing string maps as JSON in the database.
type LabelMap map[string]string

// Value implements the driver.Valuer interface for database serialization.
func (m LabelMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *LabelMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into LabelMap", value)
	}

	return json.Unmarshal(bytes, m)
}

// NewTrial creates a new Trial with default values.
func NewTrial(trialID, campaignID, scenarioID string, seed uint64) *Trial {
	now := time.Now()
	return &Trial{
		TrialID:       trialID,
		CampaignID:    campaignID,
		ScenarioID:    scenarioID,
		Seed:          seed,
		OrderIndex:    -1,
		ResolverIndex: -1,
		Status:        saboteur.TrialStatusPlanned,
		Attempts:      0,
		MaxAttempts:   3,
		Labels:        LabelMap{},
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsTerminal returns true if the trial is in a terminal state.
func (t *Trial) IsTerminal() bool {
	return saboteur.IsTrialTerminal(t.Status)
}

// IsReplayable returns true if the trial status admits a replay.
func (t *Trial) IsReplayable() bool {
	return saboteur.IsTrialReplayable(t.Status)
}

// CanReplay returns true if the trial can still be replayed.
func (t *Trial) CanReplay() bool {
	return saboteur.IsTrialReplayable(t.Status) && t.Attempts < t.MaxAttempts
}

// IncrementVersion increments the version for optimistic locking.
func (t *Trial) IncrementVersion() {
	t.Version++
	t.UpdatedAt = time.Now()
}
