// Package store provides the storage interface and models for trial records.
package store

import (
	"context"
	"time"

	"saboteur"
)

// Store defines the storage interface for trial and dedupe records.
// It supports CRUD operations, replay queries, and campaign queries.
type Store interface {
	// Trial operations

	// CreateTrial creates a new trial record.
	CreateTrial(ctx context.Context, trial *Trial) error

	// UpdateTrial updates an existing trial, guarded by the version field.
	UpdateTrial(ctx context.Context, trial *Trial) error

	// GetTrial retrieves a trial by its ID.
	GetTrial(ctx context.Context, trialID string) (*Trial, error)

	// Replay queries

	// GetStuckTrials retrieves trials that are in flight
	// (PLANNED, APPLIED or EXECUTED status) and older than the specified duration.
	GetStuckTrials(ctx context.Context, olderThan time.Duration) ([]*Trial, error)

	// GetReplayableTrials retrieves mismatched or errored trials that can be
	// replayed (attempts < maxAttempts).
	GetReplayableTrials(ctx context.Context, maxAttempts int) ([]*Trial, error)

	// Campaign queries

	// ListTrials lists trials with optional filters.
	ListTrials(ctx context.Context, filter *TrialFilter) ([]*Trial, int64, error)

	// CountTrialsByStatus counts a campaign's trials grouped by status.
	CountTrialsByStatus(ctx context.Context, campaignID string) (map[saboteur.TrialStatus]int64, error)

	// Dedupe operations (optional, can use separate Checker)

	// CheckSeen checks if an identical trial was already executed.
	// Returns exists=true if the trial was executed, along with its result.
	CheckSeen(ctx context.Context, key string) (exists bool, result []byte, err error)

	// MarkSeen marks a trial as executed with its result.
	MarkSeen(ctx context.Context, key string, result []byte, ttl time.Duration) error

	// DeleteExpiredSeen removes expired dedupe records.
	DeleteExpiredSeen(ctx context.Context) (int64, error)
}

// TrialFilter defines filters for listing trials.
type TrialFilter struct {
	// CampaignID filters by campaign.
	CampaignID string

	// Status filters by trial status (multiple allowed).
	Status []saboteur.TrialStatus

	// Failure filters by failure case name.
	Failure string

	// StartTime filters trials created after this time.
	StartTime time.Time

	// EndTime filters trials created before this time.
	EndTime time.Time

	// Limit caps the number of returned trials.
	Limit int

	// Offset skips that many trials for pagination.
	Offset int
}

// NewTrialFilter creates a new TrialFilter with default values.
func NewTrialFilter() *TrialFilter {
	return &TrialFilter{
		Limit:  100,
		Offset: 0,
	}
}

// WithCampaign sets the campaign filter.
func (f *TrialFilter) WithCampaign(campaignID string) *TrialFilter {
	f.CampaignID = campaignID
	return f
}

// WithStatus adds statuses to match.
func (f *TrialFilter) WithStatus(status ...saboteur.TrialStatus) *TrialFilter {
	f.Status = append(f.Status, status...)
	return f
}

// WithFailure sets the failure case filter.
func (f *TrialFilter) WithFailure(failure string) *TrialFilter {
	f.Failure = failure
	return f
}

// WithTimeRange restricts to trials created inside [start, end].
func (f *TrialFilter) WithTimeRange(start, end time.Time) *TrialFilter {
	f.StartTime = start
	f.EndTime = end
	return f
}

// WithPagination sets the page size and offset.
func (f *TrialFilter) WithPagination(limit, offset int) *TrialFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
