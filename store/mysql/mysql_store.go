// Package mysql provides a MySQL implementation of the store.Store interface.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"saboteur"
	"saboteur/store"
)

// MySQLStore implements the store.Store interface using MySQL.
type MySQLStore struct {
	db *sql.DB
}

// New creates a new MySQLStore with the given database connection.
func New(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// ============================================================================
// Trial Operations
// ============================================================================

// CreateTrial creates a new trial record.
func (s *MySQLStore) CreateTrial(ctx context.Context, trial *store.Trial) error {
	query := `
		INSERT INTO saboteur_trials (
			trial_id, campaign_id, scenario_id, seed, failure, scope, mutation,
			order_index, resolver_index, expected, actual, status, error_msg,
			attempts, max_attempts, labels, version,
			created_at, updated_at, executed_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	labels, err := json.Marshal(trial.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query,
		trial.TrialID, trial.CampaignID, trial.ScenarioID, trial.Seed, trial.Failure, trial.Scope, trial.Mutation,
		trial.OrderIndex, trial.ResolverIndex, trial.Expected, trial.Actual, trial.Status, trial.ErrorMsg,
		trial.Attempts, trial.MaxAttempts, labels, trial.Version,
		trial.CreatedAt, trial.UpdatedAt, trial.ExecutedAt, trial.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return saboteur.ErrTrialAlreadyExists
		}
		return fmt.Errorf("%w: create trial: %v", saboteur.ErrStoreOperationFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	trial.ID = id

	return nil
}

// UpdateTrial updates an existing trial with optimistic locking. Callers
// increment trial.Version before calling; the update matches the previous
// version and fails with ErrVersionConflict when another worker won.
func (s *MySQLStore) UpdateTrial(ctx context.Context, trial *store.Trial) error {
	query := `
		UPDATE saboteur_trials SET
			failure = ?, scope = ?, mutation = ?, order_index = ?, resolver_index = ?,
			expected = ?, actual = ?, status = ?, error_msg = ?, attempts = ?,
			labels = ?, version = ?, updated_at = ?, executed_at = ?, completed_at = ?
		WHERE trial_id = ? AND version = ?
	`

	labels, err := json.Marshal(trial.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	// The caller has already incremented the version, so we use trial.Version for the new value
	// and trial.Version-1 for the WHERE clause to match the existing version
	result, err := s.db.ExecContext(ctx, query,
		trial.Failure, trial.Scope, trial.Mutation, trial.OrderIndex, trial.ResolverIndex,
		trial.Expected, trial.Actual, trial.Status, trial.ErrorMsg, trial.Attempts,
		labels, trial.Version, time.Now(), trial.ExecutedAt, trial.CompletedAt,
		trial.TrialID, trial.Version-1,
	)
	if err != nil {
		return fmt.Errorf("%w: update trial: %v", saboteur.ErrStoreOperationFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Check if trial exists
		exists, err := s.trialExists(ctx, trial.TrialID)
		if err != nil {
			return err
		}
		if !exists {
			return saboteur.ErrTrialNotFound
		}
		return saboteur.ErrVersionConflict
	}

	trial.UpdatedAt = time.Now()

	return nil
}

// GetTrial retrieves a trial by its ID.
func (s *MySQLStore) GetTrial(ctx context.Context, trialID string) (*store.Trial, error) {
	query := `
		SELECT id, trial_id, campaign_id, scenario_id, seed, failure, scope, mutation,
			order_index, resolver_index, expected, actual, status, error_msg,
			attempts, max_attempts, labels, version,
			created_at, updated_at, executed_at, completed_at
		FROM saboteur_trials
		WHERE trial_id = ?
	`

	trial := &store.Trial{}
	var labels []byte

	err := s.db.QueryRowContext(ctx, query, trialID).Scan(
		&trial.ID, &trial.TrialID, &trial.CampaignID, &trial.ScenarioID, &trial.Seed, &trial.Failure, &trial.Scope, &trial.Mutation,
		&trial.OrderIndex, &trial.ResolverIndex, &trial.Expected, &trial.Actual, &trial.Status, &trial.ErrorMsg,
		&trial.Attempts, &trial.MaxAttempts, &labels, &trial.Version,
		&trial.CreatedAt, &trial.UpdatedAt, &trial.ExecutedAt, &trial.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, saboteur.ErrTrialNotFound
		}
		return nil, fmt.Errorf("%w: get trial: %v", saboteur.ErrStoreOperationFailed, err)
	}

	if err := json.Unmarshal(labels, &trial.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}

	return trial, nil
}

// trialExists checks if a trial exists.
func (s *MySQLStore) trialExists(ctx context.Context, trialID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM saboteur_trials WHERE trial_id = ?", trialID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: check trial exists: %v", saboteur.ErrStoreOperationFailed, err)
	}
	return count > 0, nil
}

// ============================================================================
// Replay Queries
// ============================================================================

// GetStuckTrials retrieves trials that are in flight
// (PLANNED, APPLIED or EXECUTED status) and older than the specified duration.
func (s *MySQLStore) GetStuckTrials(ctx context.Context, olderThan time.Duration) ([]*store.Trial, error) {
	query := `
		SELECT id, trial_id, campaign_id, scenario_id, seed, failure, scope, mutation,
			order_index, resolver_index, expected, actual, status, error_msg,
			attempts, max_attempts, labels, version,
			created_at, updated_at, executed_at, completed_at
		FROM saboteur_trials
		WHERE status IN (?, ?, ?) AND updated_at < ?
		ORDER BY created_at ASC
	`

	threshold := time.Now().Add(-olderThan)
	return s.queryTrials(ctx, query, saboteur.TrialStatusPlanned, saboteur.TrialStatusApplied, saboteur.TrialStatusExecuted, threshold)
}

// GetReplayableTrials retrieves mismatched or errored trials that can be replayed.
func (s *MySQLStore) GetReplayableTrials(ctx context.Context, maxAttempts int) ([]*store.Trial, error) {
	query := `
		SELECT id, trial_id, campaign_id, scenario_id, seed, failure, scope, mutation,
			order_index, resolver_index, expected, actual, status, error_msg,
			attempts, max_attempts, labels, version,
			created_at, updated_at, executed_at, completed_at
		FROM saboteur_trials
		WHERE status IN (?, ?) AND attempts < ?
		ORDER BY created_at ASC
	`

	return s.queryTrials(ctx, query, saboteur.TrialStatusMismatched, saboteur.TrialStatusErrored, maxAttempts)
}

// queryTrials is a helper function to query trials.
func (s *MySQLStore) queryTrials(ctx context.Context, query string, args ...interface{}) ([]*store.Trial, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query trials: %v", saboteur.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	var trials []*store.Trial
	for rows.Next() {
		trial := &store.Trial{}
		var labels []byte

		err := rows.Scan(
			&trial.ID, &trial.TrialID, &trial.CampaignID, &trial.ScenarioID, &trial.Seed, &trial.Failure, &trial.Scope, &trial.Mutation,
			&trial.OrderIndex, &trial.ResolverIndex, &trial.Expected, &trial.Actual, &trial.Status, &trial.ErrorMsg,
			&trial.Attempts, &trial.MaxAttempts, &labels, &trial.Version,
			&trial.CreatedAt, &trial.UpdatedAt, &trial.ExecutedAt, &trial.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scan trial: %v", saboteur.ErrStoreOperationFailed, err)
		}

		if err := json.Unmarshal(labels, &trial.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal labels: %w", err)
		}

		trials = append(trials, trial)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate trials: %v", saboteur.ErrStoreOperationFailed, err)
	}

	return trials, nil
}

// ============================================================================
// Campaign Queries
// ============================================================================

// ListTrials lists trials with optional filters.
func (s *MySQLStore) ListTrials(ctx context.Context, filter *store.TrialFilter) ([]*store.Trial, int64, error) {
	// Build WHERE clause
	var conditions []string
	var args []interface{}

	if filter.CampaignID != "" {
		conditions = append(conditions, "campaign_id = ?")
		args = append(args, filter.CampaignID)
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	if filter.Failure != "" {
		conditions = append(conditions, "failure = ?")
		args = append(args, filter.Failure)
	}

	if !filter.StartTime.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.StartTime)
	}

	if !filter.EndTime.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.EndTime)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM saboteur_trials %s", whereClause)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count trials: %v", saboteur.ErrStoreOperationFailed, err)
	}

	// Query with pagination
	query := fmt.Sprintf(`
		SELECT id, trial_id, campaign_id, scenario_id, seed, failure, scope, mutation,
			order_index, resolver_index, expected, actual, status, error_msg,
			attempts, max_attempts, labels, version,
			created_at, updated_at, executed_at, completed_at
		FROM saboteur_trials
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, whereClause)

	args = append(args, filter.Limit, filter.Offset)
	trials, err := s.queryTrials(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return trials, total, nil
}

// CountTrialsByStatus counts a campaign's trials grouped by status.
func (s *MySQLStore) CountTrialsByStatus(ctx context.Context, campaignID string) (map[saboteur.TrialStatus]int64, error) {
	query := `
		SELECT status, COUNT(*) FROM saboteur_trials
		WHERE campaign_id = ?
		GROUP BY status
	`

	rows, err := s.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("%w: count trials by status: %v", saboteur.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	counts := make(map[saboteur.TrialStatus]int64)
	for rows.Next() {
		var status saboteur.TrialStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("%w: scan status count: %v", saboteur.ErrStoreOperationFailed, err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate status counts: %v", saboteur.ErrStoreOperationFailed, err)
	}

	return counts, nil
}

// ============================================================================
// Dedupe Operations
// ============================================================================

// CheckSeen checks if an identical trial was already executed.
func (s *MySQLStore) CheckSeen(ctx context.Context, key string) (bool, []byte, error) {
	query := `
		SELECT result FROM saboteur_seen
		WHERE seen_key = ? AND expires_at > ?
	`

	var result []byte
	err := s.db.QueryRowContext(ctx, query, key, time.Now()).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("%w: check seen: %v", saboteur.ErrDedupeCheckFailed, err)
	}

	return true, result, nil
}

// MarkSeen marks a trial as executed with its result.
func (s *MySQLStore) MarkSeen(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	query := `
		INSERT INTO saboteur_seen (seen_key, result, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE result = VALUES(result), expires_at = VALUES(expires_at)
	`

	now := time.Now()
	expiresAt := now.Add(ttl)

	_, err := s.db.ExecContext(ctx, query, key, result, now, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: mark seen: %v", saboteur.ErrStoreOperationFailed, err)
	}

	return nil
}

// DeleteExpiredSeen removes expired dedupe records.
func (s *MySQLStore) DeleteExpiredSeen(ctx context.Context) (int64, error) {
	query := `DELETE FROM saboteur_seen WHERE expires_at < ?`

	result, err := s.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired seen: %v", saboteur.ErrStoreOperationFailed, err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return count, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

// isDuplicateKeyError checks if the error is a MySQL duplicate key error.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	// MySQL error code 1062 is for duplicate entry
	return strings.Contains(err.Error(), "Duplicate entry") ||
		strings.Contains(err.Error(), "1062")
}

// Ensure MySQLStore implements store.Store interface.
var _ store.Store = (*MySQLStore)(nil)
