package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
)

const maxErrorMessageLen = 2000

// StartSyncRun records a new run with status RUNNING and returns its id.
func (s *Store) StartSyncRun(ctx context.Context, windowStart, windowEnd time.Time) (string, error) {
	runID := uuid.NewString()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_runs (sync_run_id, started_ts, window_start, window_end, status)
		VALUES ($1, $2, $3, $4, 'RUNNING')
	`, runID, time.Now().UTC(), windowStart, windowEnd)
	if err != nil {
		return "", fmt.Errorf("start sync run: %w", err)
	}
	return runID, nil
}

// MarkSyncRunSucceeded finishes a run with status SUCCESS and its counts.
func (s *Store) MarkSyncRunSucceeded(ctx context.Context, runID string, counts domain.RunCounts) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_runs
		SET status = 'SUCCESS',
		    finished_ts = $2,
		    fetched = $3,
		    normalized = $4,
		    skipped = $5,
		    inserted = $6,
		    duplicates = $7,
		    failed = $8
		WHERE sync_run_id = $1
	`, runID, time.Now().UTC(),
		counts.Fetched, counts.Normalized, counts.Skipped,
		counts.Inserted, counts.Duplicates, counts.Failed)
	if err != nil {
		return fmt.Errorf("mark sync run succeeded: %w", err)
	}
	return nil
}

// MarkSyncRunFailed finishes a run with status FAILED and the error message,
// truncated to keep the column bounded.
func (s *Store) MarkSyncRunFailed(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
		if len(msg) > maxErrorMessageLen {
			msg = msg[:maxErrorMessageLen]
		}
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE sync_runs
		SET status = 'FAILED',
		    finished_ts = $2,
		    error_message = $3
		WHERE sync_run_id = $1
	`, runID, time.Now().UTC(), msg)
	if err != nil {
		return fmt.Errorf("mark sync run failed: %w", err)
	}
	return nil
}
