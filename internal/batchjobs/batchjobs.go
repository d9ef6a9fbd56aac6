// Package batchjobs is the registry of outstanding and completed vendor
// batch submissions (index and check/judge batches), plus the per-item
// snapshot table a judge batch needs to reattach a verdict to the right
// enrichment after results return.
package batchjobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/models"
	"github.com/jmoiron/sqlx"
)

// Store wraps batch_jobs and check_batch_items.
type Store struct {
	db *sqlx.DB
}

// New wraps db for batch job registry operations.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Insert records a freshly submitted batch.
func (s *Store) Insert(ctx context.Context, job models.BatchJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (batch_id, type, status, request_count, succeeded_count, failed_count, submitted_at, completed_at, model_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.BatchID, string(job.Type), string(job.Status), job.RequestCount, job.SucceededCount, job.FailedCount,
		job.SubmittedAt.UTC().Format(time.RFC3339), formatNullableTime(job.CompletedAt), job.ModelUsed)
	if err != nil {
		return fmt.Errorf("insert batch job %s: %w", job.BatchID, err)
	}
	return nil
}

// UpdateStatus updates a batch job's lifecycle status, counts, and
// completion timestamp.
func (s *Store) UpdateStatus(ctx context.Context, batchID string, status models.BatchJobStatus, succeeded, failed int, completedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs
		SET status = ?, succeeded_count = ?, failed_count = ?, completed_at = ?
		WHERE batch_id = ?
	`, string(status), succeeded, failed, formatNullableTime(completedAt), batchID)
	if err != nil {
		return fmt.Errorf("update batch job %s: %w", batchID, err)
	}
	return nil
}

// GetByID returns a single batch job, or nil if none exists with that id.
func (s *Store) GetByID(ctx context.Context, batchID string) (*models.BatchJob, error) {
	var job models.BatchJob
	err := s.db.GetContext(ctx, &job, `
		SELECT batch_id, type, status, request_count, succeeded_count, failed_count, submitted_at, completed_at, model_used
		FROM batch_jobs WHERE batch_id = ?
	`, batchID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get batch job %s: %w", batchID, err)
	}
	return &job, nil
}

// GetAll returns every batch job, most recently submitted first.
func (s *Store) GetAll(ctx context.Context) ([]models.BatchJob, error) {
	var jobs []models.BatchJob
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT batch_id, type, status, request_count, succeeded_count, failed_count, submitted_at, completed_at, model_used
		FROM batch_jobs ORDER BY submitted_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("get all batch jobs: %w", err)
	}
	return jobs, nil
}

// GetPendingByType returns the most recent non-terminal job of the given
// type, or nil if none is pending.
func (s *Store) GetPendingByType(ctx context.Context, jobType models.BatchJobType) (*models.BatchJob, error) {
	var job models.BatchJob
	err := s.db.GetContext(ctx, &job, `
		SELECT batch_id, type, status, request_count, succeeded_count, failed_count, submitted_at, completed_at, model_used
		FROM batch_jobs
		WHERE type = ? AND status NOT IN (?, ?)
		ORDER BY submitted_at DESC
		LIMIT 1
	`, string(jobType), string(models.BatchStatusEnded), string(models.BatchStatusFailed))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending batch job of type %s: %w", jobType, err)
	}
	return &job, nil
}

// InsertItems snapshots the (classification, summary) under evaluation
// for each commit in a judge batch at submission time.
func (s *Store) InsertItems(ctx context.Context, items []models.CheckBatchItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert_items transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO check_batch_items (batch_id, hash, classification, summary)
			VALUES (?, ?, ?, ?)
		`, item.BatchID, item.Hash, item.Classification, item.Summary); err != nil {
			return fmt.Errorf("insert check batch item %s/%s: %w", item.BatchID, item.Hash, err)
		}
	}
	return tx.Commit()
}

// GetItems returns every snapshotted item for a judge batch.
func (s *Store) GetItems(ctx context.Context, batchID string) ([]models.CheckBatchItem, error) {
	var items []models.CheckBatchItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT batch_id, hash, classification, summary FROM check_batch_items WHERE batch_id = ?
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("get check batch items %s: %w", batchID, err)
	}
	return items, nil
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
