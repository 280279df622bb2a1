package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipeline/internal/domain"
)

// ProgressRepositoryPG implements domain.ProgressRepository. One row per
// job, overwritten on every transition.
type ProgressRepositoryPG struct {
	db DBTX
}

// Upsert writes the current progress row for a job.
func (r *ProgressRepositoryPG) Upsert(ctx context.Context, record domain.ProgressRecord) error {
	query := `
INSERT INTO job_progress (job_id, stage, percentage, message, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (job_id) DO UPDATE
SET stage = EXCLUDED.stage,
    percentage = EXCLUDED.percentage,
    message = EXCLUDED.message,
    updated_at = EXCLUDED.updated_at;
`
	_, err := r.db.Exec(ctx, query,
		record.JobID,
		record.Stage,
		record.Percentage,
		record.Message,
		record.UpdatedAt,
	)
	return err
}

// Get returns the current progress row for a job.
func (r *ProgressRepositoryPG) Get(ctx context.Context, jobID string) (*domain.ProgressRecord, error) {
	query := `
SELECT job_id, stage, percentage, message, updated_at
FROM job_progress
WHERE job_id = $1;
`
	row := r.db.QueryRow(ctx, query, jobID)
	var rec domain.ProgressRecord
	if err := row.Scan(&rec.JobID, &rec.Stage, &rec.Percentage, &rec.Message, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
