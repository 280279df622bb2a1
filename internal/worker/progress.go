package worker

import (
	"context"
	"time"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
)

// Render stage names with their persisted percentages. Percentages only
// move forward within one render; the error stage is the single exception
// and resets to zero.
const (
	StageInitialization   = "initialization"
	StageScenePreparation = "scene-preparation"
	StageRendering        = "rendering"
	StagePostProcessing   = "post-processing"
	StageFinalization     = "finalization"
	StageCompleted        = "completed"
	StageError            = "error"
)

const (
	pctInitialization   = 10
	pctScenePreparation = 25
	pctRenderingStart   = 30
	pctRenderingEnd     = 50
	pctPostProcessing   = 80
	pctFinalization     = 90
	pctCompleted        = 100
)

// progressTracker persists monotonically increasing progress for one job.
// Upserts are advisory: a persistence failure is logged and never fails the
// job that is reporting progress.
type progressTracker struct {
	repo    domain.ProgressRepository
	logger  infra.Logger
	jobID   string
	current int
}

func newProgressTracker(repo domain.ProgressRepository, logger infra.Logger, jobID string) *progressTracker {
	return &progressTracker{repo: repo, logger: logger, jobID: jobID}
}

func (t *progressTracker) set(ctx context.Context, stage string, percentage int, message string) {
	if stage != StageError {
		if percentage < t.current {
			return
		}
		t.current = percentage
	} else {
		percentage = 0
	}
	err := t.repo.Upsert(ctx, domain.ProgressRecord{
		JobID:      t.jobID,
		Stage:      stage,
		Percentage: percentage,
		Message:    message,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.logger.Warn().Err(err).
			Str("job_id", t.jobID).
			Str("stage", stage).
			Msg("worker: progress upsert failed")
	}
}
