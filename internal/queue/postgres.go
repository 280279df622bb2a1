package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
)

const (
	jobStatusQueued    = "QUEUED"
	jobStatusRunning   = "RUNNING"
	jobStatusSucceeded = "SUCCEEDED"
	jobStatusFailed    = "FAILED"
)

var errNoJobAvailable = errors.New("no job available")

// PostgresQueue delivers jobs through a Postgres table. Claims use
// FOR UPDATE SKIP LOCKED so concurrent consumers never double-deliver one
// job; redelivery is scheduled by pushing run_at into the future.
type PostgresQueue struct {
	pool         *pgxpool.Pool
	logger       infra.Logger
	pollInterval time.Duration
}

// NewPostgresQueue creates a queue on the shared pool.
func NewPostgresQueue(pool *pgxpool.Pool, logger infra.Logger, pollInterval time.Duration) *PostgresQueue {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &PostgresQueue{pool: pool, logger: logger, pollInterval: pollInterval}
}

// Enqueue inserts a job for delivery on channel.
func (q *PostgresQueue) Enqueue(ctx context.Context, channel string, kind domain.JobKind, payload any, opts Options) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}
	id := uuid.NewString()
	_, err = q.pool.Exec(ctx, `
INSERT INTO queue_jobs (id, channel, kind, payload, status, attempt, max_attempts, initial_backoff_ms, priority, run_at)
VALUES ($1, $2, $3, $4, 'QUEUED', 0, $5, $6, $7, now() + $8);
`, id, channel, string(kind), body, opts.maxAttempts(), opts.initialBackoff().Milliseconds(), opts.Priority, opts.Delay)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return id, nil
}

// Consume polls channel and hands claimed jobs to handler until ctx is
// cancelled.
func (q *PostgresQueue) Consume(ctx context.Context, channel string, handler Handler) error {
	q.logger.Info().Str("channel", channel).Msg("queue: consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, backoff, err := q.claim(ctx, channel)
		if err != nil {
			if !errors.Is(err, errNoJobAvailable) {
				q.logger.Error().Err(err).Str("channel", channel).Msg("queue: claim failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.pollInterval):
			}
			continue
		}

		q.settle(ctx, job, backoff, handler(ctx, job))
	}
}

// ForceFail pushes a job terminal regardless of remaining attempts. Used by
// operators and by timeout enforcement on the enqueueing side.
func (q *PostgresQueue) ForceFail(ctx context.Context, jobID string, reason string) error {
	tag, err := q.pool.Exec(ctx, `
UPDATE queue_jobs
SET status = 'FAILED', last_error = $2, updated_at = now()
WHERE id = $1 AND status IN ('QUEUED', 'RUNNING');
`, jobID, reason)
	if err != nil {
		return fmt.Errorf("force fail job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *PostgresQueue) claim(ctx context.Context, channel string) (Job, time.Duration, error) {
	row := q.pool.QueryRow(ctx, `
WITH next_job AS (
    SELECT id
    FROM queue_jobs
    WHERE channel = $1 AND status = 'QUEUED' AND run_at <= now()
    ORDER BY priority DESC, created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE queue_jobs
    SET status = 'RUNNING', attempt = attempt + 1, updated_at = now()
    WHERE id IN (SELECT id FROM next_job)
    RETURNING id, channel, kind, payload, attempt, max_attempts, initial_backoff_ms, priority, created_at
)
SELECT * FROM claimed;
`, channel)

	var j Job
	var kind string
	var backoffMS int64
	if err := row.Scan(&j.ID, &j.Channel, &kind, &j.Payload, &j.Attempt, &j.MaxAttempts, &backoffMS, &j.Priority, &j.EnqueuedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, 0, errNoJobAvailable
		}
		return Job{}, 0, err
	}
	j.Kind = domain.JobKind(kind)
	// Detach payload bytes from the scan buffer.
	j.Payload = append(json.RawMessage(nil), j.Payload...)
	return j, time.Duration(backoffMS) * time.Millisecond, nil
}

func (q *PostgresQueue) settle(ctx context.Context, job Job, initialBackoff time.Duration, handlerErr error) {
	if handlerErr == nil {
		if _, err := q.pool.Exec(ctx, `
UPDATE queue_jobs SET status = 'SUCCEEDED', last_error = '', updated_at = now() WHERE id = $1;
`, job.ID); err != nil {
			q.logger.Error().Err(err).Str("job_id", job.ID).Msg("queue: settle succeeded failed")
		}
		return
	}

	if domain.Retryable(handlerErr) && job.Attempt < job.MaxAttempts {
		delay := Backoff(initialBackoff, job.Attempt)
		q.logger.Warn().Err(handlerErr).
			Str("job_id", job.ID).
			Int("attempt", job.Attempt).
			Dur("backoff", delay).
			Msg("queue: job failed, scheduling retry")
		if _, err := q.pool.Exec(ctx, `
UPDATE queue_jobs SET status = 'QUEUED', last_error = $2, run_at = now() + $3, updated_at = now() WHERE id = $1;
`, job.ID, handlerErr.Error(), delay); err != nil {
			q.logger.Error().Err(err).Str("job_id", job.ID).Msg("queue: reschedule failed")
		}
		return
	}

	q.logger.Error().Err(handlerErr).
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int("attempt", job.Attempt).
		Msg("queue: job failed terminally")
	if _, err := q.pool.Exec(ctx, `
UPDATE queue_jobs SET status = 'FAILED', last_error = $2, updated_at = now() WHERE id = $1;
`, job.ID, handlerErr.Error()); err != nil {
		q.logger.Error().Err(err).Str("job_id", job.ID).Msg("queue: settle failed failed")
	}
}

var _ Queue = (*PostgresQueue)(nil)
