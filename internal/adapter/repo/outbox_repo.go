package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pipeline/internal/domain"
)

// OutboxRepositoryPG implements domain.OutboxRepository. Record is always
// called through a transaction-scoped Store so the event and the state
// change it reports commit together.
type OutboxRepositoryPG struct {
	db DBTX
}

// Record inserts a pending event.
func (r *OutboxRepositoryPG) Record(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}
	query := `
INSERT INTO outbox_events (id, topic, payload, status, attempts, next_attempt_at, created_at)
VALUES ($1, $2, $3, 'pending', 0, NOW(), NOW());
`
	_, err = r.db.Exec(ctx, query, uuid.NewString(), topic, body)
	return err
}

// ListPending returns due pending events in creation order.
func (r *OutboxRepositoryPG) ListPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	query := `
SELECT id, topic, payload, status, attempts, next_attempt_at, last_error, created_at, published_at
FROM outbox_events
WHERE status = 'pending' AND next_attempt_at <= $1
ORDER BY created_at ASC
LIMIT $2;
`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var ev domain.OutboxEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.Topic,
			&ev.Payload,
			&ev.Status,
			&ev.Attempts,
			&ev.NextAttemptAt,
			&ev.LastError,
			&ev.CreatedAt,
			&ev.PublishedAt,
		); err != nil {
			return nil, err
		}
		ev.Payload = append(json.RawMessage(nil), ev.Payload...)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkPublished settles an event after successful delivery.
func (r *OutboxRepositoryPG) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	query := `
UPDATE outbox_events SET status = 'published', published_at = $2, last_error = '' WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, publishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed reschedules a failed delivery attempt.
func (r *OutboxRepositoryPG) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	query := `
UPDATE outbox_events SET attempts = $2, next_attempt_at = $3, last_error = $4 WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, attempts, nextAttemptAt, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDead moves an event to the dead-letter state after its attempt
// budget is exhausted.
func (r *OutboxRepositoryPG) MarkDead(ctx context.Context, id string, lastError string) error {
	query := `
UPDATE outbox_events SET status = 'dead', last_error = $2 WHERE id = $1;
`
	tag, err := r.db.Exec(ctx, query, id, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeletePublishedBefore prunes delivered events older than cutoff.
func (r *OutboxRepositoryPG) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
DELETE FROM outbox_events WHERE status = 'published' AND published_at < $1;
`
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
