package queue

import (
	"context"
	"encoding/json"
	"time"

	"pipeline/internal/domain"
)

// Default retry policy applied when Enqueue options leave it unset: three
// delivery attempts with exponential backoff starting at two seconds.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 2 * time.Second
)

// Job is one delivery of queued work. The payload is immutable; a retried
// job is redelivered with the same payload and an incremented attempt.
type Job struct {
	ID          string
	Channel     string
	Kind        domain.JobKind
	Payload     json.RawMessage
	Attempt     int
	MaxAttempts int
	Priority    int
	EnqueuedAt  time.Time
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Handler processes one job delivery. A nil return settles the job; a
// retryable error (per domain.Retryable) schedules a redelivery until the
// attempt budget is spent, anything else fails the job terminally.
type Handler func(ctx context.Context, job Job) error

// Options tunes a single enqueue.
type Options struct {
	Priority       int
	MaxAttempts    int
	Delay          time.Duration
	InitialBackoff time.Duration
}

func (o Options) maxAttempts() int {
	if o.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return o.MaxAttempts
}

func (o Options) initialBackoff() time.Duration {
	if o.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return o.InitialBackoff
}

// Queue is the job transport consumed by the pipeline workers. Channels are
// independent FIFO streams; no ordering is guaranteed across channels.
type Queue interface {
	Enqueue(ctx context.Context, channel string, kind domain.JobKind, payload any, opts Options) (string, error)
	// Consume blocks, delivering jobs from channel to handler until ctx is
	// cancelled.
	Consume(ctx context.Context, channel string, handler Handler) error
	// ForceFail pushes a job into the failed terminal state regardless of
	// its remaining attempts.
	ForceFail(ctx context.Context, jobID string, reason string) error
}

// Backoff returns the redelivery delay before the given attempt, doubling
// from the initial delay: 2s, 4s, 8s, ...
func Backoff(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return initial << (attempt - 1)
}
