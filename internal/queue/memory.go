package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pipeline/internal/domain"
)

// Memory is an in-process queue with the same retry semantics as the
// Postgres implementation. It backs worker tests and local development
// without a database.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*memoryJob
}

type memoryJob struct {
	job            Job
	status         string
	initialBackoff time.Duration
	runAt          time.Time
	lastError      string
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*memoryJob)}
}

// Enqueue adds a job to channel.
func (m *Memory) Enqueue(ctx context.Context, channel string, kind domain.JobKind, payload any, opts Options) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode job payload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.jobs[id] = &memoryJob{
		job: Job{
			ID:          id,
			Channel:     channel,
			Kind:        kind,
			Payload:     body,
			MaxAttempts: opts.maxAttempts(),
			Priority:    opts.Priority,
			EnqueuedAt:  time.Now(),
		},
		status:         jobStatusQueued,
		initialBackoff: opts.initialBackoff(),
		runAt:          time.Now().Add(opts.Delay),
	}
	return id, nil
}

// Consume drains channel until ctx is cancelled. Enqueue delays are
// honored; retries are redelivered immediately rather than after their
// backoff so tests stay fast, the backoff schedule itself is covered by
// Backoff and the Postgres queue.
func (m *Memory) Consume(ctx context.Context, channel string, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n := m.Drain(ctx, channel, handler); n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// Drain synchronously processes every deliverable job on channel, including
// retries triggered by the processed jobs, and reports how many deliveries
// were made.
func (m *Memory) Drain(ctx context.Context, channel string, handler Handler) int {
	delivered := 0
	for {
		mj := m.claim(channel)
		if mj == nil {
			return delivered
		}
		delivered++
		m.settle(mj, handler(ctx, mj.job))
	}
}

// ForceFail pushes a job terminal.
func (m *Memory) ForceFail(ctx context.Context, jobID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mj, ok := m.jobs[jobID]
	if !ok || (mj.status != jobStatusQueued && mj.status != jobStatusRunning) {
		return domain.ErrNotFound
	}
	mj.status = jobStatusFailed
	mj.lastError = reason
	return nil
}

// Status reports the queue-side status of a job.
func (m *Memory) Status(jobID string) (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mj, ok := m.jobs[jobID]
	if !ok {
		return "", ""
	}
	return mj.status, mj.lastError
}

func (m *Memory) claim(channel string) *memoryJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var candidates []*memoryJob
	for _, mj := range m.jobs {
		if mj.job.Channel == channel && mj.status == jobStatusQueued && !mj.runAt.After(now) {
			candidates = append(candidates, mj)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].job.Priority != candidates[k].job.Priority {
			return candidates[i].job.Priority > candidates[k].job.Priority
		}
		return candidates[i].job.EnqueuedAt.Before(candidates[k].job.EnqueuedAt)
	})
	mj := candidates[0]
	mj.status = jobStatusRunning
	mj.job.Attempt++
	return mj
}

func (m *Memory) settle(mj *memoryJob, handlerErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mj.status == jobStatusFailed {
		// ForceFail won while the handler was running.
		return
	}
	if handlerErr == nil {
		mj.status = jobStatusSucceeded
		mj.lastError = ""
		return
	}
	mj.lastError = handlerErr.Error()
	if domain.Retryable(handlerErr) && mj.job.Attempt < mj.job.MaxAttempts {
		// Immediate redelivery; see the Consume doc comment.
		mj.status = jobStatusQueued
		mj.runAt = time.Now()
		return
	}
	mj.status = jobStatusFailed
}

var _ Queue = (*Memory)(nil)
