package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
	"pipeline/internal/queue"
)

// Scheduler enqueues the periodic outbox maintenance jobs: a drain every
// publish interval and a nightly prune. The jobs ride the normal queue so
// the outbox channel competes for workers like any other work, and a crash
// mid-drain simply retries.
type Scheduler struct {
	queue    queue.Queue
	interval time.Duration
	logger   infra.Logger
	cron     *cron.Cron
}

// NewScheduler wires an outbox scheduler. Interval defaults to ten seconds.
func NewScheduler(q queue.Queue, interval time.Duration, logger infra.Logger) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{
		queue:    q,
		interval: interval,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start registers the cron entries and begins scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	drainSpec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(drainSpec, func() { s.enqueue(ctx, domain.JobKindOutboxDrain) }); err != nil {
		return fmt.Errorf("schedule outbox drain: %w", err)
	}
	if _, err := s.cron.AddFunc("0 3 * * *", func() { s.enqueue(ctx, domain.JobKindOutboxPrune) }); err != nil {
		return fmt.Errorf("schedule outbox prune: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("drain_every", s.interval.String()).Msg("outbox: scheduler started")
	return nil
}

// Stop halts scheduling and waits for in-flight entries.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) enqueue(ctx context.Context, kind domain.JobKind) {
	// Maintenance jobs are cheap to re-run, so a single attempt is enough;
	// the next tick covers any failure.
	_, err := s.queue.Enqueue(ctx, domain.ChannelOutbox, kind, struct{}{}, queue.Options{MaxAttempts: 1})
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("outbox: enqueue maintenance job failed")
	}
}

// Maintenance dispatches outbox-channel jobs to the publisher.
type Maintenance struct {
	publisher *Publisher
	retention time.Duration
	logger    infra.Logger
}

// NewMaintenance wires the outbox-channel job handler. Retention defaults
// to thirty days.
func NewMaintenance(publisher *Publisher, retention time.Duration, logger infra.Logger) *Maintenance {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Maintenance{publisher: publisher, retention: retention, logger: logger}
}

// Handle implements queue.Handler for the outbox channel.
func (m *Maintenance) Handle(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case domain.JobKindOutboxDrain:
		published, err := m.publisher.Drain(ctx)
		if err != nil {
			return err
		}
		if published > 0 {
			m.logger.Debug().Int("published", published).Msg("outbox: drain tick")
		}
		return nil
	case domain.JobKindOutboxPrune:
		_, err := m.publisher.Prune(ctx, m.retention)
		return err
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownJobKind, job.Kind)
	}
}
