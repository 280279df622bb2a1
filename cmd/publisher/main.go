// Command publisher runs the outbox drain loop as a standalone process for
// deployments that separate event publication from job execution. The worker
// binary schedules drains through the queue; running this instead (or as
// well) is safe because every sink is at-least-once.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"pipeline/internal/adapter/repo"
	"pipeline/internal/infra"
	"pipeline/internal/outbox"
	"pipeline/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "pipeline-publisher")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher: db connection failed")
	}
	defer pool.Close()

	store := repo.NewStore(pool)

	sinks := []outbox.Sink{outbox.SinkFunc(worker.NewOrderLifecycle(store, logger).React)}
	if cfg.EventsEndpoint != "" {
		sinks = append(sinks, outbox.NewHTTPSink(cfg.EventsEndpoint, nil))
	} else {
		sinks = append(sinks, outbox.LogSink{Logger: logger})
	}
	publisher := outbox.NewPublisher(store, logger, sinks...)

	interval := cfg.OutboxInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), func() {
		if _, err := publisher.Drain(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("publisher: drain failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("publisher: failed to schedule drain")
	}
	if _, err := c.AddFunc("0 3 * * *", func() {
		if _, err := publisher.Prune(ctx, cfg.OutboxRetention); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("publisher: prune failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("publisher: failed to schedule prune")
	}
	c.Start()

	logger.Info().Str("drain_every", interval.String()).Msg("publisher: started")
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("publisher: stopped")
}
