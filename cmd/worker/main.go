package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"pipeline/internal/adapter/repo"
	"pipeline/internal/domain"
	"pipeline/internal/infra"
	"pipeline/internal/outbox"
	"pipeline/internal/providers/generation"
	"pipeline/internal/providers/prompt"
	"pipeline/internal/providers/render"
	"pipeline/internal/queue"
	"pipeline/internal/storage"
	"pipeline/internal/webhook"
	"pipeline/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "pipeline-worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	store := repo.NewStore(pool)
	locks := infra.NewEntityLock(pool)
	jobQueue := queue.NewPostgresQueue(pool, logger, cfg.JobPollInterval)

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	genClient, err := generation.NewClient(generation.Options{
		APIKey:  cfg.GenerationAPIKey,
		BaseURL: cfg.GenerationBaseURL,
		Model:   cfg.GenerationModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure generation client")
	}
	if cfg.GenerationAPIKey == "" {
		logger.Warn().Msg("worker: generation api key missing, using synthetic asset generation")
	}

	webhooks := webhook.NewClient(cfg.WebhookSecret, nil, logger)

	dispatcher := &worker.Dispatcher{
		Design: worker.NewDesignWorker(
			store,
			genClient,
			genClient,
			generation.NewPNGNormalizer(),
			fileStore,
			prompt.NewStaticLibrary(),
			locks,
			logger,
			cfg.DesignTimeout,
		),
		Render: worker.NewRenderWorker(
			store,
			render.NewSyntheticEngine(),
			render.NewArchiveExporter(fileStore),
			fileStore,
			logger,
			cfg.Render2DTimeout,
			cfg.Render3DTimeout,
		),
		Production: worker.NewProductionWorker(
			store,
			fileStore,
			fileStore,
			webhooks,
			locks,
			logger,
			cfg.ProductionTimeout,
			cfg.TrackStageDelay,
		),
	}

	sinks := []outbox.Sink{outbox.SinkFunc(worker.NewOrderLifecycle(store, logger).React)}
	if cfg.EventsEndpoint != "" {
		sinks = append(sinks, outbox.NewHTTPSink(cfg.EventsEndpoint, nil))
	} else {
		sinks = append(sinks, outbox.LogSink{Logger: logger})
	}
	publisher := outbox.NewPublisher(store, logger, sinks...)
	maintenance := outbox.NewMaintenance(publisher, cfg.OutboxRetention, logger)

	scheduler := outbox.NewScheduler(jobQueue, cfg.OutboxInterval, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start outbox scheduler")
	}
	defer scheduler.Stop()

	opsServer := infra.NewHTTPServer(cfg, opsRouter(pool, fileStore))
	go func() {
		if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("worker: ops server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = opsServer.Shutdown(shutdownCtx)
	}()

	channels := []string{
		domain.ChannelDesign,
		domain.ChannelRender,
		domain.ChannelProduction,
		domain.ChannelOutbox,
	}
	for _, channel := range channels {
		handler := queue.Handler(dispatcher.Handle)
		if channel == domain.ChannelOutbox {
			handler = maintenance.Handle
		}
		for i := 0; i < cfg.ConsumersPerChan; i++ {
			go func(channel string, handler queue.Handler) {
				if err := jobQueue.Consume(ctx, channel, handler); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Str("channel", channel).Msg("worker: consumer stopped with error")
				}
			}(channel, handler)
		}
	}

	logger.Info().
		Int("consumers_per_channel", cfg.ConsumersPerChan).
		Str("port", cfg.Port).
		Msg("worker: started")
	<-ctx.Done()
	logger.Info().Msg("worker: stopped")
}

func opsRouter(pinger interface {
	Ping(ctx context.Context) error
}, fileStore *storage.FileStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(fileStore.BasePath()))))

	return r
}
