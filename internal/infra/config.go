package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents pipeline configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	StoragePath    string
	StorageBaseURL string

	GenerationBaseURL string
	GenerationAPIKey  string
	GenerationModel   string

	EventsEndpoint string
	WebhookSecret  string

	DesignTimeout     time.Duration
	Render2DTimeout   time.Duration
	Render3DTimeout   time.Duration
	ProductionTimeout time.Duration

	JobPollInterval  time.Duration
	OutboxInterval   time.Duration
	OutboxRetention  time.Duration
	TrackStageDelay  time.Duration
	ConsumersPerChan int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8081"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8081/static"),

		GenerationBaseURL: getEnv("GENERATION_BASE_URL", "https://api.generation.local/v1"),
		GenerationAPIKey:  os.Getenv("GENERATION_API_KEY"),
		GenerationModel:   getEnv("GENERATION_MODEL", "studio-image-2"),

		EventsEndpoint: os.Getenv("EVENTS_ENDPOINT"),
		WebhookSecret:  os.Getenv("FACTORY_WEBHOOK_SECRET"),

		DesignTimeout:     time.Second * time.Duration(getEnvInt("DESIGN_TIMEOUT_SECONDS", 30)),
		Render2DTimeout:   time.Second * time.Duration(getEnvInt("RENDER_2D_TIMEOUT_SECONDS", 60)),
		Render3DTimeout:   time.Second * time.Duration(getEnvInt("RENDER_3D_TIMEOUT_SECONDS", 180)),
		ProductionTimeout: time.Second * time.Duration(getEnvInt("PRODUCTION_TIMEOUT_SECONDS", 120)),

		JobPollInterval:  time.Second * time.Duration(getEnvInt("JOB_POLL_INTERVAL_SECONDS", 2)),
		OutboxInterval:   time.Second * time.Duration(getEnvInt("OUTBOX_INTERVAL_SECONDS", 10)),
		OutboxRetention:  24 * time.Hour * time.Duration(getEnvInt("OUTBOX_RETENTION_DAYS", 30)),
		TrackStageDelay:  time.Second * time.Duration(getEnvInt("TRACK_STAGE_DELAY_SECONDS", 5)),
		ConsumersPerChan: getEnvInt("CONSUMERS_PER_CHANNEL", 2),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
