// Command migrate creates the pipeline schema. It is idempotent; every
// statement uses IF NOT EXISTS so re-running against a live database is
// safe.
package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS brands (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		sku             TEXT NOT NULL DEFAULT '',
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		model_3d_key    TEXT NOT NULL DEFAULT '',
		base_asset_keys TEXT[] NOT NULL DEFAULT '{}',
		materials       TEXT[] NOT NULL DEFAULT '{}',
		finishes        TEXT[] NOT NULL DEFAULT '{}',
		production_days INTEGER NOT NULL DEFAULT 10,
		rules           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS designs (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL DEFAULT '',
		brand_id      TEXT NOT NULL REFERENCES brands(id),
		product_id    TEXT NOT NULL REFERENCES products(id),
		prompt        TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'DRAFT',
		options       JSONB NOT NULL DEFAULT '{}'::jsonb,
		metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
		error_message TEXT NOT NULL DEFAULT '',
		failed_at     TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id          TEXT PRIMARY KEY,
		design_id   TEXT NOT NULL REFERENCES designs(id),
		kind        TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		url         TEXT NOT NULL DEFAULT '',
		format      TEXT NOT NULL DEFAULT '',
		width       INTEGER NOT NULL DEFAULT 0,
		height      INTEGER NOT NULL DEFAULT 0,
		bytes       BIGINT NOT NULL DEFAULT 0,
		metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_design ON assets (design_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS renders (
		id            TEXT PRIMARY KEY,
		design_id     TEXT NOT NULL REFERENCES designs(id),
		product_id    TEXT NOT NULL REFERENCES products(id),
		type          TEXT NOT NULL DEFAULT '2d',
		status        TEXT NOT NULL DEFAULT 'QUEUED',
		options       JSONB NOT NULL DEFAULT '{}'::jsonb,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS render_results (
		id            BIGSERIAL PRIMARY KEY,
		render_id     TEXT NOT NULL REFERENCES renders(id),
		status        TEXT NOT NULL,
		storage_key   TEXT NOT NULL DEFAULT '',
		url           TEXT NOT NULL DEFAULT '',
		width         INTEGER NOT NULL DEFAULT 0,
		height        INTEGER NOT NULL DEFAULT 0,
		format        TEXT NOT NULL DEFAULT '',
		duration_ms   BIGINT NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS export_results (
		id          BIGSERIAL PRIMARY KEY,
		render_id   TEXT NOT NULL,
		design_id   TEXT NOT NULL DEFAULT '',
		product_id  TEXT NOT NULL DEFAULT '',
		format      TEXT NOT NULL,
		storage_key TEXT NOT NULL,
		url         TEXT NOT NULL DEFAULT '',
		bytes       BIGINT NOT NULL DEFAULT 0,
		asset_count INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id               TEXT PRIMARY KEY,
		brand_id         TEXT NOT NULL REFERENCES brands(id),
		design_id        TEXT NOT NULL REFERENCES designs(id),
		product_id       TEXT NOT NULL REFERENCES products(id),
		quantity         INTEGER NOT NULL DEFAULT 1,
		status           TEXT NOT NULL DEFAULT 'PAID',
		bundle_url       TEXT NOT NULL DEFAULT '',
		instructions_url TEXT NOT NULL DEFAULT '',
		error_message    TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS production_bundles (
		id           BIGSERIAL PRIMARY KEY,
		order_id     TEXT NOT NULL REFERENCES orders(id),
		storage_key  TEXT NOT NULL,
		url          TEXT NOT NULL DEFAULT '',
		files        JSONB NOT NULL DEFAULT '[]'::jsonb,
		instructions JSONB NOT NULL DEFAULT '{}'::jsonb,
		metadata     JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS quality_reports (
		id            BIGSERIAL PRIMARY KEY,
		order_id      TEXT NOT NULL REFERENCES orders(id),
		overall_score DOUBLE PRECISION NOT NULL,
		scores        JSONB NOT NULL DEFAULT '[]'::jsonb,
		passed        BOOLEAN NOT NULL,
		issues        JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS job_progress (
		job_id     TEXT PRIMARY KEY,
		stage      TEXT NOT NULL,
		percentage INTEGER NOT NULL DEFAULT 0,
		message    TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS queue_jobs (
		id                 TEXT PRIMARY KEY,
		channel            TEXT NOT NULL,
		kind               TEXT NOT NULL,
		payload            JSONB NOT NULL DEFAULT '{}'::jsonb,
		status             TEXT NOT NULL DEFAULT 'QUEUED',
		attempt            INTEGER NOT NULL DEFAULT 0,
		max_attempts       INTEGER NOT NULL DEFAULT 3,
		initial_backoff_ms BIGINT NOT NULL DEFAULT 2000,
		priority           INTEGER NOT NULL DEFAULT 0,
		last_error         TEXT NOT NULL DEFAULT '',
		run_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_jobs_claim ON queue_jobs (channel, status, run_at, priority DESC, created_at)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id              TEXT PRIMARY KEY,
		topic           TEXT NOT NULL,
		payload         JSONB NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		attempts        INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_events (status, next_attempt_at, created_at)`,
}

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("migrate: DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("migrate: open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("migrate: ping database: %v", err)
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migrate: %v\nstatement: %s", err, stmt)
		}
	}
	log.Printf("migrate: schema ready (%d statements)", len(statements))
}
