package domain

import (
	"context"
	"time"
)

// DesignRepository defines persistence for designs.
type DesignRepository interface {
	GetByID(ctx context.Context, id string) (*Design, error)
	SetStatus(ctx context.Context, id string, status DesignStatus) error
	Complete(ctx context.Context, id string, meta DesignMetadata) error
	Fail(ctx context.Context, id string, reason string, failedAt time.Time) error
	SaveValidation(ctx context.Context, id string, result ValidationResult) error
	SaveOptimization(ctx context.Context, id string, result OptimizationResult) error
}

// RenderRepository defines persistence for renders and their results.
type RenderRepository interface {
	GetByID(ctx context.Context, id string) (*Render, error)
	SetStatus(ctx context.Context, id string, status RenderStatus, errMsg string) error
	SaveResult(ctx context.Context, result RenderResult) error
	SaveExport(ctx context.Context, result ExportResult) error
}

// OrderRepository defines persistence for orders and production artifacts.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	SetStatus(ctx context.Context, id string, status OrderStatus, errMsg string) error
	AttachBundle(ctx context.Context, id string, bundleURL string) error
	AttachInstructions(ctx context.Context, id string, instructionsURL string) error
	SaveBundle(ctx context.Context, bundle ProductionBundle) error
	SaveQualityReport(ctx context.Context, report QualityReport) error
}

// ProductRepository exposes read access to products.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}

// BrandRepository exposes read access to brands.
type BrandRepository interface {
	GetByID(ctx context.Context, id string) (*Brand, error)
}

// AssetRepository handles persistence for design assets.
type AssetRepository interface {
	SaveAll(ctx context.Context, assets []Asset) error
	ListByDesignID(ctx context.Context, designID string) ([]Asset, error)
}

// ProgressRepository upserts the ephemeral per-job progress row.
type ProgressRepository interface {
	Upsert(ctx context.Context, record ProgressRecord) error
	Get(ctx context.Context, jobID string) (*ProgressRecord, error)
}

// OutboxRepository records and drains durable domain events.
type OutboxRepository interface {
	Record(ctx context.Context, topic string, payload any) error
	ListPending(ctx context.Context, now time.Time, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error
	MarkDead(ctx context.Context, id string, lastError string) error
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store aggregates the pipeline repositories behind one transaction
// boundary. WithinTx runs fn against a transaction-scoped Store; a terminal
// status write and its outbox event always share one transaction so a crash
// between them cannot lose the event.
type Store interface {
	Designs() DesignRepository
	Renders() RenderRepository
	Orders() OrderRepository
	Products() ProductRepository
	Brands() BrandRepository
	Assets() AssetRepository
	Progress() ProgressRepository
	Outbox() OutboxRepository

	WithinTx(ctx context.Context, fn func(Store) error) error
}
