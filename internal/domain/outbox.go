package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus enumerates outbox event states. Published and dead are
// terminal.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusDead      OutboxStatus = "dead"
)

// OutboxEvent is a domain event recorded in the same transaction as the
// state change it describes. A crash before delivery leaves it pending and
// the publisher retries it on the next tick.
type OutboxEvent struct {
	ID            string
	Topic         string
	Payload       json.RawMessage
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Outbox event topics published by the pipeline workers.
const (
	TopicDesignCompleted = "design.completed"
	TopicDesignFailed    = "design.failed"
	TopicDesignValidated = "design.validated"
	TopicDesignOptimized = "design.optimized"

	TopicRenderCompleted      = "render.completed"
	TopicRenderFailed         = "render.failed"
	TopicExportCompleted      = "render.export.completed"
	TopicExportFailed         = "render.export.failed"
	TopicBatchRenderCompleted = "render.batch.completed"

	TopicBundleCreated          = "production.bundle.created"
	TopicBundleFailed           = "production.bundle.failed"
	TopicQualityPassed          = "production.quality.passed"
	TopicQualityFailed          = "production.quality.failed"
	TopicProductionShipped      = "production.shipped"
	TopicInstructionsGenerated  = "production.instructions.generated"
	TopicInstructionsFailed     = "production.instructions.failed"
)
