package worker

import (
	"context"
	"fmt"

	"pipeline/internal/domain"
	"pipeline/internal/queue"
)

// EntityLocker serializes jobs targeting the same entity id. The Postgres
// implementation lives in infra; tests substitute a no-op.
type EntityLocker interface {
	Acquire(ctx context.Context, entityID string) error
	Release(ctx context.Context, entityID string) error
}

// NopLocker performs no locking. Used where the queue itself already
// guarantees single delivery, and in tests.
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, entityID string) error { return nil }
func (NopLocker) Release(ctx context.Context, entityID string) error { return nil }

// Dispatcher routes queue deliveries over the closed job-kind union to the
// owning worker. An unrecognized kind fails terminally; it can only mean a
// version mismatch with the enqueueing side.
type Dispatcher struct {
	Design     *DesignWorker
	Render     *RenderWorker
	Production *ProductionWorker
}

// Handle implements queue.Handler.
func (d *Dispatcher) Handle(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case domain.JobKindDesignGenerate:
		var payload domain.DesignGenerationJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Design.Generate(ctx, job.ID, payload)
	case domain.JobKindDesignValidate:
		var payload domain.DesignGenerationJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Design.Validate(ctx, job.ID, payload)
	case domain.JobKindDesignOptimize:
		var payload domain.DesignGenerationJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Design.Optimize(ctx, job.ID, payload)

	case domain.JobKindRender2D:
		var payload domain.RenderJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Render.Render2D(ctx, job.ID, payload)
	case domain.JobKindRender3D:
		var payload domain.RenderJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Render.Render3D(ctx, job.ID, payload)
	case domain.JobKindRenderPreview:
		var payload domain.RenderJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Render.RenderPreview(ctx, job.ID, payload)
	case domain.JobKindRenderExport:
		var payload domain.RenderJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Render.ExportAssets(ctx, job.ID, payload)
	case domain.JobKindRenderBatch:
		var payload domain.BatchRenderJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Render.BatchRender(ctx, job.ID, payload)

	case domain.JobKindProductionBundle:
		var payload domain.ProductionJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Production.CreateProductionBundle(ctx, job.ID, payload)
	case domain.JobKindQualityControl:
		var payload domain.ProductionJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Production.QualityControl(ctx, job.ID, payload)
	case domain.JobKindTrackProduction:
		var payload domain.ProductionJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Production.TrackProduction(ctx, job.ID, payload)
	case domain.JobKindManufacturingInstructs:
		var payload domain.ProductionJob
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Kind, err)
		}
		return d.Production.GenerateManufacturingInstructions(ctx, job.ID, payload)

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownJobKind, job.Kind)
	}
}
