package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
	"pipeline/internal/providers/generation"
	"pipeline/internal/providers/prompt"
	"pipeline/internal/storage"
)

// DesignWorker consumes design-channel jobs: full generation runs plus the
// standalone validation and optimization passes.
type DesignWorker struct {
	store     domain.Store
	moderator generation.Moderator
	generator generation.Generator
	processor generation.PostProcessor
	uploader  storage.Uploader
	templates prompt.Library
	locker    EntityLocker
	logger    infra.Logger
	timeout   time.Duration
}

// NewDesignWorker wires a design worker.
func NewDesignWorker(
	store domain.Store,
	moderator generation.Moderator,
	generator generation.Generator,
	processor generation.PostProcessor,
	uploader storage.Uploader,
	templates prompt.Library,
	locker EntityLocker,
	logger infra.Logger,
	timeout time.Duration,
) *DesignWorker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DesignWorker{
		store:     store,
		moderator: moderator,
		generator: generator,
		processor: processor,
		uploader:  uploader,
		templates: templates,
		locker:    locker,
		logger:    logger,
		timeout:   timeout,
	}
}

type designCompletedEvent struct {
	DesignID       string        `json:"designId"`
	Status         string        `json:"status"`
	AssetCount     int           `json:"assetCount"`
	GenerationTime time.Duration `json:"generationTime"`
}

type designFailedEvent struct {
	DesignID string    `json:"designId"`
	Status   string    `json:"status"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// Generate runs the full design generation sequence under the worker
// deadline. The deadline cancels in-flight collaborator calls; the failure
// write and its event run on a detached context so they land even when the
// job itself timed out.
func (w *DesignWorker) Generate(ctx context.Context, jobID string, job domain.DesignGenerationJob) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.locker.Acquire(ctx, job.DesignID); err != nil {
		return domain.Transient("lock design", err)
	}
	defer w.locker.Release(context.WithoutCancel(ctx), job.DesignID)

	started := time.Now()
	if err := w.generate(ctx, job, started); err != nil {
		err = domain.Timeout("generate design", w.timeout, err)
		w.failDesign(context.WithoutCancel(ctx), job.DesignID, err)
		return err
	}

	w.logger.Info().
		Str("job_id", jobID).
		Str("design_id", job.DesignID).
		Dur("generation_time", time.Since(started)).
		Msg("design: generation completed")
	return nil
}

func (w *DesignWorker) generate(ctx context.Context, job domain.DesignGenerationJob, started time.Time) error {
	if err := w.store.Designs().SetStatus(ctx, job.DesignID, domain.DesignStatusProcessing); err != nil {
		return fmt.Errorf("mark design processing: %w", err)
	}

	product, err := w.store.Products().GetByID(ctx, job.ProductID)
	if err != nil {
		return fmt.Errorf("load product %s: %w", job.ProductID, err)
	}

	rules := product.Rules
	if job.Rules != nil {
		rules = *job.Rules
	}
	validation := domain.ValidationResult{Valid: true, CheckedAt: time.Now().UTC()}
	if violations := ValidateOptions(job.Prompt, job.Options, rules); len(violations) > 0 {
		validation.Valid = false
		validation.Violations = violations
		if err := w.store.Designs().SaveValidation(ctx, job.DesignID, validation); err != nil {
			w.logger.Warn().Err(err).Str("design_id", job.DesignID).Msg("design: persist validation failed")
		}
		return domain.NewValidationError("product rules", strings.Join(violations, "; "))
	}

	moderation, err := w.moderator.Moderate(ctx, job.Prompt)
	if err != nil {
		return fmt.Errorf("moderate prompt: %w", err)
	}
	if !moderation.Approved {
		return &domain.ModerationError{Reason: moderation.Reason}
	}

	finalPrompt, err := w.buildPrompt(job, product)
	if err != nil {
		return err
	}

	strategy := generation.SelectStrategy(job.Options)
	result, err := w.generator.Generate(ctx, generation.GenerateRequest{
		RequestID: job.DesignID,
		Prompt:    finalPrompt,
		Zones:     job.Options.Zones,
		Effects:   job.Options.Effects,
	}, strategy, job.BrandID)
	if err != nil {
		return fmt.Errorf("generate images: %w", err)
	}

	assets, err := w.uploadAssets(ctx, job.DesignID, result.Images)
	if err != nil {
		return err
	}

	meta := domain.DesignMetadata{
		GenerationTime:   time.Since(started),
		AIMetadata:       result.Metadata,
		Costs:            result.Costs,
		ValidationResult: &validation,
		ModerationResult: &moderation,
	}

	return w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Assets().SaveAll(ctx, assets); err != nil {
			return fmt.Errorf("persist assets: %w", err)
		}
		if err := tx.Designs().Complete(ctx, job.DesignID, meta); err != nil {
			return fmt.Errorf("complete design: %w", err)
		}
		return tx.Outbox().Record(ctx, domain.TopicDesignCompleted, designCompletedEvent{
			DesignID:       job.DesignID,
			Status:         string(domain.DesignStatusCompleted),
			AssetCount:     len(assets),
			GenerationTime: meta.GenerationTime,
		})
	})
}

func (w *DesignWorker) buildPrompt(job domain.DesignGenerationJob, product *domain.Product) (string, error) {
	if job.Options.Occasion == "" {
		return job.Prompt, nil
	}
	tpl, err := w.templates.Template(job.Options.Occasion, job.Options.Style)
	if err != nil {
		return "", fmt.Errorf("resolve prompt template: %w", err)
	}
	rendered, err := w.templates.Render(tpl, map[string]any{
		"prompt":      job.Prompt,
		"productName": product.Name,
		"style":       job.Options.Style,
	})
	if err != nil {
		return "", err
	}
	return rendered, nil
}

// uploadAssets post-processes and uploads every generated image. A
// post-processing failure falls back to the raw image; an upload failure is
// fatal to the job.
func (w *DesignWorker) uploadAssets(ctx context.Context, designID string, images []domain.GeneratedImage) ([]domain.Asset, error) {
	now := time.Now().UTC()
	assets := make([]domain.Asset, 0, len(images))
	for i, img := range images {
		kind := domain.AssetKindProcessed
		processed, err := w.processor.Process(img)
		if err != nil {
			w.logger.Warn().Err(err).
				Str("design_id", designID).
				Int("index", i).
				Msg("design: post-processing failed, keeping raw image")
			processed = img
			kind = domain.AssetKindGenerated
		}

		key := fmt.Sprintf("designs/%s/asset-%02d.png", designID, i+1)
		url, err := w.uploader.UploadBuffer(ctx, processed.Data, key, storage.UploadOptions{
			ContentType: processed.Format,
			Metadata:    map[string]string{"designId": designID},
		})
		if err != nil {
			return nil, domain.Transient("upload asset", err)
		}

		assets = append(assets, domain.Asset{
			ID:         uuid.NewString(),
			DesignID:   designID,
			Kind:       kind,
			StorageKey: key,
			URL:        url,
			Format:     processed.Format,
			Width:      processed.Width,
			Height:     processed.Height,
			Bytes:      int64(len(processed.Data)),
			CreatedAt:  now,
		})
	}
	return assets, nil
}

func (w *DesignWorker) failDesign(ctx context.Context, designID string, cause error) {
	failedAt := time.Now().UTC()
	err := w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Designs().Fail(ctx, designID, cause.Error(), failedAt); err != nil {
			return err
		}
		return tx.Outbox().Record(ctx, domain.TopicDesignFailed, designFailedEvent{
			DesignID: designID,
			Status:   string(domain.DesignStatusFailed),
			Error:    cause.Error(),
			FailedAt: failedAt,
		})
	})
	if err != nil {
		w.logger.Error().Err(err).Str("design_id", designID).Msg("design: failure write failed")
	}
}

// Validate runs an independent validation pass and persists the result
// without touching the design's primary status.
func (w *DesignWorker) Validate(ctx context.Context, jobID string, job domain.DesignGenerationJob) error {
	design, err := w.store.Designs().GetByID(ctx, job.DesignID)
	if err != nil {
		return fmt.Errorf("load design %s: %w", job.DesignID, err)
	}
	product, err := w.store.Products().GetByID(ctx, design.ProductID)
	if err != nil {
		return fmt.Errorf("load product %s: %w", design.ProductID, err)
	}

	rules := product.Rules
	if job.Rules != nil {
		rules = *job.Rules
	}
	violations := ValidateOptions(design.Prompt, design.Options, rules)
	result := domain.ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
		CheckedAt:  time.Now().UTC(),
	}

	return w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Designs().SaveValidation(ctx, job.DesignID, result); err != nil {
			return fmt.Errorf("persist validation: %w", err)
		}
		return tx.Outbox().Record(ctx, domain.TopicDesignValidated, map[string]any{
			"designId": job.DesignID,
			"valid":    result.Valid,
			"count":    len(violations),
		})
	})
}

// Optimize scores and trims the design's options, persisting the result
// and its suggestions.
func (w *DesignWorker) Optimize(ctx context.Context, jobID string, job domain.DesignGenerationJob) error {
	design, err := w.store.Designs().GetByID(ctx, job.DesignID)
	if err != nil {
		return fmt.Errorf("load design %s: %w", job.DesignID, err)
	}

	result := OptimizeOptions(design.Options)
	w.logger.Info().
		Str("job_id", jobID).
		Str("design_id", job.DesignID).
		Float64("complexity", result.Complexity).
		Int64("estimated_render_ms", result.EstimatedRenderMS).
		Msg("design: optimization computed")

	return w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Designs().SaveOptimization(ctx, job.DesignID, result); err != nil {
			return fmt.Errorf("persist optimization: %w", err)
		}
		return tx.Outbox().Record(ctx, domain.TopicDesignOptimized, map[string]any{
			"designId":    job.DesignID,
			"complexity":  result.Complexity,
			"suggestions": result.Suggestions,
		})
	})
}
