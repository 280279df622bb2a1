package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
	"pipeline/internal/providers/render"
	"pipeline/internal/storage"
)

const batchChunkSize = 3

// RenderWorker consumes render-channel jobs. 2D and 3D share one pipeline
// that differs only in the scene-preparation and post-processing stages and
// in the deadline, since 3D runs are allowed far more wall time.
type RenderWorker struct {
	store     domain.Store
	engine    render.Engine
	exporter  render.Exporter
	uploader  storage.Uploader
	logger    infra.Logger
	timeout2D time.Duration
	timeout3D time.Duration
}

// NewRenderWorker wires a render worker.
func NewRenderWorker(
	store domain.Store,
	engine render.Engine,
	exporter render.Exporter,
	uploader storage.Uploader,
	logger infra.Logger,
	timeout2D, timeout3D time.Duration,
) *RenderWorker {
	if timeout2D <= 0 {
		timeout2D = 60 * time.Second
	}
	if timeout3D <= 0 {
		timeout3D = 180 * time.Second
	}
	return &RenderWorker{
		store:     store,
		engine:    engine,
		exporter:  exporter,
		uploader:  uploader,
		logger:    logger,
		timeout2D: timeout2D,
		timeout3D: timeout3D,
	}
}

// Render2D renders a flat composite of the design assets.
func (w *RenderWorker) Render2D(ctx context.Context, jobID string, job domain.RenderJob) error {
	return w.runRender(ctx, jobID, job, false, w.timeout2D)
}

// Render3D renders the design applied to the product's 3D model.
func (w *RenderWorker) Render3D(ctx context.Context, jobID string, job domain.RenderJob) error {
	return w.runRender(ctx, jobID, job, true, w.timeout3D)
}

// RenderPreview renders a fast low-fidelity frame, choosing the 3D path
// only when the product carries a model.
func (w *RenderWorker) RenderPreview(ctx context.Context, jobID string, job domain.RenderJob) error {
	product, err := w.store.Products().GetByID(ctx, job.ProductID)
	if err != nil {
		return fmt.Errorf("load product %s: %w", job.ProductID, err)
	}
	job.Options = PreviewOptions(job.Options)
	if product.Has3DModel() {
		return w.runRender(ctx, jobID, job, true, w.timeout3D)
	}
	return w.runRender(ctx, jobID, job, false, w.timeout2D)
}

// PreviewOptions clamps render options to preview fidelity: draft quality,
// at most 800x600, and no antialiasing or shadows.
func PreviewOptions(opts domain.RenderOptions) domain.RenderOptions {
	opts.Quality = domain.QualityDraft
	if opts.Width <= 0 || opts.Width > 800 {
		opts.Width = 800
	}
	if opts.Height <= 0 || opts.Height > 600 {
		opts.Height = 600
	}
	opts.Antialiasing = false
	opts.Shadows = false
	return opts
}

func (w *RenderWorker) runRender(ctx context.Context, jobID string, job domain.RenderJob, threeD bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tracker := newProgressTracker(w.store.Progress(), w.logger, jobID)
	started := time.Now()

	out, err := w.render(ctx, job, threeD, tracker)
	if err != nil {
		err = domain.Timeout("render", timeout, err)
		w.failRender(context.WithoutCancel(ctx), job.RenderID, tracker, started, err)
		return err
	}

	tracker.set(ctx, StageFinalization, pctFinalization, "uploading render output")
	key := fmt.Sprintf("renders/%s/output.png", job.RenderID)
	url, err := w.uploader.UploadBuffer(ctx, out.Data, key, storage.UploadOptions{
		ContentType: "image/png",
		Metadata:    map[string]string{"renderId": job.RenderID, "designId": job.DesignID},
	})
	if err != nil {
		err = domain.Transient("upload render output", err)
		w.failRender(context.WithoutCancel(ctx), job.RenderID, tracker, started, err)
		return err
	}

	result := domain.RenderResult{
		RenderID:   job.RenderID,
		Status:     string(domain.RenderStatusCompleted),
		StorageKey: key,
		URL:        url,
		Width:      out.Width,
		Height:     out.Height,
		Format:     out.Format,
		Duration:   time.Since(started),
		CreatedAt:  time.Now().UTC(),
	}
	err = w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Renders().SaveResult(ctx, result); err != nil {
			return fmt.Errorf("persist render result: %w", err)
		}
		if err := tx.Renders().SetStatus(ctx, job.RenderID, domain.RenderStatusCompleted, ""); err != nil {
			return fmt.Errorf("complete render: %w", err)
		}
		return tx.Outbox().Record(ctx, domain.TopicRenderCompleted, map[string]any{
			"renderId": job.RenderID,
			"designId": job.DesignID,
			"url":      url,
			"duration": result.Duration,
		})
	})
	if err != nil {
		w.failRender(context.WithoutCancel(ctx), job.RenderID, tracker, started, err)
		return err
	}

	tracker.set(ctx, StageCompleted, pctCompleted, "render completed")
	w.logger.Info().
		Str("job_id", jobID).
		Str("render_id", job.RenderID).
		Bool("three_d", threeD).
		Dur("duration", result.Duration).
		Msg("render: completed")
	return nil
}

func (w *RenderWorker) render(ctx context.Context, job domain.RenderJob, threeD bool, tracker *progressTracker) (*render.Output, error) {
	tracker.set(ctx, StageInitialization, pctInitialization, "loading design assets")

	if err := w.store.Renders().SetStatus(ctx, job.RenderID, domain.RenderStatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("mark render processing: %w", err)
	}

	assets, err := w.store.Assets().ListByDesignID(ctx, job.DesignID)
	if err != nil {
		return nil, fmt.Errorf("load design assets: %w", err)
	}
	if len(assets) == 0 {
		return nil, domain.NewValidationError("assets", fmt.Sprintf("design %s has no assets to render", job.DesignID))
	}

	req := render.Request{
		RenderID:  job.RenderID,
		DesignID:  job.DesignID,
		ProductID: job.ProductID,
		Assets:    assets,
		Options:   job.Options,
	}

	if threeD {
		product, err := w.store.Products().GetByID(ctx, job.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", job.ProductID, err)
		}
		if !product.Has3DModel() {
			return nil, domain.NewValidationError("model", fmt.Sprintf("product %s has no 3D model", job.ProductID))
		}
		req.ModelKey = product.Model3DKey

		tracker.set(ctx, StageScenePreparation, pctScenePreparation, "preparing 3D scene")
		if err := w.engine.PrepareScene(ctx, req); err != nil {
			return nil, fmt.Errorf("prepare scene: %w", err)
		}
	}

	tracker.set(ctx, StageRendering, pctRenderingStart, "rendering")
	out, err := w.engine.Render(ctx, req, func(fraction float64) {
		pct := pctRenderingStart + int(fraction*float64(pctRenderingEnd-pctRenderingStart))
		tracker.set(ctx, StageRendering, pct, "rendering")
	})
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	if threeD {
		tracker.set(ctx, StagePostProcessing, pctPostProcessing, "post-processing frame")
		if err := w.engine.PostProcess(ctx, out); err != nil {
			return nil, fmt.Errorf("post-process: %w", err)
		}
	}
	return out, nil
}

func (w *RenderWorker) failRender(ctx context.Context, renderID string, tracker *progressTracker, started time.Time, cause error) {
	tracker.set(ctx, StageError, 0, cause.Error())
	err := w.store.WithinTx(ctx, func(tx domain.Store) error {
		result := domain.RenderResult{
			RenderID:  renderID,
			Status:    string(domain.RenderStatusFailed),
			Duration:  time.Since(started),
			Error:     cause.Error(),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Renders().SaveResult(ctx, result); err != nil {
			return err
		}
		if err := tx.Renders().SetStatus(ctx, renderID, domain.RenderStatusFailed, cause.Error()); err != nil {
			return err
		}
		return tx.Outbox().Record(ctx, domain.TopicRenderFailed, map[string]any{
			"renderId": renderID,
			"error":    cause.Error(),
		})
	})
	if err != nil {
		w.logger.Error().Err(err).Str("render_id", renderID).Msg("render: failure write failed")
	}
}

// ExportAssets packages the design's assets (falling back to the product's
// base assets when the design has none) and uploads the archive.
func (w *RenderWorker) ExportAssets(ctx context.Context, jobID string, job domain.RenderJob) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout2D)
	defer cancel()

	if err := w.exportAssets(ctx, job); err != nil {
		ctx := context.WithoutCancel(ctx)
		failErr := w.store.WithinTx(ctx, func(tx domain.Store) error {
			return tx.Outbox().Record(ctx, domain.TopicExportFailed, map[string]any{
				"renderId": job.RenderID,
				"error":    err.Error(),
			})
		})
		if failErr != nil {
			w.logger.Error().Err(failErr).Str("render_id", job.RenderID).Msg("render: export failure write failed")
		}
		return err
	}
	return nil
}

func (w *RenderWorker) exportAssets(ctx context.Context, job domain.RenderJob) error {
	assets, err := w.store.Assets().ListByDesignID(ctx, job.DesignID)
	if err != nil {
		return fmt.Errorf("load design assets: %w", err)
	}
	if len(assets) == 0 {
		product, err := w.store.Products().GetByID(ctx, job.ProductID)
		if err != nil {
			return fmt.Errorf("load product %s: %w", job.ProductID, err)
		}
		for _, key := range product.BaseAssetKeys {
			assets = append(assets, domain.Asset{
				Kind:       domain.AssetKindGenerated,
				StorageKey: key,
			})
		}
	}
	if len(assets) == 0 {
		return domain.NewValidationError("assets", "nothing to export")
	}

	format := job.Options.Format
	if format == "" {
		format = "zip"
	}
	out, err := w.exporter.Export(ctx, assets, format)
	if err != nil {
		return fmt.Errorf("export assets: %w", err)
	}

	key := fmt.Sprintf("exports/%s.%s", job.RenderID, out.Format)
	url, err := w.uploader.UploadBuffer(ctx, out.Data, key, storage.UploadOptions{
		ContentType: out.ContentType,
		Metadata:    map[string]string{"renderId": job.RenderID, "designId": job.DesignID},
	})
	if err != nil {
		return domain.Transient("upload export archive", err)
	}

	result := domain.ExportResult{
		RenderID:   job.RenderID,
		DesignID:   job.DesignID,
		ProductID:  job.ProductID,
		Format:     out.Format,
		StorageKey: key,
		URL:        url,
		Bytes:      int64(len(out.Data)),
		AssetCount: out.AssetCount,
		CreatedAt:  time.Now().UTC(),
	}
	return w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Renders().SaveExport(ctx, result); err != nil {
			return fmt.Errorf("persist export result: %w", err)
		}
		return tx.Outbox().Record(ctx, domain.TopicExportCompleted, map[string]any{
			"renderId":   job.RenderID,
			"designId":   job.DesignID,
			"url":        url,
			"assetCount": out.AssetCount,
		})
	})
}

// BatchRender runs a batch of renders in chunks of three, never aborting
// the batch on individual failures. Every item's outcome is captured and
// reported in the final batch event, and cumulative progress is persisted
// after each chunk.
func (w *RenderWorker) BatchRender(ctx context.Context, jobID string, batch domain.BatchRenderJob) error {
	tracker := newProgressTracker(w.store.Progress(), w.logger, jobID)
	total := len(batch.Renders)
	results := make([]domain.BatchItemResult, total)

	for start := 0; start < total; start += batchChunkSize {
		end := start + batchChunkSize
		if end > total {
			end = total
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			item := batch.Renders[i]
			g.Go(func() error {
				itemJobID := jobID + "/" + item.RenderID
				var err error
				switch item.Type {
				case domain.RenderType3D:
					err = w.Render3D(gctx, itemJobID, item)
				case domain.RenderTypePreview:
					err = w.RenderPreview(gctx, itemJobID, item)
				default:
					err = w.Render2D(gctx, itemJobID, item)
				}
				result := domain.BatchItemResult{
					RenderID: item.RenderID,
					Type:     item.Type,
					Status:   string(domain.RenderStatusCompleted),
				}
				if err != nil {
					result.Status = string(domain.RenderStatusFailed)
					result.Error = err.Error()
					w.logger.Warn().Err(err).
						Str("batch_id", batch.BatchID).
						Str("render_id", item.RenderID).
						Msg("render: batch item failed")
				}
				results[i] = result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		attempted := end
		pct := attempted * 100 / total
		tracker.set(ctx, StageRendering, pct, fmt.Sprintf("rendered %d of %d", attempted, total))
	}

	succeeded := 0
	for _, r := range results {
		if r.Status == string(domain.RenderStatusCompleted) {
			succeeded++
		}
	}

	return w.store.WithinTx(ctx, func(tx domain.Store) error {
		return tx.Outbox().Record(ctx, domain.TopicBatchRenderCompleted, map[string]any{
			"batchId":   batch.BatchID,
			"total":     total,
			"succeeded": succeeded,
			"results":   results,
		})
	})
}
