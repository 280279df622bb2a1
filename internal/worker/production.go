package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
	"pipeline/internal/storage"
	"pipeline/internal/webhook"
	"pipeline/pkg/zip"
)

const qualityPassThreshold = 0.8

// ProductionWorker consumes production-channel jobs: bundle assembly,
// quality control, shipment tracking and manufacturing instructions.
type ProductionWorker struct {
	store      domain.Store
	fetcher    storage.Fetcher
	uploader   storage.Uploader
	webhooks   *webhook.Client
	locker     EntityLocker
	logger     infra.Logger
	timeout    time.Duration
	stageDelay time.Duration
}

// NewProductionWorker wires a production worker.
func NewProductionWorker(
	store domain.Store,
	fetcher storage.Fetcher,
	uploader storage.Uploader,
	webhooks *webhook.Client,
	locker EntityLocker,
	logger infra.Logger,
	timeout, stageDelay time.Duration,
) *ProductionWorker {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if stageDelay <= 0 {
		stageDelay = 5 * time.Second
	}
	return &ProductionWorker{
		store:      store,
		fetcher:    fetcher,
		uploader:   uploader,
		webhooks:   webhooks,
		locker:     locker,
		logger:     logger,
		timeout:    timeout,
		stageDelay: stageDelay,
	}
}

// CreateProductionBundle assembles the complete factory hand-off for an
// order: design assets, a machine-readable spec sheet and manufacturing
// instructions, zipped and uploaded. The factory webhook is best-effort;
// the bundle write and its event commit together.
func (w *ProductionWorker) CreateProductionBundle(ctx context.Context, jobID string, job domain.ProductionJob) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.locker.Acquire(ctx, job.OrderID); err != nil {
		return domain.Transient("lock order", err)
	}
	defer w.locker.Release(context.WithoutCancel(ctx), job.OrderID)

	if err := w.createBundle(ctx, jobID, job); err != nil {
		err = domain.Timeout("create production bundle", w.timeout, err)
		w.failOrder(context.WithoutCancel(ctx), job.OrderID, domain.OrderStatusProductionFailed, domain.TopicBundleFailed, err)
		return err
	}
	return nil
}

func (w *ProductionWorker) createBundle(ctx context.Context, jobID string, job domain.ProductionJob) error {
	if err := w.store.Orders().SetStatus(ctx, job.OrderID, domain.OrderStatusProcessing, ""); err != nil {
		return fmt.Errorf("mark order processing: %w", err)
	}

	var (
		order   *domain.Order
		design  *domain.Design
		product *domain.Product
		brand   *domain.Brand
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		order, err = w.store.Orders().GetByID(gctx, job.OrderID)
		return err
	})
	g.Go(func() (err error) {
		design, err = w.store.Designs().GetByID(gctx, job.DesignID)
		return err
	})
	g.Go(func() (err error) {
		product, err = w.store.Products().GetByID(gctx, job.ProductID)
		return err
	})
	g.Go(func() (err error) {
		brand, err = w.store.Brands().GetByID(gctx, job.BrandID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load production entities: %w", err)
	}

	if err := validateProduction(order, design, product, brand); err != nil {
		return err
	}

	assets, err := w.store.Assets().ListByDesignID(ctx, job.DesignID)
	if err != nil {
		return fmt.Errorf("load design assets: %w", err)
	}
	if len(assets) == 0 {
		return domain.NewValidationError("assets", fmt.Sprintf("design %s has no assets to bundle", job.DesignID))
	}

	instructions := BuildInstructions(order, product, job.Options)

	entries := make([]zip.Entry, 0, len(assets)+1)
	files := make([]domain.BundleFile, 0, len(assets)+1)
	for i, asset := range assets {
		data, err := w.fetcher.Fetch(ctx, asset.StorageKey)
		if err != nil {
			return domain.Transient("fetch bundle asset", err)
		}
		name := fmt.Sprintf("assets/%02d%s", i+1, extensionFor(asset))
		entries = append(entries, zip.Entry{Filename: name, MIME: asset.Format, Data: data})
		files = append(files, domain.BundleFile{Filename: name, ContentType: asset.Format, Bytes: int64(len(data))})
	}

	sheet, err := json.MarshalIndent(specSheet{
		OrderID:      order.ID,
		BrandID:      job.BrandID,
		DesignID:     job.DesignID,
		Product:      product.Name,
		SKU:          product.SKU,
		Quantity:     order.Quantity,
		Notes:        job.Options.Notes,
		Instructions: instructions,
		GeneratedAt:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode spec sheet: %w", err)
	}
	entries = append(entries, zip.Entry{Filename: "spec-sheet.json", MIME: "application/json", Data: sheet})
	files = append(files, domain.BundleFile{Filename: "spec-sheet.json", ContentType: "application/json", Bytes: int64(len(sheet))})

	archive, err := zip.Archive(entries)
	if err != nil {
		return fmt.Errorf("build bundle archive: %w", err)
	}

	key := fmt.Sprintf("bundles/%s/production-bundle.zip", job.OrderID)
	url, err := w.uploader.UploadBuffer(ctx, archive, key, storage.UploadOptions{
		ContentType: "application/zip",
		Metadata:    map[string]string{"orderId": job.OrderID},
	})
	if err != nil {
		return domain.Transient("upload bundle", err)
	}

	if job.FactoryWebhookURL != "" {
		err := w.webhooks.Deliver(ctx, job.FactoryWebhookURL, webhook.Payload{
			OrderID:      job.OrderID,
			BundleURL:    url,
			Instructions: instructions,
			Metadata:     map[string]string{"brandId": job.BrandID},
			Timestamp:    time.Now().UTC(),
		})
		if err != nil {
			w.logger.Warn().Err(err).Str("order_id", job.OrderID).Msg("production: factory webhook failed")
		}
	}

	bundle := domain.ProductionBundle{
		OrderID:      job.OrderID,
		StorageKey:   key,
		URL:          url,
		Files:        files,
		Instructions: instructions,
		CreatedAt:    time.Now().UTC(),
	}
	err = w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Orders().SaveBundle(ctx, bundle); err != nil {
			return fmt.Errorf("persist bundle: %w", err)
		}
		if err := tx.Orders().AttachBundle(ctx, job.OrderID, url); err != nil {
			return fmt.Errorf("attach bundle: %w", err)
		}
		if err := tx.Orders().SetStatus(ctx, job.OrderID, domain.OrderStatusReadyForProduction, ""); err != nil {
			return fmt.Errorf("mark order ready: %w", err)
		}
		return tx.Outbox().Record(ctx, domain.TopicBundleCreated, map[string]any{
			"orderId":   job.OrderID,
			"bundleUrl": url,
			"fileCount": len(files),
		})
	})
	if err != nil {
		return err
	}

	w.logger.Info().
		Str("job_id", jobID).
		Str("order_id", job.OrderID).
		Int("files", len(files)).
		Msg("production: bundle created")
	return nil
}

// validateProduction gates bundle assembly on all four entities being in a
// producible state. Any failure is terminal for the job.
func validateProduction(order *domain.Order, design *domain.Design, product *domain.Product, brand *domain.Brand) error {
	if order.Status != domain.OrderStatusPaid {
		return domain.NewValidationError("order", fmt.Sprintf("order %s is %s, expected %s", order.ID, order.Status, domain.OrderStatusPaid))
	}
	if design.Status != domain.DesignStatusCompleted {
		return domain.NewValidationError("design", fmt.Sprintf("design %s is %s, expected %s", design.ID, design.Status, domain.DesignStatusCompleted))
	}
	if !product.IsActive {
		return domain.NewValidationError("product", fmt.Sprintf("product %s is inactive", product.ID))
	}
	if brand.Status != domain.BrandStatusActive {
		return domain.NewValidationError("brand", fmt.Sprintf("brand %s is %s", brand.ID, brand.Status))
	}
	return nil
}

func extensionFor(asset domain.Asset) string {
	if ext := path.Ext(asset.StorageKey); ext != "" {
		return ext
	}
	switch asset.Format {
	case "image/jpeg", "jpeg", "jpg":
		return ".jpg"
	default:
		return ".png"
	}
}

func (w *ProductionWorker) failOrder(ctx context.Context, orderID string, status domain.OrderStatus, topic string, cause error) {
	err := w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Orders().SetStatus(ctx, orderID, status, cause.Error()); err != nil {
			return err
		}
		return tx.Outbox().Record(ctx, topic, map[string]any{
			"orderId": orderID,
			"status":  string(status),
			"error":   cause.Error(),
		})
	})
	if err != nil {
		w.logger.Error().Err(err).Str("order_id", orderID).Msg("production: failure write failed")
	}
}

// QualityControl scores every asset of the order's design and gates on the
// mean score. Sub-threshold runs mark the order QUALITY_ISSUE and fail
// terminally.
func (w *ProductionWorker) QualityControl(ctx context.Context, jobID string, job domain.ProductionJob) error {
	assets, err := w.store.Assets().ListByDesignID(ctx, job.DesignID)
	if err != nil {
		return fmt.Errorf("load design assets: %w", err)
	}
	if len(assets) == 0 {
		return domain.NewValidationError("assets", fmt.Sprintf("design %s has no assets to inspect", job.DesignID))
	}

	scores := make([]domain.AssetScore, 0, len(assets))
	var total float64
	var issues []string
	for _, asset := range assets {
		score := scoreAsset(asset)
		scores = append(scores, score)
		total += score.Score
		if score.Reason != "" {
			issues = append(issues, fmt.Sprintf("asset %s: %s", asset.ID, score.Reason))
		}
	}
	overall := total / float64(len(assets))

	report := domain.QualityReport{
		OrderID:      job.OrderID,
		OverallScore: overall,
		Scores:       scores,
		Passed:       overall >= qualityPassThreshold,
		Issues:       issues,
		CreatedAt:    time.Now().UTC(),
	}

	if !report.Passed {
		failErr := domain.NewValidationError("quality", fmt.Sprintf("overall score %.2f below threshold %.2f", overall, qualityPassThreshold))
		err := w.store.WithinTx(ctx, func(tx domain.Store) error {
			if err := tx.Orders().SaveQualityReport(ctx, report); err != nil {
				return err
			}
			if err := tx.Orders().SetStatus(ctx, job.OrderID, domain.OrderStatusQualityIssue, failErr.Error()); err != nil {
				return err
			}
			return tx.Outbox().Record(ctx, domain.TopicQualityFailed, map[string]any{
				"orderId": job.OrderID,
				"score":   overall,
				"issues":  issues,
			})
		})
		if err != nil {
			return err
		}
		return failErr
	}

	err = w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Orders().SaveQualityReport(ctx, report); err != nil {
			return err
		}
		return tx.Outbox().Record(ctx, domain.TopicQualityPassed, map[string]any{
			"orderId": job.OrderID,
			"score":   overall,
		})
	})
	if err != nil {
		return err
	}

	w.logger.Info().
		Str("job_id", jobID).
		Str("order_id", job.OrderID).
		Float64("score", overall).
		Msg("production: quality control passed")
	return nil
}

// scoreAsset computes a deterministic quality score for one asset. Each
// detected shortcoming subtracts a fixed penalty from a perfect 1.0.
func scoreAsset(asset domain.Asset) domain.AssetScore {
	score := 1.0
	var reasons []string

	if asset.StorageKey == "" {
		score -= 0.5
		reasons = append(reasons, "missing storage key")
	}
	if asset.Width < 1024 || asset.Height < 1024 {
		score -= 0.15
		reasons = append(reasons, fmt.Sprintf("resolution %dx%d below 1024px", asset.Width, asset.Height))
	}
	if asset.Bytes < 10240 {
		score -= 0.2
		reasons = append(reasons, "file smaller than 10KiB")
	}
	switch strings.TrimPrefix(asset.Format, "image/") {
	case "png", "jpeg":
	default:
		score -= 0.1
		reasons = append(reasons, fmt.Sprintf("format %q not suited for print", asset.Format))
	}
	if score < 0 {
		score = 0
	}
	return domain.AssetScore{
		AssetID: asset.ID,
		Score:   score,
		Reason:  strings.Join(reasons, "; "),
	}
}

var trackingStages = []struct {
	name string
	pct  int
}{
	{"received", 10},
	{"materials", 25},
	{"production", 60},
	{"quality", 80},
	{"packaging", 95},
	{"shipped", 100},
}

// TrackProduction walks the manufacturing stages of an order, persisting
// progress at each step and marking the order shipped at the end. Stage
// delays honor cancellation.
func (w *ProductionWorker) TrackProduction(ctx context.Context, jobID string, job domain.ProductionJob) error {
	tracker := newProgressTracker(w.store.Progress(), w.logger, jobID)

	for i, stage := range trackingStages {
		if i > 0 {
			select {
			case <-time.After(w.stageDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		tracker.set(ctx, stage.name, stage.pct, fmt.Sprintf("order %s: %s", job.OrderID, stage.name))
	}

	return w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Orders().SetStatus(ctx, job.OrderID, domain.OrderStatusShipped, ""); err != nil {
			return fmt.Errorf("mark order shipped: %w", err)
		}
		return tx.Outbox().Record(ctx, domain.TopicProductionShipped, map[string]any{
			"orderId":   job.OrderID,
			"shippedAt": time.Now().UTC(),
		})
	})
}

// GenerateManufacturingInstructions builds and uploads the standalone
// instruction document for an order.
func (w *ProductionWorker) GenerateManufacturingInstructions(ctx context.Context, jobID string, job domain.ProductionJob) error {
	if err := w.generateInstructions(ctx, job); err != nil {
		ctx := context.WithoutCancel(ctx)
		failErr := w.store.WithinTx(ctx, func(tx domain.Store) error {
			return tx.Outbox().Record(ctx, domain.TopicInstructionsFailed, map[string]any{
				"orderId": job.OrderID,
				"error":   err.Error(),
			})
		})
		if failErr != nil {
			w.logger.Error().Err(failErr).Str("order_id", job.OrderID).Msg("production: instructions failure write failed")
		}
		return err
	}
	return nil
}

func (w *ProductionWorker) generateInstructions(ctx context.Context, job domain.ProductionJob) error {
	order, err := w.store.Orders().GetByID(ctx, job.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", job.OrderID, err)
	}
	product, err := w.store.Products().GetByID(ctx, job.ProductID)
	if err != nil {
		return fmt.Errorf("load product %s: %w", job.ProductID, err)
	}

	instructions := BuildInstructions(order, product, job.Options)
	body, err := json.MarshalIndent(instructions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode instructions: %w", err)
	}

	key := fmt.Sprintf("instructions/%s.json", job.OrderID)
	url, err := w.uploader.UploadBuffer(ctx, body, key, storage.UploadOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"orderId": job.OrderID},
	})
	if err != nil {
		return domain.Transient("upload instructions", err)
	}

	return w.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Orders().AttachInstructions(ctx, job.OrderID, url); err != nil {
			return fmt.Errorf("attach instructions: %w", err)
		}
		return tx.Outbox().Record(ctx, domain.TopicInstructionsGenerated, map[string]any{
			"orderId":  job.OrderID,
			"url":      url,
			"deadline": instructions.Deadline,
		})
	})
}
