package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pipeline/internal/domain"
	"pipeline/internal/webhook"
)

func newProductionFixture() (*ProductionWorker, *memStore, *memUploader) {
	store := newMemStore()
	store.brands["brand-1"] = &domain.Brand{ID: "brand-1", Name: "Acme", Status: domain.BrandStatusActive}
	store.products["prod-1"] = &domain.Product{
		ID:             "prod-1",
		Name:           "Ceramic Mug",
		SKU:            "MUG-001",
		IsActive:       true,
		Materials:      []string{"ceramic"},
		Finishes:       []string{"gloss"},
		ProductionDays: 10,
	}
	store.designs["design-1"] = &domain.Design{
		ID:        "design-1",
		BrandID:   "brand-1",
		ProductID: "prod-1",
		Status:    domain.DesignStatusCompleted,
	}
	store.orders["order-1"] = &domain.Order{
		ID:        "order-1",
		BrandID:   "brand-1",
		DesignID:  "design-1",
		ProductID: "prod-1",
		Quantity:  50,
		Status:    domain.OrderStatusPaid,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	store.assetsByDesign["design-1"] = []domain.Asset{
		{ID: "asset-1", DesignID: "design-1", StorageKey: "designs/design-1/asset-01.png", Format: "image/png", Width: 2048, Height: 2048, Bytes: 50000},
	}

	uploader := newMemUploader()
	uploader.uploads["designs/design-1/asset-01.png"] = []byte("asset blob")

	w := NewProductionWorker(
		store,
		uploader,
		uploader,
		webhook.NewClient("test-secret", nil, testLogger()),
		NopLocker{},
		testLogger(),
		5*time.Second,
		time.Millisecond,
	)
	return w, store, uploader
}

func productionJob() domain.ProductionJob {
	return domain.ProductionJob{
		OrderID:   "order-1",
		BrandID:   "brand-1",
		DesignID:  "design-1",
		ProductID: "prod-1",
		Quantity:  50,
	}
}

func TestCreateProductionBundleHappyPath(t *testing.T) {
	w, store, uploader := newProductionFixture()

	if err := w.CreateProductionBundle(context.Background(), "job-1", productionJob()); err != nil {
		t.Fatalf("CreateProductionBundle: %v", err)
	}

	order := store.orders["order-1"]
	if order.Status != domain.OrderStatusReadyForProduction {
		t.Fatalf("order status = %s, want READY_FOR_PRODUCTION", order.Status)
	}
	if order.BundleURL == "" {
		t.Fatal("bundle URL not attached to order")
	}
	if len(store.bundles) != 1 {
		t.Fatalf("bundles = %d, want 1", len(store.bundles))
	}
	bundle := store.bundles[0]
	if len(bundle.Files) != 2 {
		t.Fatalf("bundle files = %d, want asset + spec sheet", len(bundle.Files))
	}
	if bundle.Instructions.Quantity != 50 {
		t.Fatalf("instructions quantity = %d, want 50", bundle.Instructions.Quantity)
	}

	data, ok := uploader.uploads["bundles/order-1/production-bundle.zip"]
	if !ok {
		t.Fatal("bundle archive not uploaded")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open bundle archive: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"assets/01.png", "spec-sheet.json", "manifest.json"} {
		if !names[want] {
			t.Fatalf("bundle archive missing %s (has %v)", want, names)
		}
	}

	events := store.eventsFor(domain.TopicBundleCreated)
	if len(events) != 1 {
		t.Fatalf("bundle.created events = %d, want 1", len(events))
	}
	var payload struct {
		BundleURL string `json:"bundleUrl"`
	}
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("decode bundle event: %v", err)
	}
	if payload.BundleURL == "" {
		t.Fatal("bundle.created event missing bundle URL")
	}
}

func TestCreateProductionBundleRejectsDraftDesign(t *testing.T) {
	w, store, _ := newProductionFixture()
	store.designs["design-1"].Status = domain.DesignStatusDraft

	err := w.CreateProductionBundle(context.Background(), "job-1", productionJob())
	if err == nil {
		t.Fatal("bundle created from a draft design")
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %T %v, want ValidationError", err, err)
	}
	if store.orders["order-1"].Status != domain.OrderStatusProductionFailed {
		t.Fatalf("order status = %s, want PRODUCTION_FAILED", store.orders["order-1"].Status)
	}
	if got := len(store.eventsFor(domain.TopicBundleFailed)); got != 1 {
		t.Fatalf("bundle.failed events = %d, want 1", got)
	}
	if got := len(store.eventsFor(domain.TopicBundleCreated)); got != 0 {
		t.Fatalf("bundle.created events = %d, want 0", got)
	}
}

func TestCreateProductionBundleRejectsUnpaidOrder(t *testing.T) {
	w, store, _ := newProductionFixture()
	store.orders["order-1"].Status = domain.OrderStatusCancelled

	err := w.CreateProductionBundle(context.Background(), "job-1", productionJob())
	if err == nil {
		t.Fatal("bundle created for a cancelled order")
	}
	if domain.Retryable(err) {
		t.Fatalf("order state violation should be terminal, got %v", err)
	}
	if store.orders["order-1"].Status != domain.OrderStatusProductionFailed {
		t.Fatalf("order status = %s, want PRODUCTION_FAILED", store.orders["order-1"].Status)
	}
}

func TestCreateProductionBundleNotifiesFactory(t *testing.T) {
	w, store, _ := newProductionFixture()

	var gotSignature string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(webhook.SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		rw.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	job := productionJob()
	job.FactoryWebhookURL = srv.URL
	if err := w.CreateProductionBundle(context.Background(), "job-1", job); err != nil {
		t.Fatalf("CreateProductionBundle: %v", err)
	}

	if gotSignature == "" {
		t.Fatal("factory webhook delivered without signature")
	}
	verifier := webhook.NewClient("test-secret", nil, testLogger())
	if !verifier.Verify(gotBody, gotSignature) {
		t.Fatal("webhook signature does not verify against the shared secret")
	}
	if store.orders["order-1"].Status != domain.OrderStatusReadyForProduction {
		t.Fatalf("order status = %s", store.orders["order-1"].Status)
	}
}

func TestCreateProductionBundleSurvivesWebhookFailure(t *testing.T) {
	w, store, _ := newProductionFixture()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	job := productionJob()
	job.FactoryWebhookURL = srv.URL
	if err := w.CreateProductionBundle(context.Background(), "job-1", job); err != nil {
		t.Fatalf("webhook failure must not fail the job: %v", err)
	}
	if store.orders["order-1"].Status != domain.OrderStatusReadyForProduction {
		t.Fatalf("order status = %s, want READY_FOR_PRODUCTION", store.orders["order-1"].Status)
	}
}

func TestQualityControlPasses(t *testing.T) {
	w, store, _ := newProductionFixture()

	if err := w.QualityControl(context.Background(), "job-1", productionJob()); err != nil {
		t.Fatalf("QualityControl: %v", err)
	}
	if len(store.qualityReports) != 1 {
		t.Fatalf("quality reports = %d, want 1", len(store.qualityReports))
	}
	report := store.qualityReports[0]
	if !report.Passed || report.OverallScore != 1.0 {
		t.Fatalf("report = %+v, want passed with score 1.0", report)
	}
	if got := len(store.eventsFor(domain.TopicQualityPassed)); got != 1 {
		t.Fatalf("quality.passed events = %d, want 1", got)
	}
	if store.orders["order-1"].Status != domain.OrderStatusPaid {
		t.Fatalf("passing quality control changed order status to %s", store.orders["order-1"].Status)
	}
}

func TestQualityControlFailsBelowThreshold(t *testing.T) {
	w, store, _ := newProductionFixture()
	store.assetsByDesign["design-1"] = []domain.Asset{
		{ID: "asset-1", DesignID: "design-1", StorageKey: "k1", Format: "image/gif", Width: 512, Height: 512, Bytes: 500},
	}

	err := w.QualityControl(context.Background(), "job-1", productionJob())
	if err == nil {
		t.Fatal("QualityControl passed sub-threshold assets")
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %T %v, want ValidationError", err, err)
	}
	if store.orders["order-1"].Status != domain.OrderStatusQualityIssue {
		t.Fatalf("order status = %s, want QUALITY_ISSUE", store.orders["order-1"].Status)
	}
	if len(store.qualityReports) != 1 || store.qualityReports[0].Passed {
		t.Fatalf("reports = %+v, want one failed", store.qualityReports)
	}
	if len(store.qualityReports[0].Issues) == 0 {
		t.Fatal("failed report carries no issues")
	}
	if got := len(store.eventsFor(domain.TopicQualityFailed)); got != 1 {
		t.Fatalf("quality.failed events = %d, want 1", got)
	}
}

func TestScoreAssetPenalties(t *testing.T) {
	cases := []struct {
		name  string
		asset domain.Asset
		want  float64
	}{
		{"perfect", domain.Asset{ID: "a", StorageKey: "k", Format: "image/png", Width: 2048, Height: 2048, Bytes: 50000}, 1.0},
		{"low resolution", domain.Asset{ID: "a", StorageKey: "k", Format: "image/png", Width: 800, Height: 800, Bytes: 50000}, 0.85},
		{"tiny file", domain.Asset{ID: "a", StorageKey: "k", Format: "image/png", Width: 2048, Height: 2048, Bytes: 100}, 0.8},
		{"wrong format", domain.Asset{ID: "a", StorageKey: "k", Format: "image/gif", Width: 2048, Height: 2048, Bytes: 50000}, 0.9},
		{"missing key", domain.Asset{ID: "a", Format: "image/png", Width: 2048, Height: 2048, Bytes: 50000}, 0.5},
	}
	for _, tc := range cases {
		got := scoreAsset(tc.asset)
		if diff := got.Score - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s: score = %v, want %v", tc.name, got.Score, tc.want)
		}
	}
}

func TestTrackProductionShipsOrder(t *testing.T) {
	w, store, _ := newProductionFixture()

	if err := w.TrackProduction(context.Background(), "job-1", productionJob()); err != nil {
		t.Fatalf("TrackProduction: %v", err)
	}
	if store.orders["order-1"].Status != domain.OrderStatusShipped {
		t.Fatalf("order status = %s, want SHIPPED", store.orders["order-1"].Status)
	}
	if got := len(store.eventsFor(domain.TopicProductionShipped)); got != 1 {
		t.Fatalf("production.shipped events = %d, want 1", got)
	}
	progress, err := store.Progress().Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.Stage != "shipped" || progress.Percentage != 100 {
		t.Fatalf("final progress = %s/%d, want shipped/100", progress.Stage, progress.Percentage)
	}
}

func TestTrackProductionHonorsCancellation(t *testing.T) {
	w, store, _ := newProductionFixture()
	w.stageDelay = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.TrackProduction(ctx, "job-1", productionJob())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if store.orders["order-1"].Status == domain.OrderStatusShipped {
		t.Fatal("cancelled tracking still shipped the order")
	}
}

func TestGenerateManufacturingInstructions(t *testing.T) {
	w, store, uploader := newProductionFixture()

	job := productionJob()
	job.Options = domain.ProductionOptions{QualityLevel: domain.QualityLevelPremium, RushOrder: true}
	if err := w.GenerateManufacturingInstructions(context.Background(), "job-1", job); err != nil {
		t.Fatalf("GenerateManufacturingInstructions: %v", err)
	}

	if store.orders["order-1"].InstructionsURL == "" {
		t.Fatal("instructions URL not attached to order")
	}
	data, ok := uploader.uploads["instructions/order-1.json"]
	if !ok {
		t.Fatal("instructions document not uploaded")
	}
	var instructions domain.ManufacturingInstructions
	if err := json.Unmarshal(data, &instructions); err != nil {
		t.Fatalf("decode instructions: %v", err)
	}
	if instructions.Tolerances != (domain.Tolerances{DimensionMM: 0.1, ColorDeltaE: 5, FinishGrade: 1}) {
		t.Fatalf("tolerances = %+v, want premium profile", instructions.Tolerances)
	}
	// 10 production days halved for a rush order.
	wantDeadline := store.orders["order-1"].CreatedAt.AddDate(0, 0, 5)
	if !instructions.Deadline.Equal(wantDeadline) {
		t.Fatalf("deadline = %s, want %s", instructions.Deadline, wantDeadline)
	}
	if got := len(store.eventsFor(domain.TopicInstructionsGenerated)); got != 1 {
		t.Fatalf("instructions.generated events = %d, want 1", got)
	}
}

func TestBuildInstructionsStandardDefaults(t *testing.T) {
	order := &domain.Order{ID: "order-1", Quantity: 5, CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	product := &domain.Product{Materials: []string{"ceramic"}, Finishes: []string{"matte"}, ProductionDays: 7}

	got := BuildInstructions(order, product, domain.ProductionOptions{})
	if got.Quality != domain.QualityLevelStandard {
		t.Fatalf("quality = %s, want standard", got.Quality)
	}
	if got.Tolerances != (domain.Tolerances{DimensionMM: 0.2, ColorDeltaE: 10, FinishGrade: 2}) {
		t.Fatalf("tolerances = %+v, want standard profile", got.Tolerances)
	}
	if !got.Deadline.Equal(order.CreatedAt.AddDate(0, 0, 7)) {
		t.Fatalf("deadline = %s", got.Deadline)
	}
	if got.Quantity != 5 {
		t.Fatalf("quantity = %d, want 5", got.Quantity)
	}
}

// blockingFetcher stalls until the job deadline cancels the context.
type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCreateProductionBundleTimesOutTerminally(t *testing.T) {
	w, store, _ := newProductionFixture()
	w.fetcher = blockingFetcher{}
	w.timeout = 20 * time.Millisecond

	err := w.CreateProductionBundle(context.Background(), "job-1", productionJob())
	var terr *domain.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %T %v, want TimeoutError", err, err)
	}
	if domain.Retryable(err) {
		t.Fatal("a timed-out bundle build must be terminal")
	}
	if store.orders["order-1"].Status != domain.OrderStatusProductionFailed {
		t.Fatalf("order status = %s, want PRODUCTION_FAILED", store.orders["order-1"].Status)
	}
	if got := len(store.eventsFor(domain.TopicBundleFailed)); got != 1 {
		t.Fatalf("bundle.failed events = %d, want 1", got)
	}
	if got := len(store.eventsFor(domain.TopicBundleCreated)); got != 0 {
		t.Fatalf("bundle.created events = %d, want 0", got)
	}
}
