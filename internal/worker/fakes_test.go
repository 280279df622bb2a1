package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pipeline/internal/domain"
	"pipeline/internal/infra"
	"pipeline/internal/providers/generation"
	"pipeline/internal/providers/render"
	"pipeline/internal/storage"
)

func testLogger() infra.Logger {
	return zerolog.New(io.Discard)
}

type recordedEvent struct {
	Topic   string
	Payload json.RawMessage
}

// memStore is an in-memory domain.Store for worker tests. WithinTx runs the
// callback against the same store; atomicity is not simulated, only the
// write sequence is observable.
type memStore struct {
	mu sync.Mutex

	designs  map[string]*domain.Design
	renders  map[string]*domain.Render
	orders   map[string]*domain.Order
	products map[string]*domain.Product
	brands   map[string]*domain.Brand

	assetsByDesign map[string][]domain.Asset
	progress       map[string]domain.ProgressRecord

	renderResults  []domain.RenderResult
	exports        []domain.ExportResult
	bundles        []domain.ProductionBundle
	qualityReports []domain.QualityReport
	validations    map[string]domain.ValidationResult
	optimizations  map[string]domain.OptimizationResult

	events []recordedEvent

	failOutbox bool
}

func newMemStore() *memStore {
	return &memStore{
		designs:        make(map[string]*domain.Design),
		renders:        make(map[string]*domain.Render),
		orders:         make(map[string]*domain.Order),
		products:       make(map[string]*domain.Product),
		brands:         make(map[string]*domain.Brand),
		assetsByDesign: make(map[string][]domain.Asset),
		progress:       make(map[string]domain.ProgressRecord),
		validations:    make(map[string]domain.ValidationResult),
		optimizations:  make(map[string]domain.OptimizationResult),
	}
}

func (s *memStore) Designs() domain.DesignRepository   { return memDesignRepo{s} }
func (s *memStore) Renders() domain.RenderRepository   { return memRenderRepo{s} }
func (s *memStore) Orders() domain.OrderRepository     { return memOrderRepo{s} }
func (s *memStore) Products() domain.ProductRepository { return memProductRepo{s} }
func (s *memStore) Brands() domain.BrandRepository     { return memBrandRepo{s} }
func (s *memStore) Assets() domain.AssetRepository     { return memAssetRepo{s} }
func (s *memStore) Progress() domain.ProgressRepository {
	return memProgressRepo{s}
}
func (s *memStore) Outbox() domain.OutboxRepository { return memOutboxRepo{s} }

func (s *memStore) WithinTx(ctx context.Context, fn func(domain.Store) error) error {
	return fn(s)
}

func (s *memStore) eventsFor(topic string) []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedEvent
	for _, ev := range s.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

type memDesignRepo struct{ s *memStore }

func (r memDesignRepo) GetByID(ctx context.Context, id string) (*domain.Design, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.designs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r memDesignRepo) SetStatus(ctx context.Context, id string, status domain.DesignStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.designs[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = status
	return nil
}

func (r memDesignRepo) Complete(ctx context.Context, id string, meta domain.DesignMetadata) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.designs[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = domain.DesignStatusCompleted
	d.Metadata = meta
	d.Error = ""
	return nil
}

func (r memDesignRepo) Fail(ctx context.Context, id string, reason string, failedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.designs[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = domain.DesignStatusFailed
	d.Error = reason
	d.FailedAt = &failedAt
	return nil
}

func (r memDesignRepo) SaveValidation(ctx context.Context, id string, result domain.ValidationResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.designs[id]; !ok {
		return domain.ErrNotFound
	}
	r.s.validations[id] = result
	return nil
}

func (r memDesignRepo) SaveOptimization(ctx context.Context, id string, result domain.OptimizationResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.designs[id]; !ok {
		return domain.ErrNotFound
	}
	r.s.optimizations[id] = result
	return nil
}

type memRenderRepo struct{ s *memStore }

func (r memRenderRepo) GetByID(ctx context.Context, id string) (*domain.Render, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rend, ok := r.s.renders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *rend
	return &copied, nil
}

func (r memRenderRepo) SetStatus(ctx context.Context, id string, status domain.RenderStatus, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rend, ok := r.s.renders[id]
	if !ok {
		return domain.ErrNotFound
	}
	rend.Status = status
	rend.Error = errMsg
	return nil
}

func (r memRenderRepo) SaveResult(ctx context.Context, result domain.RenderResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.renderResults = append(r.s.renderResults, result)
	return nil
}

func (r memRenderRepo) SaveExport(ctx context.Context, result domain.ExportResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.exports = append(r.s.exports, result)
	return nil
}

type memOrderRepo struct{ s *memStore }

func (r memOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (r memOrderRepo) SetStatus(ctx context.Context, id string, status domain.OrderStatus, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	o.Error = errMsg
	return nil
}

func (r memOrderRepo) AttachBundle(ctx context.Context, id string, bundleURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.BundleURL = bundleURL
	return nil
}

func (r memOrderRepo) AttachInstructions(ctx context.Context, id string, instructionsURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.InstructionsURL = instructionsURL
	return nil
}

func (r memOrderRepo) SaveBundle(ctx context.Context, bundle domain.ProductionBundle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.bundles = append(r.s.bundles, bundle)
	return nil
}

func (r memOrderRepo) SaveQualityReport(ctx context.Context, report domain.QualityReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.qualityReports = append(r.s.qualityReports, report)
	return nil
}

type memProductRepo struct{ s *memStore }

func (r memProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

type memBrandRepo struct{ s *memStore }

func (r memBrandRepo) GetByID(ctx context.Context, id string) (*domain.Brand, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.brands[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

type memAssetRepo struct{ s *memStore }

func (r memAssetRepo) SaveAll(ctx context.Context, assets []domain.Asset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, asset := range assets {
		r.s.assetsByDesign[asset.DesignID] = append(r.s.assetsByDesign[asset.DesignID], asset)
	}
	return nil
}

func (r memAssetRepo) ListByDesignID(ctx context.Context, designID string) ([]domain.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.Asset(nil), r.s.assetsByDesign[designID]...), nil
}

type memProgressRepo struct{ s *memStore }

func (r memProgressRepo) Upsert(ctx context.Context, record domain.ProgressRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.progress[record.JobID] = record
	return nil
}

func (r memProgressRepo) Get(ctx context.Context, jobID string) (*domain.ProgressRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.progress[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

type memOutboxRepo struct{ s *memStore }

func (r memOutboxRepo) Record(ctx context.Context, topic string, payload any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failOutbox {
		return errors.New("outbox unavailable")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.s.events = append(r.s.events, recordedEvent{Topic: topic, Payload: body})
	return nil
}

func (r memOutboxRepo) ListPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	return nil, nil
}

func (r memOutboxRepo) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	return nil
}

func (r memOutboxRepo) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	return nil
}

func (r memOutboxRepo) MarkDead(ctx context.Context, id string, lastError string) error {
	return nil
}

func (r memOutboxRepo) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

var _ domain.Store = (*memStore)(nil)

// Collaborator fakes.

type fakeModerator struct {
	approved bool
	reason   string
	err      error
}

func (m fakeModerator) Moderate(ctx context.Context, text string) (domain.Moderation, error) {
	if m.err != nil {
		return domain.Moderation{}, m.err
	}
	return domain.Moderation{Approved: m.approved, Reason: m.reason}, nil
}

type fakeGenerator struct {
	images           int
	err              error
	blockUntilCancel bool

	lastPrompt   string
	lastStrategy generation.Strategy
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.GenerateRequest, strategy generation.Strategy, brandID string) (*generation.GenerateResult, error) {
	g.lastPrompt = req.Prompt
	g.lastStrategy = strategy
	if g.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	n := g.images
	if n <= 0 {
		n = 1
	}
	images := make([]domain.GeneratedImage, n)
	for i := range images {
		images[i] = domain.GeneratedImage{
			Data:   []byte(fmt.Sprintf("image-%d", i)),
			Format: "image/png",
			Width:  1024,
			Height: 1024,
		}
	}
	return &generation.GenerateResult{
		Images:   images,
		Metadata: map[string]string{"model": "test"},
		Costs:    domain.GenerationCosts{Credits: float64(n), Provider: "test"},
	}, nil
}

// passProcessor returns images untouched.
type passProcessor struct{}

func (passProcessor) Process(img domain.GeneratedImage) (domain.GeneratedImage, error) {
	return img, nil
}

type memUploader struct {
	mu      sync.Mutex
	uploads map[string][]byte
	err     error
}

func newMemUploader() *memUploader {
	return &memUploader{uploads: make(map[string][]byte)}
}

func (u *memUploader) UploadBuffer(ctx context.Context, data []byte, key string, opts storage.UploadOptions) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.uploads[key] = append([]byte(nil), data...)
	return "http://assets.test/" + key, nil
}

func (u *memUploader) Fetch(ctx context.Context, key string) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.uploads[key]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

var (
	_ storage.Uploader = (*memUploader)(nil)
	_ storage.Fetcher  = (*memUploader)(nil)
)

// fakeEngine renders a fixed frame, optionally failing, stalling or
// tracking how many renders run at once.
type fakeEngine struct {
	mu               sync.Mutex
	prepared         int
	rendered         int
	postRuns         int
	failRender       error
	blockUntilCancel bool
	renderDelay      time.Duration
	inFlight         int
	maxInFlight      int
	lastModelKey     string
}

func (e *fakeEngine) PrepareScene(ctx context.Context, req render.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prepared++
	e.lastModelKey = req.ModelKey
	return nil
}

func (e *fakeEngine) Render(ctx context.Context, req render.Request, progress render.Progress) (*render.Output, error) {
	e.mu.Lock()
	e.rendered++
	e.inFlight++
	if e.inFlight > e.maxInFlight {
		e.maxInFlight = e.inFlight
	}
	fail := e.failRender
	block := e.blockUntilCancel
	delay := e.renderDelay
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if fail != nil {
		return nil, fail
	}
	if progress != nil {
		progress(0.5)
		progress(1.0)
	}
	width, height := req.Options.Width, req.Options.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	return &render.Output{Data: []byte("frame"), Format: "image/png", Width: width, Height: height}, nil
}

func (e *fakeEngine) PostProcess(ctx context.Context, out *render.Output) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.postRuns++
	return nil
}
