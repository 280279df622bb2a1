package domain

// JobKind is the closed set of pipeline job types. Dispatch happens over
// this union rather than free-form job names so an unhandled kind surfaces
// as an explicit terminal error instead of a silent no-op.
type JobKind string

const (
	JobKindDesignGenerate JobKind = "design.generate"
	JobKindDesignValidate JobKind = "design.validate"
	JobKindDesignOptimize JobKind = "design.optimize"

	JobKindRender2D      JobKind = "render.2d"
	JobKindRender3D      JobKind = "render.3d"
	JobKindRenderPreview JobKind = "render.preview"
	JobKindRenderExport  JobKind = "render.export"
	JobKindRenderBatch   JobKind = "render.batch"

	JobKindProductionBundle       JobKind = "production.bundle"
	JobKindQualityControl         JobKind = "production.quality"
	JobKindTrackProduction        JobKind = "production.track"
	JobKindManufacturingInstructs JobKind = "production.instructions"

	JobKindOutboxDrain JobKind = "outbox.drain"
	JobKindOutboxPrune JobKind = "outbox.prune"
)

// Channel names pipeline jobs are delivered on.
const (
	ChannelDesign     = "design"
	ChannelRender     = "render"
	ChannelProduction = "production"
	ChannelOutbox     = "outbox"
)

// DesignGenerationJob is the immutable payload for design.generate,
// design.validate and design.optimize jobs.
type DesignGenerationJob struct {
	DesignID  string              `json:"designId"`
	ProductID string              `json:"productId"`
	BrandID   string              `json:"brandId"`
	UserID    string              `json:"userId"`
	Prompt    string              `json:"prompt"`
	Options   DesignOptions       `json:"options"`
	Rules     *CustomizationRules `json:"rules,omitempty"`
	Priority  int                 `json:"priority"`
}

// RenderJob is the immutable payload for single render jobs.
type RenderJob struct {
	RenderID  string        `json:"renderId"`
	ProductID string        `json:"productId"`
	DesignID  string        `json:"designId"`
	Options   RenderOptions `json:"options"`
	Priority  int           `json:"priority"`
	Type      RenderType    `json:"type"`
}

// BatchRenderJob fans a list of render jobs out with bounded concurrency.
type BatchRenderJob struct {
	BatchID string      `json:"batchId"`
	Renders []RenderJob `json:"renders"`
}

// ProductionJob is the immutable payload for all production-channel jobs.
type ProductionJob struct {
	OrderID           string            `json:"orderId"`
	BrandID           string            `json:"brandId"`
	DesignID          string            `json:"designId"`
	ProductID         string            `json:"productId"`
	Quantity          int               `json:"quantity"`
	Options           ProductionOptions `json:"options"`
	FactoryWebhookURL string            `json:"factoryWebhookUrl,omitempty"`
}

// ProductionOptions tunes bundle assembly and quality gates.
type ProductionOptions struct {
	QualityLevel QualityLevel `json:"qualityLevel,omitempty"`
	RushOrder    bool         `json:"rushOrder,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}
