package domain

import "time"

// DesignStatus enumerates the design lifecycle states.
type DesignStatus string

const (
	DesignStatusDraft      DesignStatus = "DRAFT"
	DesignStatusProcessing DesignStatus = "PROCESSING"
	DesignStatusCompleted  DesignStatus = "COMPLETED"
	DesignStatusFailed     DesignStatus = "FAILED"
)

// DesignQuality enumerates supported render quality tiers.
type DesignQuality string

const (
	QualityDraft    DesignQuality = "draft"
	QualityStandard DesignQuality = "standard"
	QualityHigh     DesignQuality = "high"
	QualityUltra    DesignQuality = "ultra"
)

// Zone is one customizable region of a product surface.
type Zone struct {
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DesignOptions carries the customization parameters attached to a design.
type DesignOptions struct {
	Zones       []Zone        `json:"zones,omitempty"`
	Effects     []string      `json:"effects,omitempty"`
	Quality     DesignQuality `json:"quality,omitempty"`
	PreviewMode bool          `json:"previewMode,omitempty"`
	Exploration bool          `json:"exploration,omitempty"`
	Provider    string        `json:"provider,omitempty"`
	Occasion    string        `json:"occasion,omitempty"`
	Style       string        `json:"style,omitempty"`
	Variants    int           `json:"variants,omitempty"`
}

// Design is the entity a design-generation job operates on. Status is
// mutated only by the design worker.
type Design struct {
	ID        string
	UserID    string
	BrandID   string
	ProductID string
	Prompt    string
	Status    DesignStatus
	Options   DesignOptions
	Metadata  DesignMetadata
	Error     string
	FailedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DesignMetadata captures what a completed generation run produced.
type DesignMetadata struct {
	GenerationTime   time.Duration     `json:"generationTime"`
	AIMetadata       map[string]string `json:"aiMetadata,omitempty"`
	Costs            GenerationCosts   `json:"costs"`
	ValidationResult *ValidationResult `json:"validationResult,omitempty"`
	ModerationResult *Moderation       `json:"moderationResult,omitempty"`
}

// GenerationCosts tracks provider spend for a single generation call.
type GenerationCosts struct {
	Credits  float64 `json:"credits"`
	Provider string  `json:"provider,omitempty"`
}

// Moderation is the verdict returned by the moderation collaborator.
type Moderation struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// ValidationResult records the outcome of a rules pass over design options.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// OptimizationResult is the output of the design optimizer.
type OptimizationResult struct {
	Complexity        float64       `json:"complexity"`
	EstimatedRenderMS int64         `json:"estimatedRenderMs"`
	Options           DesignOptions `json:"options"`
	Suggestions       []string      `json:"suggestions,omitempty"`
}
