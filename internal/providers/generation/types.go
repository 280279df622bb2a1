package generation

import (
	"context"

	"pipeline/internal/domain"
)

// Stage names a generation strategy tier.
type Stage string

const (
	StagePreview     Stage = "preview"
	StageExploration Stage = "exploration"
	StageQuality     Stage = "quality"
)

// Strategy is the set of parameters used to route a generation request to
// an appropriate backend.
type Strategy struct {
	Stage    Stage
	Quality  domain.DesignQuality
	Provider string
	Variants int
}

// SelectStrategy derives the generation strategy from design options.
// Preview mode wins over exploration; an explicit provider is honored in
// every tier.
func SelectStrategy(opts domain.DesignOptions) Strategy {
	s := Strategy{Stage: StageQuality, Quality: opts.Quality, Provider: opts.Provider, Variants: 1}
	if s.Quality == "" {
		s.Quality = domain.QualityStandard
	}
	switch {
	case opts.PreviewMode:
		s.Stage = StagePreview
		s.Quality = domain.QualityDraft
	case opts.Exploration:
		s.Stage = StageExploration
		s.Variants = opts.Variants
		if s.Variants < 2 {
			s.Variants = 3
		}
	}
	return s
}

// GenerateRequest describes one normalized generation call.
type GenerateRequest struct {
	RequestID string
	Prompt    string
	Width     int
	Height    int
	Zones     []domain.Zone
	Effects   []string
}

// GenerateResult is the normalized provider response.
type GenerateResult struct {
	Images   []domain.GeneratedImage
	Metadata map[string]string
	Costs    domain.GenerationCosts
}

// Moderator screens prompt text before any generation spend.
type Moderator interface {
	Moderate(ctx context.Context, text string) (domain.Moderation, error)
}

// Generator produces design imagery for a brand according to a strategy.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, strategy Strategy, brandID string) (*GenerateResult, error)
}
