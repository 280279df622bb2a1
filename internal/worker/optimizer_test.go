package worker

import (
	"testing"

	"pipeline/internal/domain"
)

func TestOptimizeOptionsComplexityClipped(t *testing.T) {
	opts := domain.DesignOptions{
		Zones:   make([]domain.Zone, 30),
		Effects: make([]string, 20),
	}
	got := OptimizeOptions(opts)
	if got.Complexity != 10 {
		t.Fatalf("complexity = %v, want clipped to 10", got.Complexity)
	}
	if got.EstimatedRenderMS != 20000 {
		t.Fatalf("estimate = %dms, want 20000", got.EstimatedRenderMS)
	}
}

func TestOptimizeOptionsTrimsEffects(t *testing.T) {
	opts := domain.DesignOptions{
		Zones:   make([]domain.Zone, 16),
		Effects: []string{"a", "b", "c", "d", "e", "f"},
	}
	got := OptimizeOptions(opts)
	if len(got.Options.Effects) != 3 {
		t.Fatalf("effects after trim = %d, want 3", len(got.Options.Effects))
	}
	if len(opts.Effects) != 6 {
		t.Fatal("optimizer mutated its input")
	}
	if len(got.Suggestions) == 0 {
		t.Fatal("trimming produced no suggestion")
	}
}

func TestOptimizeOptionsDowngradesUltra(t *testing.T) {
	opts := domain.DesignOptions{
		Zones:   make([]domain.Zone, 12),
		Quality: domain.QualityUltra,
	}
	got := OptimizeOptions(opts)
	if got.Options.Quality != domain.QualityHigh {
		t.Fatalf("quality = %s, want high", got.Options.Quality)
	}
}

func TestOptimizeOptionsLeavesSimpleDesignsAlone(t *testing.T) {
	opts := domain.DesignOptions{
		Zones:   make([]domain.Zone, 2),
		Effects: []string{"glitter"},
		Quality: domain.QualityUltra,
	}
	got := OptimizeOptions(opts)
	if got.Complexity != 1.3 {
		t.Fatalf("complexity = %v, want 1.3", got.Complexity)
	}
	if got.Options.Quality != domain.QualityUltra {
		t.Fatalf("simple design quality = %s, want untouched ultra", got.Options.Quality)
	}
	if len(got.Suggestions) != 0 {
		t.Fatalf("suggestions = %v, want none", got.Suggestions)
	}
}

func TestValidateOptionsReportsEveryViolation(t *testing.T) {
	rules := domain.CustomizationRules{
		MaxZones:         2,
		MaxEffects:       1,
		MinPromptLength:  10,
		AllowedQualities: []domain.DesignQuality{domain.QualityStandard},
		AllowedEffects:   []string{"glitter"},
	}
	opts := domain.DesignOptions{
		Zones:   make([]domain.Zone, 3),
		Effects: []string{"glitter", "chrome"},
		Quality: domain.QualityUltra,
	}
	violations := ValidateOptions("short", opts, rules)
	if len(violations) != 5 {
		t.Fatalf("violations = %d (%v), want 5", len(violations), violations)
	}
}

func TestValidateOptionsAcceptsCompliantDesign(t *testing.T) {
	rules := domain.CustomizationRules{MaxZones: 3, MaxEffects: 2, MinPromptLength: 5}
	opts := domain.DesignOptions{
		Zones:   make([]domain.Zone, 2),
		Effects: []string{"glitter"},
		Quality: domain.QualityHigh,
	}
	if violations := ValidateOptions("long enough prompt", opts, rules); len(violations) != 0 {
		t.Fatalf("violations = %v, want none", violations)
	}
}
