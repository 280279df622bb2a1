package generation

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"pipeline/internal/domain"
)

func TestSelectStrategyPreviewWins(t *testing.T) {
	s := SelectStrategy(domain.DesignOptions{PreviewMode: true, Exploration: true, Quality: domain.QualityUltra})
	if s.Stage != StagePreview {
		t.Fatalf("stage = %s, want preview", s.Stage)
	}
	if s.Quality != domain.QualityDraft {
		t.Fatalf("preview quality = %s, want draft", s.Quality)
	}
	if s.Variants != 1 {
		t.Fatalf("preview variants = %d, want 1", s.Variants)
	}
}

func TestSelectStrategyExploration(t *testing.T) {
	s := SelectStrategy(domain.DesignOptions{Exploration: true})
	if s.Stage != StageExploration {
		t.Fatalf("stage = %s, want exploration", s.Stage)
	}
	if s.Variants != 3 {
		t.Fatalf("default exploration variants = %d, want 3", s.Variants)
	}

	s = SelectStrategy(domain.DesignOptions{Exploration: true, Variants: 5})
	if s.Variants != 5 {
		t.Fatalf("explicit variants = %d, want 5", s.Variants)
	}
}

func TestSelectStrategyDefaults(t *testing.T) {
	s := SelectStrategy(domain.DesignOptions{})
	if s.Stage != StageQuality {
		t.Fatalf("stage = %s, want quality", s.Stage)
	}
	if s.Quality != domain.QualityStandard {
		t.Fatalf("quality = %s, want standard", s.Quality)
	}
}

func TestModelForProviderOverride(t *testing.T) {
	c, err := NewClient(Options{Model: "studio-image-2"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := c.modelFor(Strategy{Provider: "partner-model"}); got != "partner-model" {
		t.Fatalf("modelFor = %s, want provider override", got)
	}
	if got := c.modelFor(Strategy{Stage: StagePreview}); got != "studio-image-2-fast" {
		t.Fatalf("preview model = %s, want fast variant", got)
	}
	if got := c.modelFor(Strategy{Stage: StageQuality}); got != "studio-image-2" {
		t.Fatalf("quality model = %s", got)
	}
}

func TestSyntheticModerationDenyList(t *testing.T) {
	c, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	verdict, err := c.Moderate(context.Background(), "a tasteful mountain landscape")
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if !verdict.Approved {
		t.Fatalf("benign prompt rejected: %+v", verdict)
	}

	verdict, err = c.Moderate(context.Background(), "Counterfeit brand logo")
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if verdict.Approved {
		t.Fatal("denied term approved")
	}
	if verdict.Reason == "" {
		t.Fatal("rejection carries no reason")
	}
}

func TestSyntheticGenerationDeterministic(t *testing.T) {
	c, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	req := GenerateRequest{RequestID: "design-1", Prompt: "mountain sunrise", Width: 256, Height: 256}
	strategy := Strategy{Stage: StageQuality, Variants: 2}

	first, err := c.Generate(context.Background(), req, strategy, "brand-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := c.Generate(context.Background(), req, strategy, "brand-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(first.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(first.Images))
	}
	if !bytes.Equal(first.Images[0].Data, second.Images[0].Data) {
		t.Fatal("same request produced different synthetic output")
	}
	if bytes.Equal(first.Images[0].Data, first.Images[1].Data) {
		t.Fatal("variants are not distinct")
	}

	img, err := png.Decode(bytes.NewReader(first.Images[0].Data))
	if err != nil {
		t.Fatalf("synthetic output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 256 {
		t.Fatalf("dimensions = %v, want 256x256", img.Bounds())
	}
	if first.Metadata["mode"] != "synthetic" {
		t.Fatalf("metadata = %v, missing synthetic marker", first.Metadata)
	}
}

func TestPNGNormalizerFillsDimensions(t *testing.T) {
	c, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	result, err := c.Generate(context.Background(), GenerateRequest{RequestID: "r", Width: 64, Height: 48}, Strategy{}, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	src := result.Images[0]
	src.Width, src.Height = 0, 0
	normalized, err := NewPNGNormalizer().Process(src)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if normalized.Width != 64 || normalized.Height != 48 {
		t.Fatalf("normalized dimensions = %dx%d, want 64x48", normalized.Width, normalized.Height)
	}
	if normalized.Format != "image/png" {
		t.Fatalf("format = %s", normalized.Format)
	}
}

func TestPNGNormalizerRejectsGarbage(t *testing.T) {
	_, err := NewPNGNormalizer().Process(domain.GeneratedImage{Data: []byte("not an image")})
	if err == nil {
		t.Fatal("undecodable image accepted")
	}
}
