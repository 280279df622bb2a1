package render

import (
	"context"

	"pipeline/internal/domain"
)

// Progress reports fractional completion (0..1) of the rendering stage so
// the worker can map it onto its persisted progress window.
type Progress func(fraction float64)

// Request describes one render invocation.
type Request struct {
	RenderID  string
	DesignID  string
	ProductID string
	Assets    []domain.Asset
	Options   domain.RenderOptions
	ModelKey  string
}

// Output is a finished frame produced by an engine.
type Output struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Engine is the rendering collaborator. PrepareScene and PostProcess are
// only invoked on the 3D path.
type Engine interface {
	PrepareScene(ctx context.Context, req Request) error
	Render(ctx context.Context, req Request, progress Progress) (*Output, error)
	PostProcess(ctx context.Context, out *Output) error
}

// ExportOutput is a packaged asset set produced by an Exporter.
type ExportOutput struct {
	Data        []byte
	Format      string
	ContentType string
	AssetCount  int
}

// Exporter packages a resolved asset set into a deliverable format.
type Exporter interface {
	Export(ctx context.Context, assets []domain.Asset, format string) (*ExportOutput, error)
}
