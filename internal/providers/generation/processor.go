package generation

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"pipeline/internal/domain"
)

// PostProcessor normalizes generated images before upload. Failures are
// best-effort for callers: the design worker falls back to the unprocessed
// image rather than aborting the job.
type PostProcessor interface {
	Process(img domain.GeneratedImage) (domain.GeneratedImage, error)
}

// PNGNormalizer re-encodes every image as PNG with known dimensions so
// downstream render and export stages never see an undecodable asset.
type PNGNormalizer struct{}

// NewPNGNormalizer creates the default post-processor.
func NewPNGNormalizer() *PNGNormalizer {
	return &PNGNormalizer{}
}

// Process decodes and re-encodes the image, filling in measured dimensions.
func (p *PNGNormalizer) Process(src domain.GeneratedImage) (domain.GeneratedImage, error) {
	decoded, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return src, fmt.Errorf("decode generated image: %w", err)
	}
	bounds := decoded.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, decoded, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return src, fmt.Errorf("encode normalized image: %w", err)
	}
	return domain.GeneratedImage{
		Data:   buf.Bytes(),
		Format: "image/png",
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

var _ PostProcessor = (*PNGNormalizer)(nil)
