package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// SyntheticEngine renders deterministic composites locally. It stands in
// for the real render farm in development, CI and tests while keeping
// dimensions, formats and progress reporting faithful.
type SyntheticEngine struct{}

// NewSyntheticEngine creates the local render engine.
func NewSyntheticEngine() *SyntheticEngine {
	return &SyntheticEngine{}
}

// PrepareScene validates that a 3D render has a model to load.
func (e *SyntheticEngine) PrepareScene(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.ModelKey == "" {
		return fmt.Errorf("render %s: no 3d model to prepare", req.RenderID)
	}
	return nil
}

// Render produces a deterministic frame sized per the request options.
func (e *SyntheticEngine) Render(ctx context.Context, req Request, progress Progress) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := req.Options.Width, req.Options.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}

	seed := renderSeed(req.RenderID, req.DesignID, req.ModelKey)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{seedColor(seed, 0)}, image.Point{}, draw.Src)

	// One horizontal band per input asset keeps output sensitive to the
	// resolved asset set.
	bands := len(req.Assets) + 1
	bandHeight := height / (bands * 2)
	if bandHeight < 8 {
		bandHeight = 8
	}
	for i := 0; i < bands; i++ {
		y := i * bandHeight * 2
		if y >= height {
			break
		}
		bottom := y + bandHeight
		if bottom > height {
			bottom = height
		}
		draw.Draw(img, image.Rect(0, y, width, bottom), &image.Uniform{seedColor(seed, i+1)}, image.Point{}, draw.Over)
		if progress != nil {
			progress(float64(i+1) / float64(bands))
		}
	}

	format := req.Options.Format
	if format == "" {
		format = "image/png"
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode render output: %w", err)
	}
	return &Output{Data: buf.Bytes(), Format: format, Width: width, Height: height}, nil
}

// PostProcess applies the 3D finishing pass. The synthetic engine only
// verifies it has something to finish.
func (e *SyntheticEngine) PostProcess(ctx context.Context, out *Output) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if out == nil || len(out.Data) == 0 {
		return fmt.Errorf("post-process: empty render output")
	}
	return nil
}

func renderSeed(parts ...string) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(part))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func seedColor(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 3) % len(seed)
	segment := doubled[start : start+6]
	var vals [3]uint8
	for i := 0; i < 3; i++ {
		var v uint8
		for k := 0; k < 2; k++ {
			c := segment[i*2+k]
			v <<= 4
			switch {
			case c >= '0' && c <= '9':
				v |= c - '0'
			case c >= 'a' && c <= 'f':
				v |= c - 'a' + 10
			}
		}
		vals[i] = v
	}
	return color.RGBA{R: vals[0], G: vals[1], B: vals[2], A: 255}
}

var _ Engine = (*SyntheticEngine)(nil)
