// Package ocr defines the text-recognition capability consumed by the
// checkpoint parsers. Engines are constructed explicitly and passed in;
// there is no package-level reader.
package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// BoundingBox is the axis-aligned box of a recognized fragment, in pixels of
// the image that was submitted.
type BoundingBox struct {
	XMin int
	YMin int
	XMax int
	YMax int
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.XMin, b.YMin, b.XMax, b.YMax)
}

// TextResult is one recognized text fragment.
type TextResult struct {
	Text       string
	Confidence float64
	Box        BoundingBox
}

// Options tunes a recognition call.
type Options struct {
	// Allowlist restricts recognized characters when the engine supports it.
	Allowlist string
}

// Engine recognizes text in images.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, opts Options) ([]TextResult, error)
	RecognizeBatch(ctx context.Context, imgs []image.Image, opts Options) ([][]TextResult, error)
}

// Texts returns the raw text of every fragment, for logging.
func Texts(results []TextResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Text
	}
	return strings.Join(parts, ", ")
}
