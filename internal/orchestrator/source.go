package orchestrator

import (
	"context"
	"image"
	_ "image/jpeg" // JPEG decoder
	"sync/atomic"

	apperrors "github.com/explab/explab/internal/errors"
	"github.com/explab/explab/internal/imgproc"
	"github.com/explab/explab/internal/ocr"
	"github.com/explab/explab/internal/orchestrator/region"
	"github.com/explab/explab/internal/screen"
)

// source turns captured frames into region crops and recognized text for
// one tracker. Each tracker owns its own capturer and hash state.
type source struct {
	capture screen.Capturer
	engine  ocr.Engine
	regions *region.Detector
	upscale atomic.Int64
}

func newSource(capture screen.Capturer, engine ocr.Engine, maxHashDistance, upscale int) *source {
	s := &source{
		capture: capture,
		engine:  engine,
		regions: region.NewDetector(maxHashDistance),
	}
	s.upscale.Store(int64(upscale))
	return s
}

// grab captures a frame. changed is false, with a nil image, when the frame
// is byte-identical to the previous capture and force is not set.
func (s *source) grab(force bool) (img image.Image, changed bool, err error) {
	data, changed := s.capture.Capture()
	if data == nil {
		return nil, false, apperrors.New(apperrors.CodeCaptureFailed, "window capture failed")
	}
	if !changed && !force {
		return nil, false, nil
	}
	img, err = imgproc.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return img, true, nil
}

func (s *source) prepare(crop image.Image, r imgproc.Region) image.Image {
	return imgproc.Prepare(crop, r, int(s.upscale.Load()))
}

func (s *source) recognize(ctx context.Context, crop image.Image, r imgproc.Region, allowlist string) ([]ocr.TextResult, error) {
	return s.engine.Recognize(ctx, s.prepare(crop, r), ocr.Options{Allowlist: allowlist})
}

func (s *source) close() {
	s.capture.Close()
}
