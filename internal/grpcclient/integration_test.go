package grpcclient

import (
	"context"
	"image"
	"os"
	"testing"
	"time"

	"github.com/explab/explab/internal/checkpoint"
	"github.com/explab/explab/internal/ocr"
)

// TestIntegrationRecognize talks to a running OCR service. Set
// EXPLAB_OCR_ADDR (for example localhost:50051) to run it.
func TestIntegrationRecognize(t *testing.T) {
	addr := os.Getenv("EXPLAB_OCR_ADDR")
	if addr == "" {
		t.Skip("set EXPLAB_OCR_ADDR to run against a live OCR service")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine := ocr.NewLazy(Factory(DefaultConfig(addr), true))
	if err := engine.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	// A blank crop has no text; the call itself must still succeed.
	blank := image.NewGray(image.Rect(0, 0, 200, 40))
	results, err := engine.Recognize(ctx, blank, ocr.Options{Allowlist: checkpoint.GaugeAllowlist})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	for _, r := range results {
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("confidence out of range: %+v", r)
		}
	}
}
