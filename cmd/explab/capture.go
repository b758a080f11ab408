package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/explab/explab/internal/checkpoint"
	apperrors "github.com/explab/explab/internal/errors"
	"github.com/explab/explab/internal/grpcclient"
	"github.com/explab/explab/internal/imgproc"
	"github.com/explab/explab/internal/ocr"
	"github.com/explab/explab/internal/screen"
)

// reading is one line of capture output.
type reading struct {
	Region string   `json:"region"`
	Texts  []string `json:"texts"`
	Level  *int     `json:"level,omitempty"`
	Exp    *int64   `json:"exp,omitempty"`
	Ratio  *float64 `json:"ratio,omitempty"`
	// Current and Total are set for hp and mp.
	Current *int64 `json:"current,omitempty"`
	Total   *int64 `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`
}

var allowlists = map[imgproc.Region]string{
	imgproc.RegionLevel: checkpoint.LevelAllowlist,
	imgproc.RegionExp:   checkpoint.ExpAllowlist,
	imgproc.RegionHP:    checkpoint.GaugeAllowlist,
	imgproc.RegionMP:    checkpoint.GaugeAllowlist,
}

func runCapture(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	capturer := screen.New(cfg.AppName)
	defer capturer.Close()
	data := capturer.CaptureAlways()
	if data == nil {
		return apperrors.Newf(apperrors.CodeCaptureFailed, "could not capture window %q", cfg.AppName)
	}
	frame, err := imgproc.Decode(data)
	if err != nil {
		return err
	}

	engine := ocr.NewLazy(grpcclient.Factory(grpcclient.DefaultConfig(cfg.OCRAddr), true))
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(saveDir, "frame.png"), data, 0o644); err != nil {
			return err
		}
	}

	return captureRegions(ctx, cmd.OutOrStdout(), frame, engine, cfg.OCRUpscale)
}

// captureRegions recognizes every status-bar region of frame and writes one
// JSON reading per region to w.
func captureRegions(ctx context.Context, w io.Writer, frame image.Image, engine ocr.Engine, upscale int) error {
	enc := json.NewEncoder(w)
	for _, r := range []imgproc.Region{imgproc.RegionLevel, imgproc.RegionExp, imgproc.RegionHP, imgproc.RegionMP} {
		prepared := imgproc.ForOCR(frame, r, upscale)
		if saveDir != "" {
			if err := savePNG(filepath.Join(saveDir, r.String()+".png"), prepared); err != nil {
				return err
			}
		}

		out := reading{Region: r.String()}
		results, err := engine.Recognize(ctx, prepared, ocr.Options{Allowlist: allowlists[r]})
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeOCRInitFailed) {
				return err
			}
			out.Error = err.Error()
		} else {
			parseReading(&out, r, results)
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func parseReading(out *reading, r imgproc.Region, results []ocr.TextResult) {
	for _, res := range results {
		out.Texts = append(out.Texts, res.Text)
	}
	var err error
	switch r {
	case imgproc.RegionLevel:
		var level int
		if level, err = checkpoint.ParseLevel(results); err == nil {
			out.Level = &level
		}
	case imgproc.RegionExp:
		var exp int64
		var ratio float64
		if exp, ratio, err = checkpoint.ParseExp(results); err == nil {
			out.Exp, out.Ratio = &exp, &ratio
		}
	default:
		var current, total int64
		if current, total, err = checkpoint.ParseGauge(results); err == nil {
			out.Current, out.Total = &current, &total
		}
	}
	if err != nil {
		out.Error = err.Error()
	}
}

func savePNG(path string, img image.Image) error {
	data, err := imgproc.EncodePNG(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
