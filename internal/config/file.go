package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/explab/explab/internal/analyzer"
	apperrors "github.com/explab/explab/internal/errors"
)

// fileConfig mirrors Config for YAML. Pointer fields distinguish "absent"
// from zero so only keys present in the file override the environment.
type fileConfig struct {
	HTTPAddr        *string       `yaml:"http_addr"`
	OCRAddr         *string       `yaml:"ocr_addr"`
	OCREagerInit    *bool         `yaml:"ocr_eager_init"`
	AppName         *string       `yaml:"app_name"`
	MaxHashDistance *int          `yaml:"max_hash_distance"`
	OCRUpscale      *int          `yaml:"ocr_upscale"`
	Exp             *fileAnalyzer `yaml:"exp"`
	HP              *fileAnalyzer `yaml:"hp"`
	MP              *fileAnalyzer `yaml:"mp"`
}

type fileAnalyzer struct {
	Interval         *time.Duration `yaml:"interval"`
	MaxCheckpoints   *int           `yaml:"max_checkpoints"`
	MinCheckpoints   *int           `yaml:"min_checkpoints"`
	BatchSize        *int           `yaml:"batch_size"`
	OutlierTolerance *float64       `yaml:"outlier_tolerance"`
}

// LoadFile loads the environment configuration and overlays the YAML file
// at path on top of it. The result is validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "read %s", path)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "parse %s", path)
	}
	cfg := Load()
	fc.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) {
	set(&cfg.HTTPAddr, fc.HTTPAddr)
	set(&cfg.OCRAddr, fc.OCRAddr)
	set(&cfg.OCREagerInit, fc.OCREagerInit)
	set(&cfg.AppName, fc.AppName)
	set(&cfg.MaxHashDistance, fc.MaxHashDistance)
	set(&cfg.OCRUpscale, fc.OCRUpscale)
	fc.Exp.apply(&cfg.Exp)
	fc.HP.apply(&cfg.HP)
	fc.MP.apply(&cfg.MP)
}

func (fa *fileAnalyzer) apply(a *analyzer.Config) {
	if fa == nil {
		return
	}
	set(&a.Interval, fa.Interval)
	set(&a.MaxCheckpoints, fa.MaxCheckpoints)
	set(&a.MinCheckpoints, fa.MinCheckpoints)
	set(&a.BatchSize, fa.BatchSize)
	set(&a.OutlierTolerance, fa.OutlierTolerance)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
