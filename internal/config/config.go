// Package config handles application configuration: environment variables
// with defaults, an optional YAML overlay, and hot reload of that file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/explab/explab/internal/analyzer"
	apperrors "github.com/explab/explab/internal/errors"
)

// Defaults that are not analyzer settings.
const (
	DefaultHTTPAddr        = "127.0.0.1:8000"
	DefaultOCRAddr         = "localhost:50051"
	DefaultAppName         = "MapleStory Worlds"
	DefaultWindowsAppExe   = "msw.exe"
	DefaultMaxHashDistance = 0
	DefaultOCRUpscale      = 2
)

type Config struct {
	HTTPAddr     string
	OCRAddr      string
	OCREagerInit bool
	// AppName is the window owner to capture: the process name on macOS and
	// Linux, the executable on Windows.
	AppName string
	// MaxHashDistance is the largest perceptual hash distance between two
	// status-bar crops still treated as the same reading. Negative disables
	// the comparison so every frame is recognized.
	MaxHashDistance int
	OCRUpscale      int

	Exp analyzer.Config
	HP  analyzer.Config
	MP  analyzer.Config
}

func Load() *Config {
	return &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", DefaultHTTPAddr),
		OCRAddr:         getEnv("OCR_ADDR", DefaultOCRAddr),
		OCREagerInit:    getEnvBool("OCR_EAGER_INIT", false),
		AppName:         appName(runtime.GOOS),
		MaxHashDistance: getEnvInt("MAX_HASH_DISTANCE", DefaultMaxHashDistance),
		OCRUpscale:      getEnvInt("OCR_UPSCALE", DefaultOCRUpscale),
		Exp: analyzer.Config{
			Interval:         getEnvDuration("EXP_INTERVAL", analyzer.DefaultExpInterval),
			MaxCheckpoints:   getEnvInt("EXP_MAX_CHECKPOINTS", analyzer.DefaultExpMaxCheckpoints),
			MinCheckpoints:   getEnvInt("EXP_MIN_CHECKPOINTS", analyzer.DefaultExpMinCheckpoints),
			OutlierTolerance: getEnvFloat("EXP_OUTLIER_TOLERANCE", analyzer.DefaultOutlierTolerance),
		},
		HP: gaugeFromEnv("HP"),
		MP: gaugeFromEnv("MP"),
	}
}

func gaugeFromEnv(prefix string) analyzer.Config {
	return analyzer.Config{
		Interval:       getEnvDuration(prefix+"_INTERVAL", analyzer.DefaultGaugeInterval),
		MaxCheckpoints: getEnvInt(prefix+"_MAX_CHECKPOINTS", analyzer.DefaultGaugeMaxCheckpoints),
		MinCheckpoints: getEnvInt(prefix+"_MIN_CHECKPOINTS", analyzer.DefaultGaugeMinCheckpoints),
		BatchSize:      getEnvInt(prefix+"_BATCH_SIZE", analyzer.DefaultGaugeBatchSize),
	}
}

func appName(goos string) string {
	if goos == "windows" {
		return getEnv("WINDOWS_APP_EXE", DefaultWindowsAppExe)
	}
	return getEnv("APP_NAME", DefaultAppName)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.AppName == "" {
		return apperrors.New(apperrors.CodeConfigInvalid, "app name is empty")
	}
	if c.OCRUpscale < 1 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "ocr upscale %d < 1", c.OCRUpscale)
	}
	for name, a := range map[string]analyzer.Config{"exp": c.Exp, "hp": c.HP, "mp": c.MP} {
		if err := validateAnalyzer(a); err != nil {
			return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "%s analyzer", name)
		}
	}
	if c.Exp.OutlierTolerance < 0 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "exp outlier tolerance %v < 0", c.Exp.OutlierTolerance)
	}
	return nil
}

func validateAnalyzer(a analyzer.Config) error {
	if a.Interval <= 0 {
		return fmt.Errorf("interval %v must be positive", a.Interval)
	}
	if a.MaxCheckpoints < 1 {
		return fmt.Errorf("max checkpoints %d < 1", a.MaxCheckpoints)
	}
	if a.MinCheckpoints < 1 {
		return fmt.Errorf("min checkpoints %d < 1", a.MinCheckpoints)
	}
	if a.BatchSize < 0 {
		return fmt.Errorf("batch size %d < 0", a.BatchSize)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1"
	}
	return def
}

// getEnvDuration accepts Go durations ("5s") or bare seconds ("5", "0.5").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}
