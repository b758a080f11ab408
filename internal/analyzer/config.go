// Package analyzer derives rate statistics from bounded windows of
// checkpoints: experience per minute with a time-to-next-level projection,
// and health or mana lost per minute.
//
// Analyzers are not safe for concurrent use. Callers serialize access.
package analyzer

import "time"

// Experience analyzer defaults.
const (
	DefaultExpInterval       = 5 * time.Second
	DefaultExpMaxCheckpoints = 720
	DefaultExpMinCheckpoints = 2
)

// Health/mana analyzer defaults.
const (
	DefaultGaugeInterval       = 1 * time.Second
	DefaultGaugeMaxCheckpoints = 3600
	DefaultGaugeMinCheckpoints = 10
	DefaultGaugeBatchSize      = 5
)

// Config holds per-kind analyzer settings.
type Config struct {
	// Interval is the sampling period used by the scheduler. Not used by the
	// analyzers themselves.
	Interval time.Duration
	// MaxCheckpoints caps the window; the oldest checkpoint is evicted first.
	MaxCheckpoints int
	// MinCheckpoints is the population required before a result is produced.
	MinCheckpoints int
	// BatchSize is how many frames the capture pipeline OCRs together.
	// Health and mana only.
	BatchSize int
	// OutlierTolerance is the relative deviation from the per-level median
	// implied total above which a checkpoint is untrusted. Experience only.
	OutlierTolerance float64
}

// DefaultExpConfig returns the experience analyzer defaults.
func DefaultExpConfig() Config {
	return Config{
		Interval:         DefaultExpInterval,
		MaxCheckpoints:   DefaultExpMaxCheckpoints,
		MinCheckpoints:   DefaultExpMinCheckpoints,
		OutlierTolerance: DefaultOutlierTolerance,
	}
}

// DefaultGaugeConfig returns the health/mana analyzer defaults.
func DefaultGaugeConfig() Config {
	return Config{
		Interval:       DefaultGaugeInterval,
		MaxCheckpoints: DefaultGaugeMaxCheckpoints,
		MinCheckpoints: DefaultGaugeMinCheckpoints,
		BatchSize:      DefaultGaugeBatchSize,
	}
}

func (c Config) capacity() int {
	if c.MaxCheckpoints < 1 {
		return 1
	}
	return c.MaxCheckpoints
}
