package resilience

import "time"

// Circuit breaker configuration constants
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// OCR runs every tick, so the breaker trips and retries quickly.
	OCRThreshold         = 3
	OCRResetTimeout      = 10 * time.Second
	OCRHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // used in logs
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns general-purpose defaults.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// OCRConfig returns settings for the per-tick OCR path.
func OCRConfig() Config {
	return Config{
		Name:              "ocr",
		Threshold:         OCRThreshold,
		ResetTimeout:      OCRResetTimeout,
		HalfOpenSuccesses: OCRHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
