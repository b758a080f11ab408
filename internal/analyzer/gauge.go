package analyzer

import (
	"time"

	"github.com/explab/explab/internal/checkpoint"
)

// GaugeAnalyzer tracks health or mana loss over a sliding window.
type GaugeAnalyzer struct {
	kind   checkpoint.Kind
	cfg    Config
	window window[checkpoint.Gauge]
	now    func() time.Time
}

// NewGaugeAnalyzer creates a health or mana analyzer.
func NewGaugeAnalyzer(kind checkpoint.Kind, cfg Config) *GaugeAnalyzer {
	return &GaugeAnalyzer{kind: kind, cfg: cfg, now: time.Now}
}

// Kind returns the tracked resource.
func (a *GaugeAnalyzer) Kind() checkpoint.Kind { return a.kind }

// Config returns the current settings.
func (a *GaugeAnalyzer) Config() Config { return a.cfg }

// SetConfig replaces the settings. A smaller capacity trims the window from
// the oldest side immediately.
func (a *GaugeAnalyzer) SetConfig(cfg Config) {
	a.cfg = cfg
	a.window.trim(cfg.capacity())
}

// Reset drops every checkpoint.
func (a *GaugeAnalyzer) Reset() { a.window.reset() }

// AddCheckpoint appends cp, evicting the oldest checkpoint at capacity.
func (a *GaugeAnalyzer) AddCheckpoint(cp checkpoint.Gauge) {
	a.window.push(cp, a.cfg.capacity())
}

// Len returns the number of checkpoints held.
func (a *GaugeAnalyzer) Len() int { return a.window.len() }

// Checkpoints returns a copy of the window, oldest first.
func (a *GaugeAnalyzer) Checkpoints() []checkpoint.Gauge { return a.window.snapshot() }

// Result computes the current snapshot. An empty window returns
// ErrNoCheckpoints; too few checkpoints or an undefined rate return
// StatusNotEnoughData with a nil error.
func (a *GaugeAnalyzer) Result() (GaugeResult, error) {
	last, ok := a.window.last()
	if !ok {
		return GaugeResult{Status: StatusEmpty}, ErrNoCheckpoints
	}
	if a.window.len() < a.cfg.MinCheckpoints {
		return GaugeResult{Status: StatusNotEnoughData}, nil
	}
	lost, ok := a.lostPerMinute()
	if !ok {
		return GaugeResult{Status: StatusNotEnoughData}, nil
	}
	return GaugeResult{
		Status:        StatusReady,
		Current:       last.Current,
		Total:         last.Total,
		LostPerMinute: lost,
		ComputedAt:    a.now(),
	}, nil
}

// lostPerMinute sums decreases between consecutive checkpoints (increases
// are ignored) over the elapsed time of the whole window, idle pairs
// included.
func (a *GaugeAnalyzer) lostPerMinute() (float64, bool) {
	cps := a.window.items
	if len(cps) < 2 {
		return 0, false
	}
	var lost int64
	var elapsed time.Duration
	for i := 1; i < len(cps); i++ {
		prev, cur := cps[i-1], cps[i]
		if cur.Current < prev.Current {
			lost += prev.Current - cur.Current
		}
		elapsed += cur.Timestamp.Sub(prev.Timestamp)
	}
	if elapsed <= 0 {
		return 0, false
	}
	minutes := elapsed.Minutes()
	if minutes == 0 {
		return 0, true
	}
	return float64(lost) / minutes, true
}
