package analyzer

import (
	"math"
	"time"

	"github.com/explab/explab/internal/checkpoint"
)

// ExpAnalyzer tracks experience over a sliding window and projects the time
// to the next level. Every insertion re-runs the outlier filter over the
// whole window, so a checkpoint's trust can change as siblings arrive.
type ExpAnalyzer struct {
	cfg      Config
	window   window[checkpoint.Exp]
	validity []bool
	now      func() time.Time
}

// NewExpAnalyzer creates an experience analyzer.
func NewExpAnalyzer(cfg Config) *ExpAnalyzer {
	return &ExpAnalyzer{cfg: cfg, now: time.Now}
}

// Config returns the current settings.
func (a *ExpAnalyzer) Config() Config { return a.cfg }

// SetConfig replaces the settings. A smaller capacity trims the window from
// the oldest side immediately.
func (a *ExpAnalyzer) SetConfig(cfg Config) {
	a.cfg = cfg
	if a.window.trim(cfg.capacity()) > 0 {
		a.revalidate()
	}
}

// Reset drops every checkpoint.
func (a *ExpAnalyzer) Reset() {
	a.window.reset()
	a.validity = a.validity[:0]
}

// AddCheckpoint appends cp, evicting the oldest checkpoint at capacity.
func (a *ExpAnalyzer) AddCheckpoint(cp checkpoint.Exp) {
	a.window.push(cp, a.cfg.capacity())
	a.revalidate()
}

func (a *ExpAnalyzer) revalidate() {
	tol := a.cfg.OutlierTolerance
	if tol <= 0 {
		tol = DefaultOutlierTolerance
	}
	a.validity = ValidateExp(a.window.items, tol)
}

// Len returns the number of checkpoints held.
func (a *ExpAnalyzer) Len() int { return a.window.len() }

// Checkpoints returns a copy of the window, oldest first.
func (a *ExpAnalyzer) Checkpoints() []checkpoint.Exp { return a.window.snapshot() }

// Validity returns a copy of the trust flags, aligned with Checkpoints.
func (a *ExpAnalyzer) Validity() []bool {
	out := make([]bool, len(a.validity))
	copy(out, a.validity)
	return out
}

// Result computes the current snapshot. An empty window returns
// ErrNoCheckpoints; too few checkpoints or an undefined rate return
// StatusNotEnoughData with a nil error.
func (a *ExpAnalyzer) Result() (ExpResult, error) {
	last, ok := a.window.last()
	if !ok {
		return ExpResult{Status: StatusEmpty}, ErrNoCheckpoints
	}
	if a.window.len() < a.cfg.MinCheckpoints {
		return ExpResult{Status: StatusNotEnoughData}, nil
	}
	rate, ok := a.perMinute()
	if !ok {
		return ExpResult{Status: StatusNotEnoughData}, nil
	}

	total, haveTotal := last.ImpliedTotal()
	ratioRate := math.NaN()
	if haveTotal && total != 0 {
		ratioRate = rate / total
	}
	if rate == 0 {
		ratioRate = 0
	}

	return ExpResult{
		Status:             StatusReady,
		CurrentLevel:       last.Level,
		CurrentExp:         last.Exp,
		PerMinute:          rate,
		RatioPerMinute:     ratioRate,
		MinutesToNextLevel: MinutesToNextLevel(rate, last, total, haveTotal),
		ComputedAt:         a.now(),
	}, nil
}

// perMinute sums experience deltas over consecutive trusted, same-level
// pairs and divides by their summed duration. Level-up pairs contribute
// nothing. Negative deltas are kept as-is.
func (a *ExpAnalyzer) perMinute() (float64, bool) {
	var gained, minutes float64
	cps := a.window.items
	for i := 1; i < len(cps); i++ {
		prev, cur := cps[i-1], cps[i]
		if !a.validity[i-1] || !a.validity[i] {
			continue
		}
		if prev.Level != cur.Level {
			continue
		}
		gained += float64(cur.Exp - prev.Exp)
		minutes += cur.Timestamp.Sub(prev.Timestamp).Minutes()
	}
	if minutes > 0 {
		return gained / minutes, true
	}
	return 0, false
}
