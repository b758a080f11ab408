package analyzer

import (
	"time"

	apperrors "github.com/explab/explab/internal/errors"
)

// ErrNoCheckpoints is returned by Result when the window is empty. It is
// distinct from StatusNotEnoughData, which carries a nil error.
var ErrNoCheckpoints = apperrors.New(apperrors.CodeNoCheckpoints, "no checkpoints available")

// Status tags the outcome of a Result call.
type Status int

const (
	// StatusEmpty means the window holds no checkpoints at all.
	StatusEmpty Status = iota
	// StatusNotEnoughData means checkpoints exist but no rate is defined yet.
	StatusNotEnoughData
	// StatusReady means the numeric fields are populated.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusNotEnoughData:
		return "not_enough_data"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ExpResult is a point-in-time experience snapshot. Numeric fields are only
// meaningful when Status is StatusReady.
type ExpResult struct {
	Status       Status
	CurrentLevel int
	CurrentExp   int64
	PerMinute    float64
	// RatioPerMinute is PerMinute over the estimated level total. NaN when
	// the total is unknown.
	RatioPerMinute float64
	// MinutesToNextLevel is NaN when the level total is unknown and +Inf
	// when no progress is being made.
	MinutesToNextLevel float64
	ComputedAt         time.Time
}

// GaugeResult is a point-in-time health or mana snapshot.
type GaugeResult struct {
	Status        Status
	Current       int64
	Total         int64
	LostPerMinute float64
	ComputedAt    time.Time
}
