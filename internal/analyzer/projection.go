package analyzer

import (
	"math"

	"github.com/explab/explab/internal/checkpoint"
)

// MinutesToNextLevel projects how long the remaining experience of last
// takes at rate (per minute). total is the level total estimate; ok false
// means it is unknown and the projection is NaN. Already past the total
// gives 0 and a non-positive rate gives +Inf.
func MinutesToNextLevel(rate float64, last checkpoint.Exp, total float64, ok bool) float64 {
	if !ok {
		return math.NaN()
	}
	remaining := total - float64(last.Exp)
	if remaining <= 0 {
		return 0
	}
	if rate <= 0 {
		return math.Inf(1)
	}
	return remaining / rate
}
