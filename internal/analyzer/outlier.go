package analyzer

import (
	"math"
	"slices"

	"github.com/explab/explab/internal/checkpoint"
)

const (
	// DefaultOutlierTolerance is the relative deviation from the median
	// implied total that marks a checkpoint untrusted.
	DefaultOutlierTolerance = 0.02
	// MinOutlierWindow is the smallest window the filter will judge.
	MinOutlierWindow = 5
)

// ValidateExp marks each checkpoint trusted or not by comparing its implied
// level total (exp/ratio) to the median of its same-level siblings. The
// result has one flag per checkpoint, index-aligned.
//
// Windows shorter than MinOutlierWindow are trusted wholesale. Checkpoints
// with no implied total (ratio <= 0) never vote and stay trusted. A level
// group with fewer than two votes is left untouched.
func ValidateExp(cps []checkpoint.Exp, tolerance float64) []bool {
	valid := make([]bool, len(cps))
	for i := range valid {
		valid[i] = true
	}
	if len(cps) < MinOutlierWindow {
		return valid
	}

	type vote struct {
		idx   int
		total float64
	}
	groups := make(map[int][]vote)
	for i, cp := range cps {
		total, ok := cp.ImpliedTotal()
		if !ok {
			continue
		}
		groups[cp.Level] = append(groups[cp.Level], vote{idx: i, total: total})
	}

	for _, votes := range groups {
		if len(votes) < 2 {
			continue
		}
		totals := make([]float64, len(votes))
		for i, v := range votes {
			totals[i] = v.total
		}
		consensus := median(totals)
		if consensus <= 0 {
			continue
		}
		for _, v := range votes {
			if math.Abs(v.total-consensus)/consensus > tolerance {
				valid[v.idx] = false
			}
		}
	}
	return valid
}

// median sorts values in place. Even-length input averages the middle pair.
func median(values []float64) float64 {
	slices.Sort(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
