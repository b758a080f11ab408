package analyzer

import (
	"math"
	"time"

	"github.com/explab/explab/internal/checkpoint"
)

// ChartSeries is the experience history with a straight-line projection
// anchored at the first checkpoint.
type ChartSeries struct {
	Timestamps []time.Time `json:"timestamps"`
	Exp        []int64     `json:"exp"`
	Predicted  []int64     `json:"predicted"`
	YMin       int64       `json:"y_min"`
	YMax       int64       `json:"y_max"`
}

// NewChartSeries builds a chart from cps using perMinute as the slope of
// the projection. It returns the zero value for an empty window.
func NewChartSeries(cps []checkpoint.Exp, perMinute float64) ChartSeries {
	if len(cps) == 0 {
		return ChartSeries{}
	}
	s := ChartSeries{
		Timestamps: make([]time.Time, len(cps)),
		Exp:        make([]int64, len(cps)),
		Predicted:  make([]int64, len(cps)),
	}
	base := cps[0]
	perSecond := perMinute / 60
	if math.IsNaN(perSecond) || math.IsInf(perSecond, 0) {
		perSecond = 0
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, cp := range cps {
		s.Timestamps[i] = cp.Timestamp
		s.Exp[i] = cp.Exp
		elapsed := cp.Timestamp.Sub(base.Timestamp).Seconds()
		s.Predicted[i] = int64(math.RoundToEven(float64(base.Exp) + perSecond*elapsed))
		lo = min(lo, float64(s.Exp[i]), float64(s.Predicted[i]))
		hi = max(hi, float64(s.Exp[i]), float64(s.Predicted[i]))
	}

	padding := (hi - lo) * 0.1
	if padding == 0 {
		padding = max(10, lo*0.1)
	}
	s.YMin = int64(math.RoundToEven(lo - padding))
	s.YMax = int64(math.RoundToEven(hi + padding))
	return s
}

// Chart returns the chart series for the current window.
func (a *ExpAnalyzer) Chart() ChartSeries {
	rate, _ := a.perMinute()
	return NewChartSeries(a.window.items, rate)
}
