// Package metrics renders tracker state in the Prometheus text exposition
// format.
package metrics

import (
	"io"
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/orchestrator"
	"github.com/explab/explab/internal/resilience"
)

const namespace = "explab"

// Snapshot is the state rendered on one scrape.
type Snapshot struct {
	Trackers []orchestrator.KindStatus
	// Breaker is the OCR client breaker, nil when OCR is not remote.
	Breaker *resilience.Breaker
}

// family accumulates samples of one gauge family.
type family struct {
	name, help string
	metrics    []*dto.Metric
}

func (f *family) add(value float64, labels ...string) {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(value)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	f.metrics = append(f.metrics, m)
}

func (f *family) proto() *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + f.name),
		Help:   proto.String(f.help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: f.metrics,
	}
}

// Gather converts a snapshot into metric families sorted by name. Families
// without samples are omitted.
func Gather(s Snapshot) []*dto.MetricFamily {
	var (
		running     = &family{name: "tracker_running", help: "Whether the tracker is sampling (1) or stopped (0)."}
		checkpoints = &family{name: "tracker_checkpoints", help: "Checkpoints in the analyzer window."}
		level       = &family{name: "exp_level", help: "Current character level."}
		expCurrent  = &family{name: "exp_current", help: "Experience accumulated in the current level."}
		expRate     = &family{name: "exp_per_minute", help: "Experience gained per minute over the window."}
		ratioRate   = &family{name: "exp_ratio_per_minute", help: "Fraction of the level gained per minute."}
		toLevel     = &family{name: "exp_minutes_to_level", help: "Projected minutes until the next level."}
		current     = &family{name: "gauge_current", help: "Current health or mana."}
		total       = &family{name: "gauge_total", help: "Health or mana capacity."}
		lost        = &family{name: "gauge_lost_per_minute", help: "Health or mana lost per minute over the window."}
		breaker     = &family{name: "ocr_breaker_state", help: "OCR circuit breaker state: 0 closed, 1 open, 2 half-open."}
		failures    = &family{name: "ocr_breaker_failures", help: "Consecutive OCR failures counted toward opening the breaker."}
		opens       = &family{name: "ocr_breaker_opens", help: "Times the OCR breaker has opened."}
		lastTrip    = &family{name: "ocr_breaker_last_trip_timestamp_seconds", help: "When the OCR breaker last opened, labeled by the tracker whose call tripped it."}
	)

	for _, st := range s.Trackers {
		kind := st.Kind.String()
		running.add(boolValue(st.Running), "kind", kind)
		checkpoints.add(float64(st.Checkpoints), "kind", kind)

		switch ev := st.Latest; {
		case ev.Exp != nil && ev.Exp.Status == analyzer.StatusReady:
			level.add(float64(ev.Exp.CurrentLevel))
			expCurrent.add(float64(ev.Exp.CurrentExp))
			expRate.add(ev.Exp.PerMinute)
			ratioRate.add(ev.Exp.RatioPerMinute)
			toLevel.add(ev.Exp.MinutesToNextLevel)
		case ev.Gauge != nil && ev.Gauge.Status == analyzer.StatusReady:
			current.add(float64(ev.Gauge.Current), "kind", kind)
			total.add(float64(ev.Gauge.Total), "kind", kind)
			lost.add(ev.Gauge.LostPerMinute, "kind", kind)
		}
	}
	if s.Breaker != nil {
		bs := s.Breaker.Stats()
		breaker.add(float64(bs.State), "state", bs.State.String())
		failures.add(float64(bs.Failures))
		opens.add(float64(bs.Opens))
		if trip := bs.LastTrip; !trip.At.IsZero() {
			lastTrip.add(float64(trip.At.UnixNano())/1e9, "kind", trip.Kind)
		}
	}

	var out []*dto.MetricFamily
	for _, f := range []*family{running, checkpoints, level, expCurrent, expRate, ratioRate, toLevel, current, total, lost, breaker, failures, opens, lastTrip} {
		if len(f.metrics) > 0 {
			out = append(out, f.proto())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Format is the exposition format written by Write.
var Format = expfmt.NewFormat(expfmt.TypeTextPlain)

// Write encodes families in the text exposition format.
func Write(w io.Writer, families []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, Format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the snapshot returned by source on each request.
func Handler(source func() Snapshot) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(Format))
		if err := Write(w, Gather(source())); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
