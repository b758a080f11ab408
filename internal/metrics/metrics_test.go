package metrics

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/checkpoint"
	"github.com/explab/explab/internal/orchestrator"
	"github.com/explab/explab/internal/orchestrator/feed"
	"github.com/explab/explab/internal/resilience"
	"github.com/explab/explab/internal/trace"
)

func snapshot() Snapshot {
	return Snapshot{
		Trackers: []orchestrator.KindStatus{
			{
				Kind:        checkpoint.KindExp,
				Running:     true,
				Checkpoints: 9,
				Latest: feed.Event{Kind: checkpoint.KindExp, Exp: &analyzer.ExpResult{
					Status:             analyzer.StatusReady,
					CurrentLevel:       42,
					CurrentExp:         1800,
					PerMinute:          100,
					RatioPerMinute:     0.01,
					MinutesToNextLevel: math.Inf(1),
				}},
			},
			{
				Kind:        checkpoint.KindHP,
				Checkpoints: 3,
				Latest: feed.Event{Kind: checkpoint.KindHP, Gauge: &analyzer.GaugeResult{
					Status: analyzer.StatusReady, Current: 70, Total: 200, LostPerMinute: 30,
				}},
			},
			{
				Kind:   checkpoint.KindMP,
				Latest: feed.Event{Kind: checkpoint.KindMP, Gauge: &analyzer.GaugeResult{Status: analyzer.StatusNotEnoughData}},
			},
		},
		Breaker: resilience.New(resilience.OCRConfig()),
	}
}

// parse round-trips the exposition through the text parser.
func parse(t *testing.T, body string) map[string]*dto.MetricFamily {
	t.Helper()
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse exposition: %v\n%s", err, body)
	}
	return mfs
}

func value(mf *dto.MetricFamily, labelValue string) (float64, bool) {
	for _, m := range mf.GetMetric() {
		if labelValue == "" && len(m.GetLabel()) == 0 {
			return m.GetGauge().GetValue(), true
		}
		for _, l := range m.GetLabel() {
			if l.GetValue() == labelValue {
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestGather(t *testing.T) {
	var sb strings.Builder
	if err := Write(&sb, Gather(snapshot())); err != nil {
		t.Fatal(err)
	}
	mfs := parse(t, sb.String())

	tests := []struct {
		family string
		label  string
		want   float64
	}{
		{"explab_tracker_running", "exp", 1},
		{"explab_tracker_running", "hp", 0},
		{"explab_tracker_checkpoints", "exp", 9},
		{"explab_exp_level", "", 42},
		{"explab_exp_per_minute", "", 100},
		{"explab_gauge_lost_per_minute", "hp", 30},
		{"explab_gauge_total", "hp", 200},
		{"explab_ocr_breaker_state", "closed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.family+"/"+tt.label, func(t *testing.T) {
			mf, ok := mfs[tt.family]
			if !ok {
				t.Fatalf("family %s missing", tt.family)
			}
			got, ok := value(mf, tt.label)
			if !ok || got != tt.want {
				t.Errorf("value = %v (found %v), want %v", got, ok, tt.want)
			}
		})
	}

	got, _ := value(mfs["explab_exp_minutes_to_level"], "")
	if !math.IsInf(got, 1) {
		t.Errorf("minutes to level = %v, want +Inf", got)
	}
	if _, ok := value(mfs["explab_gauge_lost_per_minute"], "mp"); ok {
		t.Error("not-ready mp result should not be exported")
	}
}

func TestGatherBreakerTrip(t *testing.T) {
	b := resilience.New(resilience.Config{Name: "ocr", Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	ctx := trace.Run(context.Background(), "hp", "run-1")
	b.Failure(ctx)
	b.Failure(ctx)

	var sb strings.Builder
	if err := Write(&sb, Gather(Snapshot{Breaker: b})); err != nil {
		t.Fatal(err)
	}
	mfs := parse(t, sb.String())

	if got, ok := value(mfs["explab_ocr_breaker_state"], "open"); !ok || got != 1 {
		t.Errorf("breaker state = %v (found %v), want 1", got, ok)
	}
	if got, _ := value(mfs["explab_ocr_breaker_opens"], ""); got != 1 {
		t.Errorf("opens = %v, want 1", got)
	}
	if got, _ := value(mfs["explab_ocr_breaker_failures"], ""); got != 2 {
		t.Errorf("failures = %v, want 2", got)
	}
	got, ok := value(mfs["explab_ocr_breaker_last_trip_timestamp_seconds"], "hp")
	if !ok || got <= 0 {
		t.Errorf("last trip for hp = %v (found %v)", got, ok)
	}
}

func TestGatherEmpty(t *testing.T) {
	if mfs := Gather(Snapshot{}); len(mfs) != 0 {
		t.Errorf("Gather(empty) = %d families", len(mfs))
	}
}

func TestHandler(t *testing.T) {
	h := Handler(snapshot)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "explab_exp_per_minute 100") {
		t.Errorf("body missing exp rate:\n%s", rec.Body.String())
	}
}
