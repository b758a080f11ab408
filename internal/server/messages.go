package server

import (
	"math"
	"time"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/orchestrator"
	"github.com/explab/explab/internal/orchestrator/feed"
)

// Message types.
type Message struct {
	Type string `json:"type"`
}

// ControlMessage asks for an action on one tracker: start, stop, reset or
// status.
type ControlMessage struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	TraceID string `json:"trace_id,omitempty"`
}

type AckMessage struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Kind    string `json:"kind"`
	Session string `json:"session,omitempty"`
	Running bool   `json:"running"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ExpPayload carries an experience result. Rates that are NaN or infinite
// are null.
type ExpPayload struct {
	Level              int      `json:"level"`
	Exp                int64    `json:"exp"`
	PerMinute          *float64 `json:"per_minute"`
	RatioPerMinute     *float64 `json:"ratio_per_minute"`
	MinutesToNextLevel *float64 `json:"minutes_to_next_level"`
	// Stalled is set when no progress is being made and the projection is
	// infinite.
	Stalled bool `json:"stalled,omitempty"`
}

type GaugePayload struct {
	Current       int64    `json:"current"`
	Total         int64    `json:"total"`
	LostPerMinute *float64 `json:"lost_per_minute"`
}

// ResultMessage is a published analyzer outcome.
type ResultMessage struct {
	Type    string        `json:"type"`
	Kind    string        `json:"kind"`
	Session string        `json:"session,omitempty"`
	Status  string        `json:"status"`
	At      time.Time     `json:"at"`
	Exp     *ExpPayload   `json:"exp,omitempty"`
	Gauge   *GaugePayload `json:"gauge,omitempty"`
}

type ConfigPayload struct {
	IntervalSeconds  float64 `json:"interval_seconds"`
	MaxCheckpoints   int     `json:"max_checkpoints"`
	MinCheckpoints   int     `json:"min_checkpoints"`
	BatchSize        int     `json:"batch_size,omitempty"`
	OutlierTolerance float64 `json:"outlier_tolerance,omitempty"`
}

type TrackerStatus struct {
	Kind        string         `json:"kind"`
	Running     bool           `json:"running"`
	Session     string         `json:"session,omitempty"`
	Checkpoints int            `json:"checkpoints"`
	Config      ConfigPayload  `json:"config"`
	Latest      *ResultMessage `json:"latest"`
	Version     uint64         `json:"version"`
}

type StatusResponse struct {
	Trackers []TrackerStatus `json:"trackers"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func resultMessage(ev feed.Event) *ResultMessage {
	if ev.Exp == nil && ev.Gauge == nil {
		return nil
	}
	msg := &ResultMessage{
		Type:    "result",
		Kind:    ev.Kind.String(),
		Session: ev.Session,
		Status:  ev.Status().String(),
		At:      ev.At,
	}
	if r := ev.Exp; r != nil && r.Status == analyzer.StatusReady {
		msg.Exp = &ExpPayload{
			Level:              r.CurrentLevel,
			Exp:                r.CurrentExp,
			PerMinute:          finite(r.PerMinute),
			RatioPerMinute:     finite(r.RatioPerMinute),
			MinutesToNextLevel: finite(r.MinutesToNextLevel),
			Stalled:            math.IsInf(r.MinutesToNextLevel, 1),
		}
	}
	if r := ev.Gauge; r != nil && r.Status == analyzer.StatusReady {
		msg.Gauge = &GaugePayload{
			Current:       r.Current,
			Total:         r.Total,
			LostPerMinute: finite(r.LostPerMinute),
		}
	}
	return msg
}

func trackerStatus(st orchestrator.KindStatus) TrackerStatus {
	return TrackerStatus{
		Kind:        st.Kind.String(),
		Running:     st.Running,
		Session:     st.Session,
		Checkpoints: st.Checkpoints,
		Config: ConfigPayload{
			IntervalSeconds:  st.Config.Interval.Seconds(),
			MaxCheckpoints:   st.Config.MaxCheckpoints,
			MinCheckpoints:   st.Config.MinCheckpoints,
			BatchSize:        st.Config.BatchSize,
			OutlierTolerance: st.Config.OutlierTolerance,
		},
		Latest:  resultMessage(st.Latest),
		Version: st.Version,
	}
}

type HistoryResponse struct {
	Kind    string          `json:"kind"`
	Results []ResultMessage `json:"results"`
}
