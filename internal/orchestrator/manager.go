package orchestrator

import (
	"context"
	"time"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/checkpoint"
	"github.com/explab/explab/internal/config"
	apperrors "github.com/explab/explab/internal/errors"
	"github.com/explab/explab/internal/ocr"
	"github.com/explab/explab/internal/orchestrator/feed"
	"github.com/explab/explab/internal/screen"
	"github.com/explab/explab/internal/syncx"
	"github.com/explab/explab/internal/trace"
)

// CapturerFactory opens a capturer for the configured game window. Each
// tracker gets its own.
type CapturerFactory func() screen.Capturer

// tracker is the per-resource unit the manager drives.
type tracker interface {
	kind() checkpoint.Kind
	start(ctx context.Context) (string, bool)
	stop() bool
	reset()
	running() bool
	sessionID() string
	config() analyzer.Config
	applyConfig(analyzer.Config)
	checkpoints() int
}

// KindStatus describes one tracker.
type KindStatus struct {
	Kind        checkpoint.Kind
	Running     bool
	Session     string
	Checkpoints int
	Config      analyzer.Config
	// Latest is the most recent published outcome; neither Exp nor Gauge is
	// set when nothing was published since the last reset.
	Latest feed.Event
	// Version changes whenever Latest does.
	Version uint64
}

// Manager coordinates the experience, health and mana trackers.
type Manager struct {
	feed     *feed.Store
	exp      *expTracker
	gauges   map[checkpoint.Kind]*gaugeTracker
	trackers map[checkpoint.Kind]tracker
	sources  []*source
}

// NewManager creates a manager with one tracker per resource kind.
func NewManager(cfg *config.Config, newCapturer CapturerFactory, engine ocr.Engine) *Manager {
	store := feed.NewStore(FeedMaxEntries, FeedEventBuffer)
	m := &Manager{
		feed:     store,
		gauges:   make(map[checkpoint.Kind]*gaugeTracker),
		trackers: make(map[checkpoint.Kind]tracker),
	}

	src := m.newSource(cfg, newCapturer, engine)
	m.exp = newExpTracker(cfg.Exp, src, store)
	m.trackers[checkpoint.KindExp] = m.exp

	for _, g := range []struct {
		kind checkpoint.Kind
		cfg  analyzer.Config
	}{
		{checkpoint.KindHP, cfg.HP},
		{checkpoint.KindMP, cfg.MP},
	} {
		t := newGaugeTracker(g.kind, g.cfg, m.newSource(cfg, newCapturer, engine), store)
		m.gauges[g.kind] = t
		m.trackers[g.kind] = t
	}
	return m
}

func (m *Manager) newSource(cfg *config.Config, newCapturer CapturerFactory, engine ocr.Engine) *source {
	s := newSource(newCapturer(), engine, cfg.MaxHashDistance, cfg.OCRUpscale)
	m.sources = append(m.sources, s)
	return s
}

func (m *Manager) tracker(kind checkpoint.Kind) (tracker, error) {
	t, ok := m.trackers[kind]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown resource kind %d", int(kind))
	}
	return t, nil
}

// Start resets the tracker of kind and begins ticking under a new session.
// Starting a running tracker leaves it alone and returns its session.
func (m *Manager) Start(ctx context.Context, kind checkpoint.Kind) (string, error) {
	t, err := m.tracker(kind)
	if err != nil {
		return "", err
	}
	session, started := t.start(ctx)
	if started {
		trace.Logger(ctx).Info("tracker started", "kind", kind, "session", session)
	}
	return session, nil
}

// Stop halts the tracker of kind. Its window is kept.
func (m *Manager) Stop(ctx context.Context, kind checkpoint.Kind) error {
	t, err := m.tracker(kind)
	if err != nil {
		return err
	}
	if t.stop() {
		trace.Logger(ctx).Info("tracker stopped", "kind", kind, "session", t.sessionID())
	}
	return nil
}

// Reset clears the window and published results of kind without stopping
// it.
func (m *Manager) Reset(ctx context.Context, kind checkpoint.Kind) error {
	t, err := m.tracker(kind)
	if err != nil {
		return err
	}
	t.reset()
	trace.Logger(ctx).Info("tracker reset", "kind", kind)
	return nil
}

// Running reports whether the tracker of kind is ticking.
func (m *Manager) Running(kind checkpoint.Kind) bool {
	t, err := m.tracker(kind)
	return err == nil && t.running()
}

// KindStatus returns the state of one tracker.
func (m *Manager) KindStatus(kind checkpoint.Kind) (KindStatus, error) {
	t, err := m.tracker(kind)
	if err != nil {
		return KindStatus{}, err
	}
	latest, version := m.latest(kind).Load()
	return KindStatus{
		Kind:        kind,
		Running:     t.running(),
		Session:     t.sessionID(),
		Checkpoints: t.checkpoints(),
		Config:      t.config(),
		Latest:      latest,
		Version:     version,
	}, nil
}

// Status returns every tracker in checkpoint.Kinds order.
func (m *Manager) Status() []KindStatus {
	out := make([]KindStatus, 0, len(checkpoint.Kinds))
	for _, kind := range checkpoint.Kinds {
		st, err := m.KindStatus(kind)
		if err == nil {
			out = append(out, st)
		}
	}
	return out
}

func (m *Manager) latest(kind checkpoint.Kind) *syncx.RWGuard[feed.Event] {
	if kind == checkpoint.KindExp {
		return m.exp.latest
	}
	return m.gauges[kind].latest
}

// Chart returns the experience chart series for the current window.
func (m *Manager) Chart() analyzer.ChartSeries {
	return m.exp.chart()
}

// Events returns the channel of published outcomes.
func (m *Manager) Events() <-chan feed.Event {
	return m.feed.Events()
}

// Recent returns outcomes of kind published within d.
func (m *Manager) Recent(kind checkpoint.Kind, d time.Duration) []feed.Event {
	return m.feed.Recent(kind, d)
}

// ApplyConfig pushes analyzer and change-detection settings to all
// trackers. Addresses and the capture target are fixed for the process.
func (m *Manager) ApplyConfig(ctx context.Context, cfg *config.Config) {
	m.exp.applyConfig(cfg.Exp)
	m.gauges[checkpoint.KindHP].applyConfig(cfg.HP)
	m.gauges[checkpoint.KindMP].applyConfig(cfg.MP)
	for _, s := range m.sources {
		s.regions.SetMaxDistance(cfg.MaxHashDistance)
		s.upscale.Store(int64(cfg.OCRUpscale))
	}
	trace.Logger(ctx).Info("analyzer config applied",
		"exp_max_checkpoints", cfg.Exp.MaxCheckpoints,
		"hp_max_checkpoints", cfg.HP.MaxCheckpoints,
		"mp_max_checkpoints", cfg.MP.MaxCheckpoints)
}

// Close stops all trackers and releases their capturers.
func (m *Manager) Close() {
	for _, kind := range checkpoint.Kinds {
		m.trackers[kind].stop()
	}
	for _, g := range m.gauges {
		g.frames.Stop()
	}
	for _, s := range m.sources {
		s.close()
	}
}
