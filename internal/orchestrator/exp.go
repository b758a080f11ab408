package orchestrator

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/checkpoint"
	"github.com/explab/explab/internal/imgproc"
	"github.com/explab/explab/internal/orchestrator/feed"
	"github.com/explab/explab/internal/syncx"
	"github.com/explab/explab/internal/trace"
)

// expTracker reads level and experience once per tick.
type expTracker struct {
	runner
	src    *source
	feed   *feed.Store
	latest *syncx.RWGuard[feed.Event]

	mu       sync.Mutex
	analyzer *analyzer.ExpAnalyzer
	last     *checkpoint.Exp
	// gen counts resets; a tick only records into the generation it read in.
	gen uint64
}

func newExpTracker(cfg analyzer.Config, src *source, store *feed.Store) *expTracker {
	return &expTracker{
		src:      src,
		feed:     store,
		latest:   syncx.NewGuard(feed.Event{Kind: checkpoint.KindExp}),
		analyzer: analyzer.NewExpAnalyzer(cfg),
	}
}

func (t *expTracker) kind() checkpoint.Kind { return checkpoint.KindExp }

func (t *expTracker) start(ctx context.Context) (string, bool) {
	if t.running() {
		return t.sessionID(), false
	}
	t.reset()
	t.mu.Lock()
	interval := t.analyzer.Config().Interval
	t.mu.Unlock()
	return t.runner.start(ctx, checkpoint.KindExp, interval, t.tick)
}

func (t *expTracker) reset() {
	t.mu.Lock()
	t.analyzer.Reset()
	t.last = nil
	t.gen++
	t.mu.Unlock()
	t.src.regions.Forget()
	t.feed.Clear(checkpoint.KindExp)
	t.latest.Set(feed.Event{Kind: checkpoint.KindExp})
}

func (t *expTracker) config() analyzer.Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.analyzer.Config()
}

func (t *expTracker) applyConfig(cfg analyzer.Config) {
	t.mu.Lock()
	t.analyzer.SetConfig(cfg)
	t.mu.Unlock()
	t.setInterval(cfg.Interval)
}

func (t *expTracker) checkpoints() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.analyzer.Len()
}

func (t *expTracker) chart() analyzer.ChartSeries {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.analyzer.Chart()
}

func (t *expTracker) tick(ctx context.Context, session string, now time.Time) {
	ctx, span := trace.StartSpan(ctx, "exp_tick")
	defer span.End()

	t.mu.Lock()
	prev, gen := t.last, t.gen
	t.mu.Unlock()

	cp, err := t.read(ctx, prev, now)
	if err != nil {
		span.Fail(err)
		return
	}
	if !t.record(ctx, session, gen, cp) {
		span.Set("dropped", "reset during tick")
	}
}

// read produces the checkpoint for this tick, reusing prev with the new
// timestamp when neither the frame nor the level and exp crops changed.
func (t *expTracker) read(ctx context.Context, prev *checkpoint.Exp, now time.Time) (checkpoint.Exp, error) {
	img, changed, err := t.src.grab(prev == nil)
	if err != nil {
		return checkpoint.Exp{}, err
	}
	if !changed {
		return restamp(*prev, now), nil
	}

	levelCrop := imgproc.Crop(img, imgproc.RegionLevel)
	expCrop := imgproc.Crop(img, imgproc.RegionExp)
	levelSame := t.src.regions.Unchanged(imgproc.RegionLevel, levelCrop)
	expSame := t.src.regions.Unchanged(imgproc.RegionExp, expCrop)
	if prev != nil && levelSame && expSame {
		return restamp(*prev, now), nil
	}

	cp, err := t.recognize(ctx, levelCrop, expCrop, now)
	if err != nil {
		// the stored hashes now describe a frame that yielded no reading
		t.src.regions.Forget()
		return checkpoint.Exp{}, err
	}
	return cp, nil
}

func (t *expTracker) recognize(ctx context.Context, levelCrop, expCrop *image.RGBA, now time.Time) (checkpoint.Exp, error) {
	level, err := t.src.recognize(ctx, levelCrop, imgproc.RegionLevel, checkpoint.LevelAllowlist)
	if err != nil {
		return checkpoint.Exp{}, err
	}
	exp, err := t.src.recognize(ctx, expCrop, imgproc.RegionExp, checkpoint.ExpAllowlist)
	if err != nil {
		return checkpoint.Exp{}, err
	}
	return checkpoint.NewExpFromOCR(level, exp, now)
}

func restamp(cp checkpoint.Exp, now time.Time) checkpoint.Exp {
	cp.Timestamp = now
	return cp
}

// record adds cp and publishes the new result. It reports false, leaving the
// analyzer untouched, when a reset happened after the tick read gen.
func (t *expTracker) record(ctx context.Context, session string, gen uint64, cp checkpoint.Exp) bool {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return false
	}
	t.analyzer.AddCheckpoint(cp)
	t.last = &cp
	res, err := t.analyzer.Result()
	t.mu.Unlock()

	log := trace.Logger(ctx)
	if err != nil {
		log.Warn("exp result failed", "error", err)
		return true
	}

	ev := feed.Event{Kind: checkpoint.KindExp, Session: session, At: res.ComputedAt, Exp: &res}
	t.latest.Set(ev)
	t.feed.Publish(ev)
	log.Debug("exp result",
		"status", res.Status,
		"level", res.CurrentLevel,
		"exp", res.CurrentExp,
		"per_minute", res.PerMinute,
		"minutes_to_level", res.MinutesToNextLevel)
	return true
}
