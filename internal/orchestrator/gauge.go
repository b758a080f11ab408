package orchestrator

import (
	"context"
	"image"
	"slices"
	"sync"
	"time"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/checkpoint"
	"github.com/explab/explab/internal/imgproc"
	"github.com/explab/explab/internal/ocr"
	"github.com/explab/explab/internal/orchestrator/batch"
	"github.com/explab/explab/internal/orchestrator/feed"
	"github.com/explab/explab/internal/syncx"
	"github.com/explab/explab/internal/trace"
)

// gaugeFrame is one buffered HP or MP capture. A nil crop marks a frame
// that matched the previous one and reuses its reading.
type gaugeFrame struct {
	ctx     context.Context
	session string
	gen     uint64
	at      time.Time
	crop    image.Image
}

// gaugeTracker buffers frames and recognizes them BatchSize at a time.
type gaugeTracker struct {
	runner
	resource checkpoint.Kind
	region   imgproc.Region
	src      *source
	feed     *feed.Store
	latest   *syncx.RWGuard[feed.Event]
	frames   *batch.Batcher[gaugeFrame]

	mu       sync.Mutex
	analyzer *analyzer.GaugeAnalyzer
	last     *checkpoint.Gauge
	// primed is set once a frame has been queued for recognition since the
	// last reset; until then unchanged frames are recognized anyway.
	primed bool
	// gen counts resets. Frames captured before a reset are dropped.
	gen uint64
}

func newGaugeTracker(kind checkpoint.Kind, cfg analyzer.Config, src *source, store *feed.Store) *gaugeTracker {
	r := imgproc.RegionHP
	if kind == checkpoint.KindMP {
		r = imgproc.RegionMP
	}
	t := &gaugeTracker{
		resource: kind,
		region:   r,
		src:      src,
		feed:     store,
		latest:   syncx.NewGuard(feed.Event{Kind: kind}),
		analyzer: analyzer.NewGaugeAnalyzer(kind, cfg),
	}
	t.frames = batch.NewBatcher(cfg.BatchSize, 0, t.flush)
	return t
}

func (t *gaugeTracker) kind() checkpoint.Kind { return t.resource }

func (t *gaugeTracker) start(ctx context.Context) (string, bool) {
	if t.running() {
		return t.sessionID(), false
	}
	t.reset()
	return t.runner.start(ctx, t.resource, t.config().Interval, t.tick)
}

// stop ends the run and drops frames that never filled a batch.
func (t *gaugeTracker) stop() bool {
	stopped := t.runner.stop()
	t.frames.Discard()
	return stopped
}

func (t *gaugeTracker) reset() {
	t.frames.Discard()
	t.mu.Lock()
	t.analyzer.Reset()
	t.last = nil
	t.primed = false
	t.gen++
	t.mu.Unlock()
	t.src.regions.Forget()
	t.feed.Clear(t.resource)
	t.latest.Set(feed.Event{Kind: t.resource})
}

func (t *gaugeTracker) config() analyzer.Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.analyzer.Config()
}

func (t *gaugeTracker) applyConfig(cfg analyzer.Config) {
	t.mu.Lock()
	t.analyzer.SetConfig(cfg)
	t.mu.Unlock()
	t.frames.SetMaxSize(cfg.BatchSize)
	t.setInterval(cfg.Interval)
}

func (t *gaugeTracker) checkpoints() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.analyzer.Len()
}

func (t *gaugeTracker) tick(ctx context.Context, session string, now time.Time) {
	t.mu.Lock()
	force, gen := !t.primed, t.gen
	t.mu.Unlock()

	img, changed, err := t.src.grab(force)
	if err != nil {
		trace.Logger(ctx).Debug("gauge tick skipped", "error", err)
		return
	}

	f := gaugeFrame{ctx: ctx, session: session, gen: gen, at: now}
	if changed {
		crop := imgproc.Crop(img, t.region)
		if !t.src.regions.Unchanged(t.region, crop) || force {
			f.crop = t.src.prepare(crop, t.region)
			t.mu.Lock()
			if t.gen == gen {
				t.primed = true
			}
			t.mu.Unlock()
		}
	}
	t.frames.Add(f)
}

// flush recognizes the changed frames of a batch in one call, then adds a
// checkpoint per frame in capture order and publishes a single result.
func (t *gaugeTracker) flush(frames []gaugeFrame) {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()
	frames = slices.DeleteFunc(frames, func(f gaugeFrame) bool { return f.gen != gen })
	if len(frames) == 0 {
		return
	}

	last := frames[len(frames)-1]
	ctx, span := trace.StartSpan(last.ctx, "gauge_batch")
	defer span.End()
	span.Set("frames", len(frames))
	log := trace.Logger(ctx)

	var (
		imgs  []image.Image
		stamp []time.Time
		index = make([]int, len(frames))
	)
	for i, f := range frames {
		index[i] = -1
		if f.crop != nil {
			index[i] = len(imgs)
			imgs = append(imgs, f.crop)
			stamp = append(stamp, f.at)
		}
	}

	var readings []*checkpoint.Gauge
	if len(imgs) > 0 {
		results, err := t.src.engine.RecognizeBatch(ctx, imgs, ocr.Options{Allowlist: checkpoint.GaugeAllowlist})
		if err != nil {
			span.Fail(err)
			log.Warn("gauge batch recognition failed", "error", err)
			t.unprime()
			return
		}
		readings, err = checkpoint.NewGaugesFromOCR(results, stamp)
		if err != nil {
			span.Fail(err)
			log.Warn("gauge batch parse failed", "error", err)
			t.unprime()
			return
		}
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		span.Set("dropped", "reset during recognition")
		return
	}
	added := 0
	for i, f := range frames {
		var cp checkpoint.Gauge
		switch {
		case index[i] >= 0 && readings[index[i]] != nil:
			cp = *readings[index[i]]
		case index[i] < 0 && t.last != nil:
			cp = *t.last
			cp.Timestamp = f.at
		default:
			continue
		}
		t.analyzer.AddCheckpoint(cp)
		t.last = &cp
		added++
	}
	if t.last == nil {
		t.primed = false
	}
	if added == 0 {
		t.mu.Unlock()
		log.Debug("gauge batch produced no checkpoints")
		return
	}
	res, err := t.analyzer.Result()
	t.mu.Unlock()
	if err != nil {
		log.Warn("gauge result failed", "error", err)
		return
	}

	ev := feed.Event{Kind: t.resource, Session: last.session, At: res.ComputedAt, Gauge: &res}
	t.latest.Set(ev)
	t.feed.Publish(ev)
	log.Debug("gauge result",
		"status", res.Status,
		"current", res.Current,
		"total", res.Total,
		"lost_per_minute", res.LostPerMinute)
}

// unprime makes the next tick recognize its frame even when unchanged.
func (t *gaugeTracker) unprime() {
	t.src.regions.Forget()
	t.mu.Lock()
	if t.last == nil {
		t.primed = false
	}
	t.mu.Unlock()
}
