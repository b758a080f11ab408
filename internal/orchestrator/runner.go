package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/explab/explab/internal/checkpoint"
	"github.com/explab/explab/internal/trace"
)

type tickFunc func(ctx context.Context, session string, now time.Time)

// runner owns the tick goroutine of one tracker. A run is identified by a
// fresh session ID.
type runner struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	session  string
	interval chan time.Duration
}

func tickInterval(d time.Duration) time.Duration {
	if d < MinTickInterval {
		return MinTickInterval
	}
	return d
}

// start launches the tick loop and returns the new session ID. The loop
// keeps the values of ctx but not its cancellation, and tags them with kind
// and the session. started is false when a run was already active; its
// session is returned instead.
func (r *runner) start(ctx context.Context, kind checkpoint.Kind, interval time.Duration, tick tickFunc) (session string, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return r.session, false
	}

	session = uuid.NewString()
	runCtx, cancel := context.WithCancel(trace.Run(context.WithoutCancel(ctx), kind.String(), session))
	done := make(chan struct{})
	updates := make(chan time.Duration, 1)

	r.cancel, r.done, r.session, r.interval = cancel, done, session, updates

	go func() {
		defer close(done)
		ticker := time.NewTicker(tickInterval(interval))
		defer ticker.Stop()

		tick(runCtx, session, time.Now())
		for {
			select {
			case <-runCtx.Done():
				return
			case d := <-updates:
				ticker.Reset(tickInterval(d))
			case now := <-ticker.C:
				tick(runCtx, session, now)
			}
		}
	}()
	return session, true
}

// stop cancels the loop and waits for the tick in flight. It reports
// whether a run was active.
func (r *runner) stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	<-r.done
	r.cancel, r.done, r.interval = nil, nil, nil
	return true
}

// setInterval retimes an active loop.
func (r *runner) setInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.interval == nil {
		return
	}
	select {
	case <-r.interval:
	default:
	}
	r.interval <- d
}

func (r *runner) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// sessionID returns the ID of the current or most recent run.
func (r *runner) sessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}
