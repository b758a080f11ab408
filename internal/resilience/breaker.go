// Package resilience keeps a failing OCR service from stalling every tracker
// tick: a circuit breaker fails calls fast while the service is down and a
// short exponential-backoff retry absorbs transient errors.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/explab/explab/internal/trace"
)

// State is the breaker position.
type State uint32

const (
	Closed   State = iota // calls pass
	Open                  // calls fail fast
	HalfOpen              // probing recovery
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned while the breaker is failing fast.
var ErrOpen = errors.New("circuit breaker open")

// Transition is one state change. Kind and Session name the tracker run whose
// call caused it; they are empty for calls made outside a run.
type Transition struct {
	From, To State
	Failures int
	Kind     string
	Session  string
	At       time.Time
}

// Stats is a point-in-time view for metrics.
type Stats struct {
	State    State
	Failures int // consecutive failures counted toward opening
	Opens    uint64
	// LastTrip is the most recent transition to Open, zero until one happens.
	LastTrip Transition
}

// Breaker trips after Threshold consecutive failures and lets trial calls through
// once ResetTimeout has passed.
type Breaker struct {
	cfg  Config
	hook func(Transition)

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	opens       uint64
	lastTrip    Transition
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// WithHook sets a callback run after every transition, outside the breaker
// lock. Set it before the breaker is shared.
func (b *Breaker) WithHook(fn func(Transition)) *Breaker {
	b.hook = fn
	return b
}

// Allow reports ErrOpen while calls should fail fast. An open breaker whose
// reset timeout has passed moves to half-open and lets the call through.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Open {
		b.mu.Unlock()
		return nil
	}
	if time.Since(b.lastFailure) <= b.cfg.ResetTimeout {
		b.mu.Unlock()
		return ErrOpen
	}
	tr := b.transition(ctx, HalfOpen)
	b.mu.Unlock()
	b.emit(ctx, tr)
	return nil
}

// Success records a call that worked.
func (b *Breaker) Success(ctx context.Context) {
	b.mu.Lock()
	var tr *Transition
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			tr = b.transition(ctx, Closed)
		}
	case Closed:
		b.failures = 0
	}
	b.mu.Unlock()
	b.emit(ctx, tr)
}

// Failure records a call that failed.
func (b *Breaker) Failure(ctx context.Context) {
	b.mu.Lock()
	b.lastFailure = time.Now()
	b.failures++
	var tr *Transition
	switch b.state {
	case HalfOpen:
		tr = b.transition(ctx, Open)
	case Closed:
		if b.failures >= b.cfg.Threshold {
			tr = b.transition(ctx, Open)
		}
	}
	b.mu.Unlock()
	b.emit(ctx, tr)
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns counters for metrics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{State: b.state, Failures: b.failures, Opens: b.opens, LastTrip: b.lastTrip}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset(ctx context.Context) {
	b.mu.Lock()
	tr := b.transition(ctx, Closed)
	b.mu.Unlock()
	b.emit(ctx, tr)
}

// transition moves to state to. It must be called with mu held and returns
// nil when the state does not change.
func (b *Breaker) transition(ctx context.Context, to State) *Transition {
	from := b.state
	if from == to {
		return nil
	}
	tc, _ := trace.FromContext(ctx)
	tr := &Transition{From: from, To: to, Failures: b.failures, Kind: tc.Kind, Session: tc.Session, At: time.Now()}

	b.state = to
	b.successes = 0
	switch to {
	case Closed:
		b.failures = 0
	case Open:
		b.opens++
		b.lastTrip = *tr
	}
	return tr
}

func (b *Breaker) emit(ctx context.Context, tr *Transition) {
	if tr == nil {
		return
	}
	log := trace.Logger(ctx).With("breaker", b.cfg.Name, "from", tr.From, "to", tr.To)
	if tr.To == Open {
		log.Warn("circuit breaker opened", "failures", tr.Failures)
	} else {
		log.Info("circuit breaker state changed")
	}
	if b.hook != nil {
		b.hook(*tr)
	}
}

// Execute runs fn unless the breaker is open and records its outcome.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	_, err := ExecuteWithResult(ctx, b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// ExecuteWithResult is Execute for calls that return a value.
func ExecuteWithResult[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(ctx); err != nil {
		return zero, err
	}
	result, err := fn()
	if err != nil {
		b.Failure(ctx)
		return zero, err
	}
	b.Success(ctx)
	return result, nil
}
