package trace

import (
	"context"
	"time"
)

// Span times one step of a tick, such as reading a frame or recognizing a
// batch. End writes a single debug record for it.
type Span struct {
	name  string
	ctx   context.Context
	start time.Time
	attrs []any
	err   error
}

// StartSpan opens a child span of the one in ctx and returns ctx with the
// child's tags.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	ctx = WithContext(ctx, parent.Child())
	return ctx, &Span{name: name, ctx: ctx, start: time.Now()}
}

// Set adds an attribute to the span record.
func (s *Span) Set(key string, val any) {
	s.attrs = append(s.attrs, key, val)
}

// Fail marks the step as failed with err.
func (s *Span) Fail(err error) {
	s.err = err
}

// End logs the span and returns how long it ran.
func (s *Span) End() time.Duration {
	d := time.Since(s.start)
	args := append([]any{"span", s.name, "duration", d}, s.attrs...)
	if s.err != nil {
		args = append(args, "error", s.err)
	}
	Logger(s.ctx).Debug("span ended", args...)
	return d
}
