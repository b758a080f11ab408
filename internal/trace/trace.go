// Package trace tags contexts with a trace ID and, inside a tracker run, the
// tracker kind and session. The tags follow a tick into its logs, its OCR
// calls and the breaker transitions those calls cause.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
)

// Header and gRPC metadata keys.
const (
	TraceIDKey = "x-trace-id"
	SpanIDKey  = "x-span-id"
	KindKey    = "x-tracker-kind"
	SessionKey = "x-tracker-session"
)

type ctxKey struct{}

// Context says where a unit of work belongs. Kind and Session are empty
// outside tracker runs, for example in HTTP handlers.
type Context struct {
	TraceID string
	SpanID  string
	Parent  string
	Kind    string
	Session string
}

// New starts a fresh trace.
func New() Context {
	return Context{TraceID: newID(16), SpanID: newID(8)}
}

// Child starts a span under c, keeping its trace and tracker tags. The zero
// Context has no trace yet, so one is started.
func (c Context) Child() Context {
	if c.TraceID == "" {
		c.TraceID = newID(16)
	} else {
		c.Parent = c.SpanID
	}
	c.SpanID = newID(8)
	return c
}

// FromContext returns the tags stored in ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// Run tags ctx for one tracker run. Every tick of the run shares its trace ID.
func Run(ctx context.Context, kind, session string) context.Context {
	tc := New()
	tc.Kind, tc.Session = kind, session
	return WithContext(ctx, tc)
}

func newID(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// attrs lists the non-empty tags as slog key/value pairs.
func (c Context) attrs() []any {
	args := []any{"trace_id", c.TraceID, "span_id", c.SpanID}
	if c.Parent != "" {
		args = append(args, "parent_span_id", c.Parent)
	}
	if c.Kind != "" {
		args = append(args, "kind", c.Kind)
	}
	if c.Session != "" {
		args = append(args, "session", c.Session)
	}
	return args
}

// Logger returns the default logger with ctx's tags attached.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With(tc.attrs()...)
}
