package ocr

import (
	"context"
	"image"
	"log/slog"
	"sync"

	apperrors "github.com/explab/explab/internal/errors"
)

// Factory builds an Engine. It may be slow (model load, network dial).
type Factory func(ctx context.Context) (Engine, error)

// Lazy defers engine construction until Init or the first recognition call.
// A failed construction is not cached; the next call tries again.
type Lazy struct {
	factory Factory

	mu     sync.Mutex
	engine Engine
}

// NewLazy wraps factory. Call Init for eager initialization.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// Init constructs the engine now if it has not been constructed yet.
func (l *Lazy) Init(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

// Ready reports whether the engine has been constructed.
func (l *Lazy) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

func (l *Lazy) get(ctx context.Context) (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil {
		return l.engine, nil
	}
	slog.Info("initializing OCR engine")
	e, err := l.factory(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOCRInitFailed, "initialize OCR engine")
	}
	l.engine = e
	slog.Info("OCR engine initialized")
	return e, nil
}

// Recognize implements Engine.
func (l *Lazy) Recognize(ctx context.Context, img image.Image, opts Options) ([]TextResult, error) {
	e, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.Recognize(ctx, img, opts)
}

// RecognizeBatch implements Engine.
func (l *Lazy) RecognizeBatch(ctx context.Context, imgs []image.Image, opts Options) ([][]TextResult, error) {
	e, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.RecognizeBatch(ctx, imgs, opts)
}
