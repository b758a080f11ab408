// Package batch accumulates items and hands them off in groups.
package batch

import (
	"sync"
	"time"
)

// Batcher accumulates items and flushes them when maxSize is reached or
// flushDelay passes without a new item. onFlush runs with the batcher locked,
// so batches are delivered one at a time and in order.
type Batcher[T any] struct {
	maxSize    int
	flushDelay time.Duration
	onFlush    func([]T)

	mu      sync.Mutex
	items   []T
	timer   *time.Timer
	stopped bool
}

// NewBatcher creates a batcher. A non-positive flushDelay disables the
// timer; only size and explicit flushes deliver.
func NewBatcher[T any](maxSize int, flushDelay time.Duration, onFlush func([]T)) *Batcher[T] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Batcher[T]{
		maxSize:    maxSize,
		flushDelay: flushDelay,
		onFlush:    onFlush,
		items:      make([]T, 0, maxSize),
	}
}

// Add queues an item. It flushes synchronously when the batch is full.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	b.items = append(b.items, item)
	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}

	if b.flushDelay <= 0 {
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

func (b *Batcher[T]) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.flushLocked()
	}
}

func (b *Batcher[T]) flushLocked() {
	b.stopTimerLocked()
	if len(b.items) == 0 {
		return
	}
	items := b.items
	b.items = make([]T, 0, b.maxSize)
	b.onFlush(items)
}

func (b *Batcher[T]) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Flush forces immediate delivery of pending items.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Discard drops pending items without delivering them.
func (b *Batcher[T]) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
	clear(b.items)
	b.items = b.items[:0]
}

// Pending returns the number of queued items.
func (b *Batcher[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// SetMaxSize changes the batch size. A pending batch that already meets the
// new size is flushed.
func (b *Batcher[T]) SetMaxSize(n int) {
	if n <= 0 {
		n = DefaultMaxSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxSize = n
	if len(b.items) >= n {
		b.flushLocked()
	}
}

// Stop discards pending items and rejects further Adds.
func (b *Batcher[T]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.stopTimerLocked()
	b.items = nil
}
