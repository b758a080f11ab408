// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// RWGuard wraps RWMutex around a value and counts writes, so pollers can
// tell whether anything was published since they last looked.
type RWGuard[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial}
}

// Get returns a copy of the value (T should be a value type or immutable).
func (g *RWGuard[T]) Get() T {
	v, _ := g.Load()
	return v
}

// Load returns the value together with its version.
func (g *RWGuard[T]) Load() (T, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value, g.version
}

// Set replaces the value.
func (g *RWGuard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
	g.version++
}
