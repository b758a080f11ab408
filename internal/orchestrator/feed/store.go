// Package feed keeps the recent history of analyzer outcomes and fans them
// out to a listener.
package feed

import (
	"sync"
	"time"

	"github.com/explab/explab/internal/analyzer"
	"github.com/explab/explab/internal/checkpoint"
)

// Event is one computed analyzer outcome. Exactly one of Exp or Gauge is set.
type Event struct {
	Kind    checkpoint.Kind
	Session string
	At      time.Time
	Exp     *analyzer.ExpResult
	Gauge   *analyzer.GaugeResult
}

// Status returns the result status carried by the event.
func (e Event) Status() analyzer.Status {
	switch {
	case e.Exp != nil:
		return e.Exp.Status
	case e.Gauge != nil:
		return e.Gauge.Status
	default:
		return analyzer.StatusEmpty
	}
}

// Store is a bounded in-memory event history with a non-blocking event
// channel.
type Store struct {
	mu       sync.RWMutex
	entries  []Event
	maxSize  int
	eventsCh chan Event
}

// NewStore creates a store keeping maxEntries events.
func NewStore(maxEntries, eventBuffer int) *Store {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Store{
		entries:  make([]Event, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
	}
}

// Publish records e and emits it.
func (s *Store) Publish(e Event) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
	s.mu.Unlock()
	s.Emit(e)
}

// Recent returns events of kind newer than d, oldest first.
func (s *Store) Recent(kind checkpoint.Kind, d time.Duration) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-d)
	var out []Event
	for _, e := range s.entries {
		if e.Kind == kind && !e.At.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops the history of kind.
func (s *Store) Clear(kind checkpoint.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Kind != kind {
			kept = append(kept, e)
		}
	}
	clear(s.entries[len(kept):])
	s.entries = kept
}

// Events returns the channel for outcome events.
func (s *Store) Events() <-chan Event {
	return s.eventsCh
}

// Emit sends an event without blocking; it is dropped when nobody keeps up.
func (s *Store) Emit(e Event) {
	select {
	case s.eventsCh <- e:
	default:
	}
}

// Entries returns a copy of all events.
func (s *Store) Entries() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.entries))
	copy(out, s.entries)
	return out
}
