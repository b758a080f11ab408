package batch

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]int
}

func (r *recorder) flush(items []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, items)
}

func (r *recorder) get() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]int, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestBatcher_FlushOnMaxSize(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(3, time.Hour, rec.flush)

	for i := 1; i <= 7; i++ {
		b.Add(i)
	}

	calls := rec.get()
	if len(calls) != 2 {
		t.Fatalf("flushes = %d, want 2", len(calls))
	}
	if calls[0][0] != 1 || calls[1][2] != 6 {
		t.Errorf("calls = %v", calls)
	}
	if b.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", b.Pending())
	}
}

func TestBatcher_FlushOnDelay(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(10, 20*time.Millisecond, rec.flush)
	b.Add(1)
	b.Add(2)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(rec.get()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	calls := rec.get()
	if len(calls) != 1 || len(calls[0]) != 2 {
		t.Errorf("calls = %v, want one batch of 2", calls)
	}
}

func TestBatcher_NoTimerWhenDelayDisabled(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(10, 0, rec.flush)
	b.Add(1)
	time.Sleep(20 * time.Millisecond)
	if len(rec.get()) != 0 {
		t.Error("nothing should flush without a delay or a full batch")
	}
	b.Flush()
	if len(rec.get()) != 1 {
		t.Error("explicit Flush should deliver")
	}
}

func TestBatcher_Discard(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(3, time.Hour, rec.flush)
	b.Add(1)
	b.Add(2)
	b.Discard()
	b.Add(3)
	b.Add(4)
	b.Add(5)

	calls := rec.get()
	if len(calls) != 1 || calls[0][0] != 3 {
		t.Errorf("calls = %v, want [[3 4 5]]", calls)
	}
}

func TestBatcher_SetMaxSize(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(5, time.Hour, rec.flush)
	b.Add(1)
	b.Add(2)
	b.SetMaxSize(2)
	if len(rec.get()) != 1 {
		t.Error("shrinking below the pending count should flush")
	}
}

func TestBatcher_StopRejectsAdds(t *testing.T) {
	rec := &recorder{}
	b := NewBatcher(1, time.Hour, rec.flush)
	b.Stop()
	b.Add(1)
	if len(rec.get()) != 0 || b.Pending() != 0 {
		t.Error("Add after Stop should be ignored")
	}
}
