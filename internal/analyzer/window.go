package analyzer

// window is a FIFO-evicting ordered buffer.
type window[T any] struct {
	items []T
}

// push appends v, first evicting from the front so that the result holds at
// most capacity items. It returns how many items were evicted.
func (w *window[T]) push(v T, capacity int) int {
	evicted := w.trim(capacity - 1)
	w.items = append(w.items, v)
	return evicted
}

// trim evicts the oldest items until at most n remain.
func (w *window[T]) trim(n int) int {
	if n < 0 {
		n = 0
	}
	over := len(w.items) - n
	if over <= 0 {
		return 0
	}
	var zero T
	for i := 0; i < over; i++ {
		w.items[i] = zero
	}
	w.items = append(w.items[:0], w.items[over:]...)
	return over
}

func (w *window[T]) reset() {
	clear(w.items)
	w.items = w.items[:0]
}

func (w *window[T]) len() int { return len(w.items) }

func (w *window[T]) last() (T, bool) {
	if len(w.items) == 0 {
		var zero T
		return zero, false
	}
	return w.items[len(w.items)-1], true
}

func (w *window[T]) snapshot() []T {
	out := make([]T, len(w.items))
	copy(out, w.items)
	return out
}
