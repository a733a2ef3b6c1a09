package strategy

import "time"

type stamped[T any] struct {
	ts time.Time
	v  T
}

// window keeps the values observed within span of the newest one.
type window[T any] struct {
	span  time.Duration
	items []stamped[T]
}

func newWindow[T any](span time.Duration) *window[T] {
	return &window[T]{span: span}
}

// Push appends v and evicts everything older than ts - span.
func (w *window[T]) Push(ts time.Time, v T) {
	w.items = append(w.items, stamped[T]{ts: ts, v: v})
	w.Evict(ts)
}

// Evict drops everything older than now - span.
func (w *window[T]) Evict(now time.Time) {
	cutoff := now.Add(-w.span)
	drop := 0
	for drop < len(w.items) && w.items[drop].ts.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		w.items = append(w.items[:0], w.items[drop:]...)
	}
}

func (w *window[T]) Len() int {
	return len(w.items)
}

func (w *window[T]) First() T {
	return w.items[0].v
}

func (w *window[T]) Last() T {
	return w.items[len(w.items)-1].v
}

func (w *window[T]) At(i int) T {
	return w.items[i].v
}

// Values copies the window contents, oldest first.
func (w *window[T]) Values() []T {
	out := make([]T, len(w.items))
	for i, it := range w.items {
		out[i] = it.v
	}
	return out
}

// cooldown blocks a new signal until interval has passed since the last one.
type cooldown struct {
	interval time.Duration
	last     time.Time
}

func (c *cooldown) Ready(now time.Time) bool {
	return c.last.IsZero() || now.Sub(c.last) >= c.interval
}

func (c *cooldown) Mark(now time.Time) {
	c.last = now
}
