package ticks

import (
	"sync"
	"time"
)

// Tick is one (timestamp, price) observation of the traded instrument.
// Timestamp is Unix seconds with fractional part.
type Tick struct {
	TS    float64
	Price float64
}

// Stats describes the current state of the window for status surfaces.
type Stats struct {
	Total      int
	InWindow   int
	LastRecvTS float64
}

// Window is a capacity-bounded, time-ordered tick buffer.
// One writer (the feed) and one reader (the decision loop) share it,
// so every access goes through the mutex. Ticks arrive in order and the
// window never re-sorts.
type Window struct {
	mu       sync.Mutex
	buf      []Tick
	capacity int
	lastRecv float64
}

// NewWindow creates a window holding at most capacity ticks,
// evicting the oldest once full.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		buf:      make([]Tick, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a tick in arrival order. Never blocks beyond the mutex.
func (w *Window) Push(ts, price float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) >= w.capacity {
		// Shift rather than reallocate; capacity stays stable.
		copy(w.buf, w.buf[1:])
		w.buf = w.buf[:len(w.buf)-1]
	}
	w.buf = append(w.buf, Tick{TS: ts, Price: price})
	w.lastRecv = ts
}

// Snapshot returns the prices whose timestamp falls within
// [now-windowSec, now], oldest first. If fewer than minCount qualify,
// it falls back to the most recent minCount raw ticks regardless of age
// so the engine always has something to reason about during feed gaps.
// The returned slice is a copy, never a view into the live buffer.
func (w *Window) Snapshot(windowSec float64, now float64, minCount int) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now - windowSec
	prices := make([]float64, 0, len(w.buf))
	for _, t := range w.buf {
		if t.TS >= cutoff && t.TS <= now {
			prices = append(prices, t.Price)
		}
	}
	if len(prices) < minCount {
		start := len(w.buf) - minCount
		if start < 0 {
			start = 0
		}
		prices = prices[:0]
		for _, t := range w.buf[start:] {
			prices = append(prices, t.Price)
		}
	}
	return prices
}

// Stats reports counts for the status command.
func (w *Window) Stats(windowSec float64, now float64) Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now - windowSec
	in := 0
	for _, t := range w.buf {
		if t.TS >= cutoff && t.TS <= now {
			in++
		}
	}
	return Stats{Total: len(w.buf), InWindow: in, LastRecvTS: w.lastRecv}
}

// Len returns the number of buffered ticks.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Now returns the wall clock as float seconds, the timebase used
// throughout the decision core.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
