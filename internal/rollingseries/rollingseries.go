// Package rollingseries provides the bounded FIFO window that every
// SymbolState series (1m closes/highs/lows/volumes/opens, OI, HTF buckets)
// is built from.
package rollingseries

import "github.com/kestrel-labs/perpscreen/internal/ringbuf"

// Series is a bounded, ordered sequence of float64 values. Appending past
// maxlen evicts the oldest element (the invariant from the DATA MODEL:
// len <= maxlen; oldest element is evicted on append). Not thread-safe —
// callers must confine access to the owning SymbolState's single logical
// writer (§5 CONCURRENCY MODEL).
type Series struct {
	ring *ringbuf.Ring[float64]
}

// New creates a Series with the given fixed capacity.
func New(maxlen int) *Series {
	return &Series{ring: ringbuf.New[float64](maxlen)}
}

// Append adds a new value, evicting the oldest if the series is full.
func (s *Series) Append(v float64) { s.ring.Push(v) }

// Len returns the number of values currently held.
func (s *Series) Len() int { return s.ring.Len() }

// Cap returns the maximum length of the series.
func (s *Series) Cap() int { return s.ring.Cap() }

// Last returns the most recently appended value.
func (s *Series) Last() (float64, bool) { return s.ring.Last() }

// FromEnd returns the value n positions back from the newest (0 = newest).
func (s *Series) FromEnd(n int) (float64, bool) { return s.ring.NthFromEnd(n) }

// Slice copies the series out in oldest-to-newest order.
func (s *Series) Slice() []float64 { return s.ring.Slice() }

// Tail returns the last n values in oldest-to-newest order, or false if
// fewer than n values are available.
func (s *Series) Tail(n int) ([]float64, bool) {
	if s.Len() < n {
		return nil, false
	}
	full := s.Slice()
	return full[len(full)-n:], true
}

// Ready reports whether the series holds at least n values.
func (s *Series) Ready(n int) bool { return s.Len() >= n }
