package pipeline

import (
	"math"
	"time"
)

type sample struct {
	price float64
	at    time.Time
}

// slidingWindow is a bounded time-ordered sequence of recent prices for
// one pool. Entries older than the span are evicted lazily on each
// observe call. Not safe for concurrent use; callers hold the pool lock.
type slidingWindow struct {
	span    time.Duration
	samples []sample
}

func newSlidingWindow(span time.Duration) *slidingWindow {
	return &slidingWindow{span: span}
}

// observe records a price and returns the relative delta against the
// earliest sample still inside the window. The first observation for a
// pool has no baseline and yields 0.
func (w *slidingWindow) observe(price float64, now time.Time) float64 {
	w.evict(now)

	delta := 0.0
	if len(w.samples) > 0 {
		earliest := w.samples[0].price
		if earliest != 0 {
			delta = math.Abs(price-earliest) / math.Abs(earliest)
		}
	}

	w.samples = append(w.samples, sample{price: price, at: now})
	return delta
}

// evict drops samples older than span.
func (w *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = w.samples[i:]
	}
}

func (w *slidingWindow) len() int {
	return len(w.samples)
}
