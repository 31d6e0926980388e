package enrich

import (
	"sync"
	"time"
)

// window is the span the request cap applies to.
const window = time.Minute

// slidingWindow paces enrichment requests. It enforces a minimum gap
// between consecutive request starts and caps how many requests may
// start in any trailing 60-second window. A sliding window is used
// instead of a fixed bucket so a burst cannot squeeze through at a
// bucket boundary.
//
// The limiter does no sleeping itself: callers ask for the required
// delay, wait it out on their own clock, and record the start they then
// make. That keeps the arithmetic testable without timers.
type slidingWindow struct {
	perMinute int
	minGap    time.Duration

	mu     sync.Mutex
	starts []time.Time
	last   time.Time
}

func newSlidingWindow(perMinute int, minGap time.Duration) *slidingWindow {
	return &slidingWindow{perMinute: perMinute, minGap: minGap}
}

// delay returns how long the caller must wait before a request may
// start, as of now. Zero means the request may start immediately.
func (l *slidingWindow) delay(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	var wait time.Duration
	if !l.last.IsZero() {
		if gap := l.minGap - now.Sub(l.last); gap > wait {
			wait = gap
		}
	}

	l.prune(now)
	if l.perMinute > 0 && len(l.starts) >= l.perMinute {
		if windowWait := l.starts[0].Add(window).Sub(now); windowWait > wait {
			wait = windowWait
		}
	}

	return wait
}

// record notes a request start at now.
func (l *slidingWindow) record(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	l.starts = append(l.starts, now)
	l.last = now
}

// prune drops starts that have left the trailing window.
func (l *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.starts) && !l.starts[i].After(cutoff) {
		i++
	}
	l.starts = l.starts[i:]
}
