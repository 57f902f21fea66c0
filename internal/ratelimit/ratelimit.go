package ratelimit

import (
	"sync"
	"time"

	"github.com/biogate/biogate/internal/clock"
)

// sweepInterval is the number of Admit calls between full sweeps of
// disused origin entries. The sweep is lazy; there is no background timer.
const sweepInterval = 256

// Limiter enforces an at-most-N-attempts-per-trailing-window policy per
// origin key. The window is a trailing interval recomputed at each check,
// not aligned to wall-clock boundaries, and entries are pruned lazily.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	clk    clock.Clock
	ops    int
	byKey  map[string]*originWindow
}

type originWindow struct {
	attempts []time.Time
	// throttled marks that a rejection has already been reported for the
	// currently saturated window, so the caller alerts once per transition.
	throttled bool
}

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted bool
	// RetryAfter is how long until the earliest recorded attempt leaves the
	// window. Zero when admitted.
	RetryAfter time.Duration
	// FirstThrottle is true on the first rejection of a saturated window.
	FirstThrottle bool
}

// New creates a Limiter admitting at most max attempts per trailing window.
func New(window time.Duration, max int, clk clock.Clock) *Limiter {
	return &Limiter{
		window: window,
		max:    max,
		clk:    clk,
		byKey:  make(map[string]*originWindow),
	}
}

// Admit checks whether a new attempt from origin may proceed. Prune, check
// and append happen under one lock so two concurrent requests cannot both
// claim the last remaining slot. A rejected attempt is not recorded.
func (l *Limiter) Admit(origin string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()

	l.ops++
	if l.ops%sweepInterval == 0 {
		l.sweepLocked(now)
	}

	w := l.byKey[origin]
	if w == nil {
		w = &originWindow{}
		l.byKey[origin] = w
	}
	w.prune(now, l.window)

	if len(w.attempts) >= l.max {
		first := !w.throttled
		w.throttled = true
		return Decision{
			RetryAfter:    w.attempts[0].Add(l.window).Sub(now),
			FirstThrottle: first,
		}
	}

	w.attempts = append(w.attempts, now)
	w.throttled = false
	return Decision{Admitted: true}
}

// Origins returns the number of tracked origin keys.
func (l *Limiter) Origins() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

// prune drops attempts older than the trailing window.
func (w *originWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(w.attempts) && !w.attempts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.attempts = append(w.attempts[:0], w.attempts[i:]...)
	}
}

// sweepLocked evicts origins whose windows have fully drained, so disused
// keys do not accumulate forever.
func (l *Limiter) sweepLocked(now time.Time) {
	for key, w := range l.byKey {
		w.prune(now, l.window)
		if len(w.attempts) == 0 {
			delete(l.byKey, key)
		}
	}
}
