// Package ratelimit provides a process-wide fixed-window request
// limiter keyed by client identifier.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per client in fixed wall-clock windows. One
// instance guards one endpoint class; the zero value is not usable,
// construct with NewLimiter.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	max      int
	interval time.Duration
	now      func() time.Time
}

func NewLimiter(max int, interval time.Duration) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		max:      max,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records one request from the given client and reports whether
// it fits into the current window. When the window is exhausted the
// second return value carries the seconds until it resets.
func (l *Limiter) Allow(clientID string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[clientID]
	if !ok || now.After(w.resetAt) {
		l.windows[clientID] = &window{count: 1, resetAt: now.Add(l.interval)}
		return true, 0
	}
	if w.count >= l.max {
		return false, int(math.Ceil(w.resetAt.Sub(now).Seconds()))
	}
	w.count++
	return true, 0
}
