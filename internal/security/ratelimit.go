// ABOUTME: Per-sender sliding-window rate limiter with minute and hour windows.
// ABOUTME: Windows are pruned by timestamp rather than fixed buckets to avoid boundary bursts.

package security

import (
	"sync"
	"time"
)

// RateLimiter tracks request timestamps per sender and allows a request
// only while both the per-minute and per-hour counts are under their
// limits. Counters live in memory only; a restart clears them.
type RateLimiter struct {
	perMinute int
	perHour   int

	mu      sync.Mutex
	windows map[string][]time.Time

	// now is swappable for tests
	now func() time.Time
}

// NewRateLimiter creates a limiter with the given window limits.
func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		windows:   make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Allow records a request for key and reports whether it is within both
// limits. A denied request is not recorded, so it does not extend the
// sender's penalty.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hourAgo := now.Add(-time.Hour)
	minuteAgo := now.Add(-time.Minute)

	// Prune everything older than the hour window
	window := l.windows[key]
	kept := window[:0]
	minuteCount := 0
	for _, ts := range window {
		if ts.Before(hourAgo) {
			continue
		}
		kept = append(kept, ts)
		if !ts.Before(minuteAgo) {
			minuteCount++
		}
	}

	if len(kept) >= l.perHour || minuteCount >= l.perMinute {
		l.windows[key] = kept
		return false
	}

	l.windows[key] = append(kept, now)
	return true
}
