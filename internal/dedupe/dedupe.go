// ABOUTME: TTL cache deduplicating inbound platform messages by id.
// ABOUTME: Platforms redeliver; the gateway processes each message id once.

package dedupe

import (
	"sync"
	"time"
)

type record struct {
	key string
	at  time.Time
}

// Cache tracks recently seen message keys. Expired entries are pruned
// lazily on access, so no background goroutine is needed.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	order   []record // insertion order, oldest first
	ttl     time.Duration
	maxSize int

	now func() time.Time
}

// New creates a cache with the given TTL and maximum size.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen atomically checks whether key was already recorded within the TTL
// and records it if not. Returns true for a duplicate.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if at, ok := c.seen[key]; ok && now.Sub(at) < c.ttl {
		return true
	}

	c.pruneLocked(now)
	c.seen[key] = now
	c.order = append(c.order, record{key: key, at: now})
	return false
}

// Forget removes key so its next Seen reads as fresh. Used to undo a
// mark when handling the message failed and a redelivery should retry.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The order slice keeps its slot; pruneLocked skips records whose
	// map entry is gone or re-recorded with a newer timestamp.
	delete(c.seen, key)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// pruneLocked drops expired records from the front of the order slice,
// then evicts the oldest while over capacity. A record is only removed
// from the map when its timestamp still matches; a re-recorded key keeps
// its fresher entry.
func (c *Cache) pruneLocked(now time.Time) {
	drop := func(r record) {
		if at, ok := c.seen[r.key]; ok && at.Equal(r.at) {
			delete(c.seen, r.key)
		}
	}

	i := 0
	for ; i < len(c.order); i++ {
		if now.Sub(c.order[i].at) < c.ttl {
			break
		}
		drop(c.order[i])
	}
	c.order = c.order[i:]

	for len(c.seen) >= c.maxSize && len(c.order) > 0 {
		drop(c.order[0])
		c.order = c.order[1:]
	}
}
