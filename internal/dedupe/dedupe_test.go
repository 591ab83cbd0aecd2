// ABOUTME: Tests for the inbound dedupe cache: TTL expiry, capacity eviction,
// ABOUTME: re-recording after expiry and concurrent access.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_FirstTimeIsFalse(t *testing.T) {
	c := New(5*time.Minute, 100)

	assert.False(t, c.Seen("telegram:msg-1"))
	assert.True(t, c.Seen("telegram:msg-1"))
}

func TestSeen_ExpiresAfterTTL(t *testing.T) {
	c := New(time.Minute, 100)
	now := time.Now()
	c.now = func() time.Time { return now }

	assert.False(t, c.Seen("k"))
	assert.True(t, c.Seen("k"))

	now = now.Add(61 * time.Second)
	assert.False(t, c.Seen("k"))
}

func TestSeen_CapacityEvictsOldest(t *testing.T) {
	c := New(time.Hour, 3)

	for i := 0; i < 5; i++ {
		c.Seen(fmt.Sprintf("k%d", i))
	}

	assert.LessOrEqual(t, c.Len(), 3)
	// Newest keys survive
	assert.True(t, c.Seen("k4"))
	// Oldest was evicted and now reads as fresh
	assert.False(t, c.Seen("k0"))
}

func TestSeen_ReRecordKeepsFreshEntry(t *testing.T) {
	c := New(time.Minute, 100)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Seen("k")
	now = now.Add(61 * time.Second)
	// Re-record after expiry; the stale order slot must not shadow it
	assert.False(t, c.Seen("k"))
	now = now.Add(30 * time.Second)
	c.Seen("other") // triggers pruning of the stale slot
	assert.True(t, c.Seen("k"))
}

func TestForget_KeyReadsFreshAgain(t *testing.T) {
	c := New(time.Minute, 100)

	assert.False(t, c.Seen("k"))
	c.Forget("k")
	assert.False(t, c.Seen("k"))
	assert.True(t, c.Seen("k"))
}

func TestForget_StaleOrderSlotDoesNotShadow(t *testing.T) {
	c := New(time.Minute, 100)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Seen("k")
	c.Forget("k")

	// Re-record; the forgotten slot is still in the order slice
	now = now.Add(30 * time.Second)
	assert.False(t, c.Seen("k"))

	// Pruning the expired stale slot must not take the fresh entry with it
	now = now.Add(31 * time.Second)
	c.Seen("other")
	assert.True(t, c.Seen("k"))
}

func TestSeen_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000)

	var wg sync.WaitGroup
	var firsts sync.Map
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%10)
			if !c.Seen(key) {
				if _, loaded := firsts.LoadOrStore(key, true); loaded {
					t.Errorf("key %s recorded as new twice", key)
				}
			}
		}(i)
	}
	wg.Wait()
}
