// ABOUTME: Tests for the sliding-window rate limiter.
// ABOUTME: Uses an injected clock to verify window rollover without sleeping.

package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_MinuteLimit(t *testing.T) {
	limiter := NewRateLimiter(3, 100)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("telegram:alice"))
	assert.True(t, limiter.Allow("telegram:alice"))
	assert.True(t, limiter.Allow("telegram:alice"))

	// limit+1-th within the rolling minute is denied
	assert.False(t, limiter.Allow("telegram:alice"))
}

func TestRateLimiter_WindowRollsPast(t *testing.T) {
	limiter := NewRateLimiter(3, 100)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("telegram:alice"))
	}
	assert.False(t, limiter.Allow("telegram:alice"))

	// After the window fully rolls past, the sender succeeds again
	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Allow("telegram:alice"))
}

func TestRateLimiter_HourLimit(t *testing.T) {
	limiter := NewRateLimiter(100, 5)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("telegram:alice"))
		now = now.Add(2 * time.Minute) // stay under the minute limit
	}
	assert.False(t, limiter.Allow("telegram:alice"))

	// An hour past the first request, one slot frees up
	now = now.Add(52 * time.Minute)
	assert.True(t, limiter.Allow("telegram:alice"))
}

func TestRateLimiter_KeysIndependent(t *testing.T) {
	limiter := NewRateLimiter(1, 100)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("telegram:alice"))
	assert.False(t, limiter.Allow("telegram:alice"))

	// A different sender has their own window
	assert.True(t, limiter.Allow("telegram:bob"))
}

func TestRateLimiter_DenialNotRecorded(t *testing.T) {
	limiter := NewRateLimiter(2, 100)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("telegram:alice"))
	assert.True(t, limiter.Allow("telegram:alice"))
	assert.False(t, limiter.Allow("telegram:alice"))
	assert.False(t, limiter.Allow("telegram:alice"))

	// Only the two allowed requests count toward the window
	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Allow("telegram:alice"))
}
