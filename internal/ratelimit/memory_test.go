package ratelimit

import (
	"fmt"
	"otapush/internal/models"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_AllowUnderLimit(t *testing.T) {
	limiter := NewMemoryLimiter(60, 10, 5*time.Minute)
	defer limiter.Close()

	allowed, info := limiter.Allow("192.168.1.1")
	assert.True(t, allowed)
	assert.Equal(t, 60, info.Limit)
	assert.Equal(t, 9, info.Remaining)
	assert.True(t, info.ResetAt.After(time.Now().Add(-time.Second)))
	assert.Zero(t, info.RetryAfter)
}

func TestMemoryLimiter_ExceedsBurst(t *testing.T) {
	limiter := NewMemoryLimiter(60, 3, 5*time.Minute)
	defer limiter.Close()

	for i := range 3 {
		allowed, _ := limiter.Allow("device")
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, info := limiter.Allow("device")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, info.RetryAfter, time.Second)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(60, 2, 5*time.Minute)
	defer limiter.Close()

	limiter.Allow("a")
	limiter.Allow("a")
	allowed, _ := limiter.Allow("a")
	assert.False(t, allowed)

	allowed, _ = limiter.Allow("b")
	assert.True(t, allowed)
	assert.Equal(t, 2, limiter.Len())
}

func TestMemoryLimiter_Unlimited(t *testing.T) {
	limiter := NewMemoryLimiter(0, 0, 0)
	defer limiter.Close()

	for range 100 {
		allowed, _ := limiter.Allow("device")
		require.True(t, allowed)
	}
}

func TestMemoryLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewMemoryLimiter(1000, 100, 5*time.Minute)
	defer limiter.Close()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("client-%d", i%5)
			for range 20 {
				limiter.Allow(key)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, limiter.Len())
}

func TestMemoryLimiter_CloseTwice(t *testing.T) {
	limiter := NewMemoryLimiter(60, 10, 100*time.Millisecond)
	limiter.Close()
	limiter.Close()
}

func TestMemoryLimiter_EvictStale(t *testing.T) {
	limiter := NewMemoryLimiter(60, 10, time.Minute)
	defer limiter.Close()

	limiter.Allow("old")
	limiter.Allow("fresh")

	limiter.mu.Lock()
	limiter.buckets["old"].lastSeen = time.Now().Add(-3 * time.Minute)
	limiter.mu.Unlock()

	limiter.evictStale(time.Now())
	limiter.mu.Lock()
	_, hasOld := limiter.buckets["old"]
	_, hasFresh := limiter.buckets["fresh"]
	limiter.mu.Unlock()

	assert.False(t, hasOld)
	assert.True(t, hasFresh)
}

func TestMemoryLimiter_BackgroundCleanup(t *testing.T) {
	limiter := NewMemoryLimiter(60, 10, 20*time.Millisecond)
	defer limiter.Close()

	limiter.Allow("ephemeral")
	require.Equal(t, 1, limiter.Len())

	assert.Eventually(t, func() bool { return limiter.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(models.RateLimitConfig{Enabled: false}))

	limiter := New(models.RateLimitConfig{Enabled: true, RequestsPerMinute: 120, BurstSize: 20, CleanupInterval: time.Minute})
	require.NotNil(t, limiter)
	defer limiter.Close()

	_, info := limiter.Allow("x")
	assert.Equal(t, 120, info.Limit)
}
