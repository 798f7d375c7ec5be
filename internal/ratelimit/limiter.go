// Package ratelimit throttles HTTP clients with per-key token buckets and
// sets the standard X-RateLimit-* response headers.
package ratelimit

import (
	"otapush/internal/models"
	"time"
)

// Limiter decides whether the caller identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes a token for key if one is available.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info is the bucket state reported in response headers.
type Info struct {
	Limit      int           // Requests per minute
	Remaining  int           // Whole tokens left
	ResetAt    time.Time     // When the bucket is full again
	RetryAfter time.Duration // Wait before the next token, set only when denied
}

// New creates a limiter from config, or nil when rate limiting is disabled.
func New(config models.RateLimitConfig) Limiter {
	if !config.Enabled {
		return nil
	}
	return NewMemoryLimiter(config.RequestsPerMinute, config.BurstSize, config.CleanupInterval)
}
