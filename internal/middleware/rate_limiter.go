// Package middleware provides per-connection request throttling.
package middleware

import (
	"sync/atomic"
	"time"
)

// RateLimiter is a lock-free token bucket. Each inbound frame costs one
// token; tokens refill at one per rate interval up to burst.
type RateLimiter struct {
	tokens   int32
	rate     time.Duration
	burst    int32
	lastTick int64
}

// NewRateLimiter creates a bucket that starts full.
func NewRateLimiter(burst int32, rate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:   burst,
		rate:     rate,
		burst:    burst,
		lastTick: time.Now().UnixNano(),
	}
}

// Allow consumes a token if one is available and reports whether the caller
// may proceed.
func (l *RateLimiter) Allow() bool {
	now := time.Now().UnixNano()
	last := atomic.LoadInt64(&l.lastTick)

	if generated := int32((now - last) / int64(l.rate)); generated > 0 {
		if atomic.CompareAndSwapInt64(&l.lastTick, last, now) {
			for {
				current := atomic.LoadInt32(&l.tokens)
				refilled := current + generated
				if refilled > l.burst {
					refilled = l.burst
				}
				if atomic.CompareAndSwapInt32(&l.tokens, current, refilled) {
					break
				}
			}
		}
	}

	for {
		current := atomic.LoadInt32(&l.tokens)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&l.tokens, current, current-1) {
			return true
		}
	}
}
