package executor

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket guarding exchange request rates
type RateLimiter struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
	mutex      sync.Mutex
}

// NewRateLimiter creates a full bucket. A non-positive refill rate disables limiting.
func NewRateLimiter(capacity int, refillRate float64) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &RateLimiter{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow takes one token if available
func (rl *RateLimiter) Allow() bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if rl.refillRate <= 0 {
		return true
	}
	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}

		timer := time.NewTimer(rl.waitTime())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens returns the tokens currently available
func (rl *RateLimiter) Tokens() float64 {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	rl.refill()
	return rl.tokens
}

func (rl *RateLimiter) refill() {
	now := rl.now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now
}

func (rl *RateLimiter) waitTime() time.Duration {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.refill()
	missing := 1 - rl.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing/rl.refillRate*float64(time.Second)) + time.Millisecond
}
