package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter implements a token bucket with exponential error backoff.
// Generation providers throttle aggressively; the bucket smooths request
// bursts and the backoff keeps a failing provider from being hammered.
type RateLimiter struct {
	requestsPerMinute int
	tokens            chan struct{}
	stop              chan struct{}
	mu                sync.Mutex

	consecutiveErrors int
	lastErrorTime     time.Time
	backoffDuration   time.Duration
}

// NewRateLimiter creates a rate limiter allowing rpm requests per minute.
func NewRateLimiter(rpm int) *RateLimiter {
	if rpm <= 0 {
		rpm = 60
	}

	rl := &RateLimiter{
		requestsPerMinute: rpm,
		tokens:            make(chan struct{}, rpm),
		stop:              make(chan struct{}),
	}
	for i := 0; i < rpm; i++ {
		rl.tokens <- struct{}{}
	}

	go rl.refillLoop()

	return rl
}

// Wait blocks until a token is available or the context is done.
// Returns an error immediately while error backoff is active.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if remaining := rl.backoffRemaining(); remaining > 0 {
		return fmt.Errorf("backoff active for %s", remaining.Round(time.Millisecond))
	}

	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordSuccess resets the error backoff.
func (rl *RateLimiter) RecordSuccess() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.consecutiveErrors = 0
	rl.backoffDuration = 0
}

// RecordError bumps the consecutive-error count and doubles the backoff,
// capped at five minutes.
func (rl *RateLimiter) RecordError() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.consecutiveErrors++
	rl.lastErrorTime = time.Now()

	backoff := time.Duration(1<<uint(rl.consecutiveErrors)) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	rl.backoffDuration = backoff
}

func (rl *RateLimiter) backoffRemaining() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.backoffDuration == 0 {
		return 0
	}
	remaining := rl.backoffDuration - time.Since(rl.lastErrorTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Close stops the refill goroutine.
func (rl *RateLimiter) Close() {
	close(rl.stop)
}

func (rl *RateLimiter) refillLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.refillTokens()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) refillTokens() {
	for i := 0; i < rl.requestsPerMinute; i++ {
		select {
		case rl.tokens <- struct{}{}:
		default:
			return
		}
	}
}
