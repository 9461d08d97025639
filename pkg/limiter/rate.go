package limiter

import (
	"context"
	"sync"
	"time"
)

// RateLimiter
// Specialized component to keep the crawl polite toward each origin host
// Responsibilities:
// - Bookkeep each hostname's most recent grant timestamp
// - Enforce a minimum spacing between outbound requests per host
// - Never hold the bookkeeping lock across the wait
type RateLimiter interface {
	SetBaseDelay(baseDelay time.Duration)
	Acquire(ctx context.Context, host string) error
}

type ConcurrentRateLimiter struct {
	mu          sync.RWMutex
	baseDelay   time.Duration
	hostTimings map[string]hostTiming
}

func NewConcurrentRateLimiter() *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hostTimings: make(map[string]hostTiming),
	}
}

func (r *ConcurrentRateLimiter) SetBaseDelay(baseDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseDelay = baseDelay
}

// Acquire blocks until at least the base delay has elapsed since the
// previous grant for host, then returns. The grant slot is reserved under
// the lock before sleeping, so concurrent callers for the same host queue
// up at spacing-sized intervals instead of stampeding when the wait ends.
// A zero or negative base delay is a no-op. Cancelling the context
// abandons the wait but the reserved slot stays consumed.
func (r *ConcurrentRateLimiter) Acquire(ctx context.Context, host string) error {
	r.mu.Lock()
	delay := r.baseDelay
	if delay <= 0 {
		r.mu.Unlock()
		return nil
	}

	now := time.Now()
	target := now
	if timing, exists := r.hostTimings[host]; exists {
		if next := timing.lastGrantAt.Add(delay); next.After(now) {
			target = next
		}
	}
	r.hostTimings[host] = hostTiming{lastGrantAt: target}
	r.mu.Unlock()

	wait := time.Until(target)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ConcurrentRateLimiter) GetBaseDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseDelay
}

// LastGrantAt reports the most recent grant reservation for host.
func (r *ConcurrentRateLimiter) LastGrantAt(host string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	timing, exists := r.hostTimings[host]
	return timing.lastGrantAt, exists
}

func (r *ConcurrentRateLimiter) GetHostTimings() map[string]hostTiming {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// return a shallow copy to avoid exposing internal map for mutation
	copyMap := make(map[string]hostTiming, len(r.hostTimings))
	for k, v := range r.hostTimings {
		copyMap[k] = v
	}
	return copyMap
}
