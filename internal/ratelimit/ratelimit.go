// Package ratelimit provides per-client token-bucket admission control for
// the contribution ingest path. It is an abuse-mitigation heuristic, not a
// security boundary.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults: 30 requests per key with a continuous refill of 30 per minute,
// idle buckets dropped after 5 minutes.
const (
	DefaultBurst        = 30
	DefaultRefillPerSec = 0.5
	DefaultIdleTimeout  = 5 * time.Minute
)

type bucket struct {
	lim       *rate.Limiter
	lastTouch time.Time
}

// Limiter owns a map of per-key token buckets. The clock is injected so
// refill behavior is testable without real sleeps.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	refill      rate.Limit
	burst       int
	idleTimeout time.Duration
	now         func() time.Time
}

// New creates a Limiter with the given refill rate (tokens per second) and
// bucket capacity.
func New(refillPerSec float64, burst int, idleTimeout time.Duration) *Limiter {
	return &Limiter{
		buckets:     make(map[string]*bucket),
		refill:      rate.Limit(refillPerSec),
		burst:       burst,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// NewDefault creates a Limiter with the standard ingest settings.
func NewDefault() *Limiter {
	return New(DefaultRefillPerSec, DefaultBurst, DefaultIdleTimeout)
}

// SetClock replaces the wall clock. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Allow reports whether a request for key is admitted, consuming one token
// when it is. An unseen key gets a bucket at capacity and its first request
// is always allowed. Refill is continuous, proportional to elapsed time and
// capped at capacity; a denied request consumes nothing.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.refill, l.burst)}
		l.buckets[key] = b
	}
	b.lastTouch = now

	return b.lim.AllowN(now, 1)
}

// Sweep discards buckets that have not been touched within the idle timeout
// and returns how many were removed. This bounds memory; it is not
// correctness-relevant.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastTouch) > l.idleTimeout {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets on the given interval until the context is
// canceled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				log.Printf("Rate limiter swept %d idle buckets", n)
			}
		}
	}
}

// Size returns the number of live buckets.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
