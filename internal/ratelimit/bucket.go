package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is a token-bucket rate limiter backed by golang.org/x/time/rate.
// It keeps the capacity/refillRate vocabulary the rest of this package
// (and its callers) already use rather than rate.Limiter's Limit/Burst
// naming.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	limiter    *rate.Limiter
}

// NewBucket creates a new token bucket.
// capacity: maximum tokens the bucket can hold (burst size)
// refillRate: tokens added per second
func NewBucket(capacity, refillRate float64) *Bucket {
	return &Bucket{
		capacity:   capacity,
		refillRate: refillRate,
		limiter:    rate.NewLimiter(rate.Limit(refillRate), int(capacity)),
	}
}

// TryConsume attempts to consume n tokens from the bucket.
// Returns true if successful, false if insufficient tokens.
func (b *Bucket) TryConsume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter.AllowN(time.Now(), int(n))
}

// Tokens returns the current number of available tokens.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter.TokensAt(time.Now())
}

// TimeToWait returns the duration to wait until n tokens are available.
// Returns 0 if tokens are already available. Does not consume tokens.
func (b *Bucket) TimeToWait(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens := b.limiter.TokensAt(time.Now())
	if tokens >= n {
		return 0
	}

	needed := n - tokens
	seconds := needed / b.refillRate
	return time.Duration(seconds * float64(time.Second))
}

// Reset resets the bucket to full capacity.
func (b *Bucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limiter = rate.NewLimiter(rate.Limit(b.refillRate), int(b.capacity))
}

// Capacity returns the bucket's maximum capacity.
func (b *Bucket) Capacity() float64 {
	return b.capacity
}

// RefillRate returns the bucket's refill rate in tokens/second.
func (b *Bucket) RefillRate() float64 {
	return b.refillRate
}
