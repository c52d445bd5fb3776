package infra

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const defaultJitter = 0.2

// Backoff computes retry delays for the poll loop and the broker reconnects
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

// NewBackoff grows the delay by mult up to max, with +/-20% jitter
func NewBackoff(min, max time.Duration, mult float64) *Backoff {
	return &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		jitter:     defaultJitter,
		current:    min,
	}
}

// NewConstantBackoff always returns d, without jitter
func NewConstantBackoff(d time.Duration) *Backoff {
	return &Backoff{
		minDelay:   d,
		maxDelay:   d,
		multiplier: 1,
		current:    d,
	}
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	wait := b.current
	if b.jitter > 0 {
		jitterFactor := rand.Float64()*2*b.jitter - b.jitter
		wait = max(b.current+time.Duration(jitterFactor*float64(b.current)), b.minDelay)
	}

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

// Wait sleeps for the next delay. It returns false if ctx ended first.
func (b *Backoff) Wait(ctx context.Context) bool {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
