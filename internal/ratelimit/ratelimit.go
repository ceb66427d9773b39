package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pacer enforces a minimum delay between consecutive requests to the
// same upstream (an API provider, a scraped host). Collectors paging
// through an API and the orchestrator walking its source list share one
// instance per upstream key.
type Pacer struct {
	mu       sync.Mutex
	lastCall map[string]time.Time
	minDelay time.Duration
}

// NewPacer creates a pacer enforcing minDelay between consecutive
// requests that share a key.
func NewPacer(minDelay time.Duration) *Pacer {
	return &Pacer{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request for
// key. Returns an error only when the context is cancelled while
// waiting.
func (p *Pacer) Wait(ctx context.Context, key string) error {
	p.mu.Lock()
	last, ok := p.lastCall[key]
	now := time.Now()

	if !ok {
		p.lastCall[key] = now
		p.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= p.minDelay {
		p.lastCall[key] = now
		p.mu.Unlock()
		return nil
	}

	remaining := p.minDelay - elapsed
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("pacer wait for %s: %w", key, ctx.Err())
	case <-time.After(remaining):
	}

	p.mu.Lock()
	p.lastCall[key] = time.Now()
	p.mu.Unlock()

	return nil
}
