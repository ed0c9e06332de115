package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces browser interactions by a random delay between min and max
// so the automation does not type and click at machine speed.
type Pacer struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool
}

func NewPacer(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
	}
}

// Pace blocks until the chosen delay has passed since the previous call.
// A cancelled ctx fails even when no wait is due.
func (p *Pacer) Pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.lastAction)
	delay := p.calculateDelay()

	if elapsed < delay {
		timer := time.NewTimer(delay - elapsed)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.lastAction = time.Now()
	return nil
}

func (p *Pacer) calculateDelay() time.Duration {
	if !p.jitter || p.minDelay >= p.maxDelay {
		return p.minDelay
	}

	delta := p.maxDelay - p.minDelay
	jitter := time.Duration(rand.Int63n(int64(delta)))
	return p.minDelay + jitter
}
