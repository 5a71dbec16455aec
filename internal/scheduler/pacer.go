package scheduler

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces consecutive gateway calls: a token bucket bounds the
// sustained rate and a random jitter is added per call. This is the
// rate-limit courtesy policy, deliberately decoupled from the retry
// backoff.
type Pacer struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
}

// NewPacer creates a pacer. perSecond and burst bound the token bucket;
// each Wait additionally sleeps a random duration in [minDelay, maxDelay).
func NewPacer(perSecond float64, burst int, minDelay, maxDelay time.Duration) *Pacer {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// Wait blocks until the next call may proceed, or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	delay := p.minDelay
	if p.maxDelay > p.minDelay {
		delay += rand.N(p.maxDelay - p.minDelay)
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
