package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer spaces polls. Idle polls wait the base interval; consecutive batch
// errors double the wait up to maxBackoff.
type pacer struct {
	base    time.Duration
	current time.Duration
}

func newPacer(base time.Duration) *pacer {
	return &pacer{base: base, current: base}
}

func (p *pacer) reset() { p.current = p.base }

func (p *pacer) waitIdle(ctx context.Context) error {
	return sleep(ctx, withJitter(p.base))
}

func (p *pacer) waitAfterError(ctx context.Context) error {
	p.current = nextBackoff(p.current, p.base, maxBackoff)
	return sleep(ctx, withJitter(p.current))
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
