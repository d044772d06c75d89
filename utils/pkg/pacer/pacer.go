// Package pacer spaces out sequential calls against a shared backend.
package pacer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Pacer blocks until the next unit of work may start.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Rate is a token bucket allowing one unit of work per interval.
type Rate struct {
	limiter *rate.Limiter
}

func NewRate(interval time.Duration) *Rate {
	return &Rate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (r *Rate) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Fixed waits a constant delay on every call.
type Fixed struct {
	clock clockwork.Clock
	delay time.Duration
}

func NewFixed(clock clockwork.Clock, delay time.Duration) *Fixed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Fixed{clock: clock, delay: delay}
}

func (f *Fixed) Wait(ctx context.Context) error {
	if f.delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.clock.After(f.delay):
		return nil
	}
}
