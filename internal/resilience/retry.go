package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff is an exponential retry policy with jitter.
type Backoff struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	// Jitter is the ± fraction applied to each delay.
	Jitter float64
	// Retryable decides whether an error is retried. Defaults to IsTransient.
	Retryable func(err error) bool
}

// DefaultBackoff returns 3 attempts starting at 250ms, doubling, capped at 5s.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  250 * time.Millisecond,
		Max:      5 * time.Second,
		Factor:   2,
		Jitter:   0.2,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = d.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Factor < 1 {
		b.Factor = d.Factor
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	d := float64(b.Initial) * math.Pow(b.Factor, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts are used up or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.withDefaults()
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt+1 >= b.Attempts {
			return zero, err
		}

		delay := b.Delay(attempt)
		zap.L().Debug("resilience: retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
}
