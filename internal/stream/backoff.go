package stream

import (
	"context"
	"math"
	"time"
)

// Backoff computes reconnect delays.
type Backoff struct {
	// Initial is the delay after the first failure.
	Initial time.Duration

	// Max caps the delay before jitter is applied.
	Max time.Duration

	// Multiplier grows the delay per consecutive failure. Values below 1 mean 2.
	Multiplier float64

	// Jitter spreads each delay uniformly by +/- this fraction (0..1).
	Jitter float64
}

// DefaultBackoff returns 5s doubling to 60s with 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    5 * time.Second,
		Max:        60 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// FixedBackoff returns a constant delay with no jitter.
func FixedBackoff(d time.Duration) Backoff {
	return Backoff{Initial: d, Max: d, Multiplier: 1, Jitter: 0}
}

// Delay returns the wait before reconnect attempt n (n >= 1 counts
// consecutive failures). rnd must return values in [0, 1).
func (b Backoff) Delay(n int, rnd func() float64) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := float64(b.Initial) * math.Pow(mult, float64(n-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}

	if b.Jitter > 0 && rnd != nil {
		j := math.Min(b.Jitter, 1)
		d *= 1 + j*(2*rnd()-1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
