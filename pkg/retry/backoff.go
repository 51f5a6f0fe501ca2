// Package retry spaces out repeated connection attempts to a stage.
package retry

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// A USB serial adapter that failed to open usually comes back within a few
// hundred milliseconds.
const (
	DefaultInitial    = 250 * time.Millisecond
	DefaultMax        = 5 * time.Second
	DefaultMultiplier = 2.0
	DefaultJitter     = 0.25
)

// Config shapes a Backoff. Zero fields take the defaults; Jitter is a
// fraction of the delay added at random, zero meaning none.
type Config struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (c Config) normalized() Config {
	if c.Initial <= 0 {
		c.Initial = DefaultInitial
	}
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	c.Max = max(c.Max, c.Initial)
	if c.Multiplier <= 1 {
		c.Multiplier = DefaultMultiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Backoff hands out growing delays between attempts. It is safe for
// concurrent use.
type Backoff struct {
	cfg Config

	mu       sync.Mutex
	delay    time.Duration
	attempts int
}

// NewBackoff returns a Backoff with the default delays and jitter.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(Config{Jitter: DefaultJitter})
}

// NewBackoffWithConfig returns a Backoff shaped by cfg.
func NewBackoffWithConfig(cfg Config) *Backoff {
	cfg = cfg.normalized()
	return &Backoff{cfg: cfg, delay: cfg.Initial}
}

// Next returns the delay before the next attempt and grows the base delay
// toward Max.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.delay
	if b.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * b.cfg.Jitter * rand.Float64())
	}
	b.attempts++
	b.delay = min(time.Duration(float64(b.delay)*b.cfg.Multiplier), b.cfg.Max)
	return d
}

// Reset starts over from the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = b.cfg.Initial
	b.attempts = 0
}

// Attempts is how many delays Next has returned since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current is the base delay Next will start from.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delay
}

// Do calls fn until it succeeds, at most attempts times, waiting b.Next()
// after each failure. When the attempts run out or ctx ends during a wait it
// returns fn's last error. A nil b means NewBackoff and attempts below 1 mean
// one try.
func Do(ctx context.Context, attempts int, b *Backoff, fn func(ctx context.Context) error) error {
	attempts = max(attempts, 1)
	if b == nil {
		b = NewBackoff()
	}

	var err error
	for i := range attempts {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || i == attempts-1 {
			return err
		}

		t := time.NewTimer(b.Next())
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
