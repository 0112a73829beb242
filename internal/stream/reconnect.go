package stream

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffConfig holds the configuration for exponential backoff between
// failover rounds.
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
	// JitterPercent adds up to this fraction of random extra delay at
	// sleep time (0.2 = up to +20%). The underlying delay sequence
	// stays monotonic; jitter only spreads simultaneous reconnects.
	JitterPercent float64
}

// Backoff produces the reconnect delay sequence
// min(max_delay, base_delay * multiplier^attempt). The attempt counter
// resets to zero on any successful connection, so the next failure
// starts again from base_delay.
type Backoff struct {
	cfg     BackoffConfig
	mu      sync.Mutex
	attempt int
}

// NewBackoff creates a backoff tracker with the given config.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg}
}

// Next returns the delay before the next failover round and advances the
// attempt counter. ok is false once MaxAttempts rounds have been used;
// the caller must surface that as a fatal exhaustion condition.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempt >= b.cfg.MaxAttempts {
		return 0, false
	}

	d := float64(b.cfg.BaseDelay) * math.Pow(b.cfg.Multiplier, float64(b.attempt))
	if d > float64(b.cfg.MaxDelay) {
		d = float64(b.cfg.MaxDelay)
	}
	b.attempt++

	return time.Duration(d), true
}

// Attempt returns the number of rounds used since the last reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Reset resets the attempt counter after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// withJitter applies the configured jitter fraction to a delay.
func (b *Backoff) withJitter(d time.Duration) time.Duration {
	if b.cfg.JitterPercent <= 0 {
		return d
	}
	jitter := rand.Float64() * b.cfg.JitterPercent
	return time.Duration(float64(d) * (1.0 + jitter))
}
