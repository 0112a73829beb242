package gas

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// ErrSourceSuspended is returned by a tripped breaker instead of
// hitting the wrapped source.
var ErrSourceSuspended = errors.New("gas source suspended by circuit breaker")

// BreakerConfig holds circuit breaker configuration for one source.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker.
	FailureThreshold int
	// Cooldown is how long a tripped breaker rejects fetches before
	// allowing a probe through.
	Cooldown time.Duration
	Logger   *zap.Logger
}

// BreakerSource wraps a Source with a circuit breaker so a dead
// upstream (rate-limited API, unreachable node) stops eating a timeout
// on every oracle refresh. After FailureThreshold consecutive failures
// fetches fail fast for Cooldown; the first fetch after the cooldown is
// the probe that closes or re-trips the breaker.
type BreakerSource struct {
	inner  Source
	logger *zap.Logger

	failureThreshold int
	cooldown         time.Duration

	open atomic.Bool // lock-free read on the fetch path

	mu                  sync.Mutex
	consecutiveFailures int
	openedAt            time.Time
}

// NewBreakerSource wraps a source with breaker protection.
func NewBreakerSource(cfg BreakerConfig, inner Source) (*BreakerSource, error) {
	if inner == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive")
	}

	return &BreakerSource{
		inner:            inner,
		logger:           cfg.Logger,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
	}, nil
}

func (b *BreakerSource) Name() string {
	return b.inner.Name()
}

// IsOpen reports whether the breaker is currently rejecting fetches.
func (b *BreakerSource) IsOpen() bool {
	return b.open.Load()
}

// Fetch delegates to the wrapped source unless the breaker is open.
func (b *BreakerSource) Fetch(ctx context.Context) (*types.GasPrice, error) {
	if b.open.Load() {
		b.mu.Lock()
		cooling := time.Since(b.openedAt) < b.cooldown
		b.mu.Unlock()

		if cooling {
			return nil, fmt.Errorf("%s: %w", b.inner.Name(), ErrSourceSuspended)
		}
		// Cooldown elapsed; this call is the half-open probe.
	}

	price, err := b.inner.Fetch(ctx)
	if err != nil {
		b.recordFailure(err)
		return nil, err
	}

	b.recordSuccess()
	return price, nil
}

func (b *BreakerSource) recordFailure(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	tripped := b.consecutiveFailures >= b.failureThreshold && !b.open.Load()
	probeFailed := b.open.Load()

	if tripped || probeFailed {
		b.open.Store(true)
		b.openedAt = time.Now()
		BreakerOpenGauge.WithLabelValues(b.inner.Name()).Set(1)
	}

	if tripped {
		BreakerTripsTotal.WithLabelValues(b.inner.Name()).Inc()
		b.logger.Warn("gas-source-breaker-tripped",
			zap.String("source", b.inner.Name()),
			zap.Int("consecutive_failures", b.consecutiveFailures),
			zap.Duration("cooldown", b.cooldown),
			zap.Error(cause))
	}
}

func (b *BreakerSource) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasOpen := b.open.Load()
	b.consecutiveFailures = 0
	b.open.Store(false)

	if wasOpen {
		BreakerOpenGauge.WithLabelValues(b.inner.Name()).Set(0)
		b.logger.Info("gas-source-breaker-closed",
			zap.String("source", b.inner.Name()))
	}
}

// Close releases the wrapped source if it holds connections.
func (b *BreakerSource) Close() {
	if closer, ok := b.inner.(interface{ Close() }); ok {
		closer.Close()
	}
}
