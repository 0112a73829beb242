package gas

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// TierMultipliers maps gas tiers onto multipliers over the cached price.
// Instant >= Fast >= Normal >= Slow must hold; config validation
// enforces it.
type TierMultipliers struct {
	Instant float64
	Fast    float64
	Normal  float64
	Slow    float64
}

// For returns the multiplier for a tier.
func (t TierMultipliers) For(tier types.GasTier) float64 {
	switch tier {
	case types.TierInstant:
		return t.Instant
	case types.TierFast:
		return t.Fast
	case types.TierSlow:
		return t.Slow
	default:
		return t.Normal
	}
}

// Oracle provides a current, tiered gas-price estimate with multi-source
// fallback. The cache is read-mostly: many trigger evaluations read it
// per second while refreshes happen on the refresh interval.
type Oracle struct {
	sources    []Source
	refresh    time.Duration
	sampleSize int
	tiers      TierMultipliers
	logger     *zap.Logger

	mu      sync.RWMutex
	current *types.GasPrice
	samples []*types.GasPrice
	stale   bool

	// fetchMu serializes fetches so concurrent readers of an expired
	// cache trigger one upstream round, not a stampede.
	fetchMu sync.Mutex
}

// Config holds oracle configuration.
type Config struct {
	Sources         []Source
	RefreshInterval time.Duration
	SampleSize      int
	Tiers           TierMultipliers
	Logger          *zap.Logger
}

// Status is the operator-visible oracle state.
type Status struct {
	Stale       bool      `json:"stale"`
	LastUpdate  time.Time `json:"last_update"`
	LastSource  string    `json:"last_source"`
	SampleCount int       `json:"sample_count"`
	CurrentGwei float64   `json:"current_gwei"`
}

// New creates a gas price oracle. Sources are tried in slice order.
func New(cfg Config) *Oracle {
	return &Oracle{
		sources:    cfg.Sources,
		refresh:    cfg.RefreshInterval,
		sampleSize: cfg.SampleSize,
		tiers:      cfg.Tiers,
		logger:     cfg.Logger,
	}
}

// CurrentPrice returns the tier-adjusted price, fetching first if the
// cache is stale. Total source exhaustion is non-fatal: the last known
// value is returned with Stale set. Only a never-populated cache errors.
func (o *Oracle) CurrentPrice(ctx context.Context, tier types.GasTier) (*types.GasPrice, error) {
	o.mu.RLock()
	current := o.current
	fresh := current != nil && time.Since(current.Timestamp) < o.refresh && !o.stale
	o.mu.RUnlock()

	if !fresh {
		o.FetchAndCache(ctx)

		o.mu.RLock()
		current = o.current
		o.mu.RUnlock()
	}

	if current == nil {
		return nil, types.ErrNoGasPrice
	}

	return o.tierAdjust(current, tier), nil
}

// FetchAndCache tries sources in priority order; the first success
// populates the cache. All sources failing leaves the previous value in
// place flagged stale. Expected network failures never surface as
// errors from here.
func (o *Oracle) FetchAndCache(ctx context.Context) {
	o.fetchMu.Lock()
	defer o.fetchMu.Unlock()

	// Another caller may have refreshed while this one waited.
	o.mu.RLock()
	fresh := o.current != nil && time.Since(o.current.Timestamp) < o.refresh && !o.stale
	o.mu.RUnlock()
	if fresh {
		return
	}

	for _, source := range o.sources {
		price, err := source.Fetch(ctx)
		if err != nil {
			FetchFailuresTotal.WithLabelValues(source.Name()).Inc()
			o.logger.Warn("gas-source-fetch-failed",
				zap.String("source", source.Name()),
				zap.Error(err))
			continue
		}

		o.mu.Lock()
		o.current = price
		o.stale = false
		o.samples = append(o.samples, price)
		if len(o.samples) > o.sampleSize {
			o.samples = o.samples[len(o.samples)-o.sampleSize:]
		}
		o.mu.Unlock()

		FetchesTotal.WithLabelValues(source.Name()).Inc()
		CurrentGasPriceGwei.Set(WeiToGwei(price.GasPrice))
		StaleGauge.Set(0)

		o.logger.Debug("gas-price-updated",
			zap.String("source", source.Name()),
			zap.Float64("gwei", WeiToGwei(price.GasPrice)))
		return
	}

	o.mu.Lock()
	o.stale = true
	o.mu.Unlock()

	StaleGauge.Set(1)
	o.logger.Warn("all-gas-sources-failed-serving-stale")
}

// tierAdjust returns a copy of the sample scaled by the tier multiplier.
func (o *Oracle) tierAdjust(price *types.GasPrice, tier types.GasTier) *types.GasPrice {
	out := price.Clone()

	o.mu.RLock()
	out.Stale = o.stale
	o.mu.RUnlock()

	multiplier := o.tiers.For(tier)
	out.GasPrice = scale(out.GasPrice, multiplier)
	out.MaxFeePerGas = scale(out.MaxFeePerGas, multiplier)
	out.MaxPriorityFeePerGas = scale(out.MaxPriorityFeePerGas, multiplier)
	return out
}

// Status returns a point-in-time snapshot of the cache state.
func (o *Oracle) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := Status{
		Stale:       o.stale,
		SampleCount: len(o.samples),
	}
	if o.current != nil {
		status.LastUpdate = o.current.Timestamp
		status.LastSource = o.current.Source
		status.CurrentGwei = WeiToGwei(o.current.GasPrice)
	}
	return status
}

// Close releases sources that hold connections.
func (o *Oracle) Close() {
	for _, source := range o.sources {
		if closer, ok := source.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

func scale(v *big.Int, multiplier float64) *big.Int {
	if v == nil {
		return nil
	}
	scaled, _ := new(big.Float).Mul(
		new(big.Float).SetInt(v),
		big.NewFloat(multiplier),
	).Int(nil)
	return scaled
}

// WeiToGwei converts a wei amount to gwei for display and metrics.
func WeiToGwei(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	gwei, _ := new(big.Float).Quo(
		new(big.Float).SetInt(v),
		big.NewFloat(1e9),
	).Float64()
	return gwei
}
