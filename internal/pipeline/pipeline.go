package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/internal/poolstate"
	"github.com/dexpulse/dexpulse/pkg/types"
)

// FilterConfig holds the event filter thresholds. All three are
// non-negative; MaxPriceImpact and MinPriceDelta are fractions in [0,1].
type FilterConfig struct {
	MinLiquidity   float64
	MaxPriceImpact float64
	MinPriceDelta  float64
	Window         time.Duration
}

// Config holds pipeline configuration.
type Config struct {
	Filter    FilterConfig
	QueueSize int
	Policy    DropPolicy

	// Priority banding factors. Banding must stay monotonic in
	// price_delta and liquidity; these defaults are configuration, not
	// contract.
	HighDeltaFactor     float64 // delta >= factor * MinPriceDelta -> High (default 3)
	MediumDeltaFactor   float64 // delta >= factor * MinPriceDelta -> Medium (default 1.5)
	HighLiquidityFactor float64 // liquidity >= factor * MinLiquidity -> High (default 10)

	Store  *poolstate.Store
	Logger *zap.Logger
}

// poolTracker is the per-pool state arena entry: window plus the
// ordering watermark. All access happens under its lock so concurrent
// events for the same pool never interleave.
type poolTracker struct {
	mu           sync.Mutex
	window       *slidingWindow
	lastBlock    uint64
	lastLogIndex uint
	hasLast      bool
}

// Pipeline turns the high-volume raw event stream into a filtered,
// prioritized, backpressure-safe stream.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
	queue  *Queue
	store  *poolstate.Store

	poolsMu sync.Mutex
	pools   map[common.Address]*poolTracker

	out chan *types.FilteredEvent

	received     atomic.Uint64
	filtered     atomic.Uint64
	duplicates   atomic.Uint64
	emitted      atomic.Uint64
	backpressure atomic.Uint64
	latencySum   atomic.Int64 // nanoseconds
	latencyCount atomic.Uint64

	startedAt time.Time
	wg        sync.WaitGroup
}

// Status is the operator-visible pipeline state.
type Status struct {
	Received         uint64  `json:"received"`
	Filtered         uint64  `json:"filtered"`
	Duplicates       uint64  `json:"duplicates"`
	Emitted          uint64  `json:"emitted"`
	DroppedOldest    uint64  `json:"dropped_oldest"`
	DroppedNewest    uint64  `json:"dropped_newest"`
	BackpressureHits uint64  `json:"backpressure_hits"`
	QueueDepth       int     `json:"queue_depth"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	ThroughputPerSec float64 `json:"throughput_per_second"`
	TrackedPools     int     `json:"tracked_pools"`
}

// New creates a pipeline. Store is required; the pipeline both reads the
// previous reserves from it (price impact baseline, pre-seeded state)
// and writes every observed update back.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline requires a pool state store")
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", cfg.QueueSize)
	}

	if cfg.HighDeltaFactor == 0 {
		cfg.HighDeltaFactor = 3.0
	}
	if cfg.MediumDeltaFactor == 0 {
		cfg.MediumDeltaFactor = 1.5
	}
	if cfg.HighLiquidityFactor == 0 {
		cfg.HighLiquidityFactor = 10.0
	}

	return &Pipeline{
		cfg:       cfg,
		logger:    cfg.Logger,
		queue:     NewQueue(cfg.QueueSize, cfg.Policy),
		store:     cfg.Store,
		pools:     make(map[common.Address]*poolTracker),
		out:       make(chan *types.FilteredEvent, cfg.QueueSize),
		startedAt: time.Now(),
	}, nil
}

// Start launches the consumer loop that drains the queue to subscribers.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.consumeLoop(ctx)
}

// ProcessEvent is the single entry point for raw events. Safe for
// concurrent calls; per-pool state is updated exactly once per processed
// event, in event order for that pool. Returns ErrQueueFull only under
// the DropNone policy when the queue is at capacity.
func (p *Pipeline) ProcessEvent(event *types.PoolEvent) error {
	p.received.Add(1)
	ReceivedTotal.Inc()

	if event == nil {
		p.reject("nil_event")
		return nil
	}

	tracker := p.tracker(event.PoolAddress)
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	// Upstream feeds may duplicate or replay; per-pool (block, log)
	// must be non-decreasing, so anything at or below the watermark is
	// a duplicate.
	if tracker.hasLast && !after(event.BlockNumber, event.LogIndex, tracker.lastBlock, tracker.lastLogIndex) {
		p.duplicates.Add(1)
		DuplicatesTotal.Inc()
		return nil
	}
	tracker.lastBlock = event.BlockNumber
	tracker.lastLogIndex = event.LogIndex
	tracker.hasLast = true

	previous, hasPrevious := p.store.Get(event.PoolAddress)

	reserve0, reserve1 := event.Reserve0, event.Reserve1
	if !event.HasReserves() {
		// Swap/Mint/Burn without reserve data: fall back to the last
		// known reserves (live or seeded). Without any baseline the
		// event cannot be priced and fails the filter.
		if !hasPrevious {
			p.reject("no_reserves")
			return nil
		}
		reserve0, reserve1 = previous.Reserve0, previous.Reserve1
	}

	priced := &types.PoolEvent{Reserve0: reserve0, Reserve1: reserve1}
	price, ok := priced.Price()
	if !ok {
		p.reject("unpriceable")
		return nil
	}
	liquidity := priced.Liquidity()

	priceImpact := 0.0
	if hasPrevious {
		if prevPrice, ok := previous.Price(); ok && prevPrice != 0 {
			priceImpact = math.Abs(price-prevPrice) / math.Abs(prevPrice)
		}
	}

	priceDelta := tracker.window.observe(price, event.ReceivedAt)

	snapshot := &poolstate.Snapshot{
		Token0:    event.Token0,
		Token1:    event.Token1,
		Reserve0:  reserve0,
		Reserve1:  reserve1,
		UpdatedAt: event.ReceivedAt,
	}
	if hasPrevious && snapshot.Token0 == (common.Address{}) {
		// Log payloads carry no token metadata; keep what the seed or
		// an earlier observation knew.
		snapshot.Token0 = previous.Token0
		snapshot.Token1 = previous.Token1
	}
	p.store.Put(event.PoolAddress, snapshot)

	if liquidity < p.cfg.Filter.MinLiquidity {
		p.reject("liquidity")
		return nil
	}
	if priceImpact > p.cfg.Filter.MaxPriceImpact {
		p.reject("price_impact")
		return nil
	}
	if priceDelta < p.cfg.Filter.MinPriceDelta {
		p.reject("price_delta")
		return nil
	}

	filtered := &types.FilteredEvent{
		PoolEvent:   event,
		Price:       price,
		PriceDelta:  priceDelta,
		PriceImpact: priceImpact,
		Liquidity:   liquidity,
		Priority:    p.classify(priceDelta, liquidity),
	}

	err := p.queue.Enqueue(filtered)
	if err != nil {
		p.backpressure.Add(1)
		BackpressureTotal.Inc()
		return fmt.Errorf("enqueue %s: %w", event.Key(), err)
	}

	QueueDepth.Set(float64(p.queue.Len()))
	return nil
}

// tracker returns (creating on first use) the per-pool state entry.
func (p *Pipeline) tracker(pool common.Address) *poolTracker {
	p.poolsMu.Lock()
	defer p.poolsMu.Unlock()

	t, ok := p.pools[pool]
	if !ok {
		t = &poolTracker{window: newSlidingWindow(p.cfg.Filter.Window)}
		p.pools[pool] = t
	}
	return t
}

// classify assigns the processing priority. Monotonic in both
// price_delta and liquidity.
func (p *Pipeline) classify(priceDelta, liquidity float64) types.Priority {
	minDelta := p.cfg.Filter.MinPriceDelta
	if priceDelta >= p.cfg.HighDeltaFactor*minDelta ||
		liquidity >= p.cfg.HighLiquidityFactor*p.cfg.Filter.MinLiquidity {
		return types.PriorityHigh
	}
	if priceDelta >= p.cfg.MediumDeltaFactor*minDelta {
		return types.PriorityMedium
	}
	return types.PriorityLow
}

func (p *Pipeline) reject(reason string) {
	p.filtered.Add(1)
	FilteredTotal.WithLabelValues(reason).Inc()
}

// consumeLoop drains the queue and emits to downstream subscribers.
func (p *Pipeline) consumeLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.out)

	for {
		event, ok := p.queue.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.queue.Notify():
				continue
			}
		}

		QueueDepth.Set(float64(p.queue.Len()))

		select {
		case p.out <- event:
			p.emitted.Add(1)
			EmittedTotal.WithLabelValues(event.Priority.String()).Inc()

			latency := time.Since(event.ReceivedAt)
			p.latencySum.Add(int64(latency))
			p.latencyCount.Add(1)
			ProcessingLatencySeconds.Observe(latency.Seconds())
		case <-ctx.Done():
			return
		}
	}
}

// Out returns the filtered event stream.
func (p *Pipeline) Out() <-chan *types.FilteredEvent {
	return p.out
}

// Status returns a point-in-time snapshot of the pipeline counters.
func (p *Pipeline) Status() Status {
	p.poolsMu.Lock()
	trackedPools := len(p.pools)
	p.poolsMu.Unlock()

	avgLatencyMs := 0.0
	if count := p.latencyCount.Load(); count > 0 {
		avgLatencyMs = float64(p.latencySum.Load()) / float64(count) / float64(time.Millisecond)
	}

	throughput := 0.0
	if uptime := time.Since(p.startedAt).Seconds(); uptime > 0 {
		throughput = float64(p.emitted.Load()) / uptime
	}

	return Status{
		Received:         p.received.Load(),
		Filtered:         p.filtered.Load(),
		Duplicates:       p.duplicates.Load(),
		Emitted:          p.emitted.Load(),
		DroppedOldest:    p.queue.DroppedOldest(),
		DroppedNewest:    p.queue.DroppedNewest(),
		BackpressureHits: p.backpressure.Load(),
		QueueDepth:       p.queue.Len(),
		AvgLatencyMs:     avgLatencyMs,
		ThroughputPerSec: throughput,
		TrackedPools:     trackedPools,
	}
}

// Close waits for the consumer loop to drain.
func (p *Pipeline) Close() error {
	p.wg.Wait()
	p.logger.Info("pipeline-closed")
	return nil
}

// after reports whether (block a, log a) orders strictly after (block b, log b).
func after(blockA uint64, logA uint, blockB uint64, logB uint) bool {
	if blockA != blockB {
		return blockA > blockB
	}
	return logA > logB
}
