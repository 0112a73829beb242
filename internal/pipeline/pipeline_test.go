package pipeline

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/internal/poolstate"
	"github.com/dexpulse/dexpulse/pkg/types"
)

var testPool = common.HexToAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc")

func newTestStore(t *testing.T) *poolstate.Store {
	t.Helper()

	store, err := poolstate.New(&poolstate.Config{
		MaxEntries: 100,
		TTL:        time.Minute,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(store.Close)

	return store
}

func newTestPipeline(t *testing.T, store *poolstate.Store, cfg Config) *Pipeline {
	t.Helper()

	if cfg.Filter.Window == 0 {
		cfg.Filter.Window = time.Minute
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 10
	}
	cfg.Store = store
	cfg.Logger = zap.NewNop()

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("create pipeline: %v", err)
	}
	return p
}

func syncEvent(r0, r1 int64, block uint64, logIndex uint, at time.Time) *types.PoolEvent {
	return &types.PoolEvent{
		PoolAddress: testPool,
		DexName:     "uniswap-v2",
		Kind:        types.EventSync,
		Reserve0:    big.NewInt(r0),
		Reserve1:    big.NewInt(r1),
		BlockNumber: block,
		LogIndex:    logIndex,
		ReceivedAt:  at,
	}
}

func TestProcessEvent_PriceMoveQualifies(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, Config{
		Filter: FilterConfig{
			MinLiquidity:   100,
			MaxPriceImpact: 0.10,
			MinPriceDelta:  0.02,
		},
	})

	now := time.Now()

	// First observation establishes the baseline; its own delta is 0
	// so it cannot qualify.
	err := p.ProcessEvent(syncEvent(1000, 2000, 100, 1, now))
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	store.Wait()

	if _, ok := p.queue.Dequeue(); ok {
		t.Fatal("baseline event should not pass the delta filter")
	}

	// Price moves 2.0 -> 2.1, a 5% delta over the window.
	err = p.ProcessEvent(syncEvent(1000, 2100, 101, 1, now.Add(time.Second)))
	if err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}

	event, ok := p.queue.Dequeue()
	if !ok {
		t.Fatal("qualifying event was not enqueued")
	}

	if math.Abs(event.Price-2.1) > 1e-9 {
		t.Errorf("Price = %v, want 2.1", event.Price)
	}
	if math.Abs(event.PriceDelta-0.05) > 1e-9 {
		t.Errorf("PriceDelta = %v, want 0.05", event.PriceDelta)
	}
	if math.Abs(event.PriceImpact-0.05) > 1e-9 {
		t.Errorf("PriceImpact = %v, want 0.05", event.PriceImpact)
	}

	// Liquidity sqrt(1000*2100) ~= 1449 clears the 10x band.
	if event.Priority != types.PriorityHigh {
		t.Errorf("Priority = %v, want high", event.Priority)
	}

	status := p.Status()
	if status.Received != 2 {
		t.Errorf("Received = %d, want 2", status.Received)
	}
	if status.Filtered != 1 {
		t.Errorf("Filtered = %d, want 1", status.Filtered)
	}
	if status.TrackedPools != 1 {
		t.Errorf("TrackedPools = %d, want 1", status.TrackedPools)
	}
}

func TestProcessEvent_DuplicateAndOutOfOrder(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, Config{
		Filter: FilterConfig{MinPriceDelta: 0.02},
	})

	now := time.Now()

	if err := p.ProcessEvent(syncEvent(1000, 2000, 100, 5, now)); err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}

	tests := []struct {
		name     string
		block    uint64
		logIndex uint
	}{
		{name: "exact-replay", block: 100, logIndex: 5},
		{name: "earlier-log-same-block", block: 100, logIndex: 4},
		{name: "earlier-block", block: 99, logIndex: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := p.Status().Duplicates
			err := p.ProcessEvent(syncEvent(1000, 9999, tt.block, tt.logIndex, now))
			if err != nil {
				t.Fatalf("ProcessEvent() error = %v", err)
			}
			if p.Status().Duplicates != before+1 {
				t.Errorf("Duplicates = %d, want %d", p.Status().Duplicates, before+1)
			}
		})
	}

	// A later (block, log) still processes.
	if err := p.ProcessEvent(syncEvent(1000, 2000, 100, 6, now)); err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if got := p.Status().Duplicates; got != 3 {
		t.Errorf("Duplicates = %d, want 3", got)
	}
}

func TestProcessEvent_ReserveFallback(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, Config{
		Filter: FilterConfig{MaxPriceImpact: 1.0},
	})

	now := time.Now()
	swap := &types.PoolEvent{
		PoolAddress: testPool,
		DexName:     "uniswap-v2",
		Kind:        types.EventSwap,
		BlockNumber: 100,
		LogIndex:    1,
		ReceivedAt:  now,
	}

	// No baseline anywhere: the event cannot be priced.
	if err := p.ProcessEvent(swap); err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	if got := p.Status().Filtered; got != 1 {
		t.Errorf("Filtered = %d, want 1", got)
	}

	// Seed last-known reserves; the next reserve-less event prices
	// against them.
	store.Put(testPool, &poolstate.Snapshot{
		Reserve0:  big.NewInt(1000),
		Reserve1:  big.NewInt(2000),
		UpdatedAt: now,
		Seeded:    true,
	})
	store.Wait()

	swap2 := *swap
	swap2.LogIndex = 2
	if err := p.ProcessEvent(&swap2); err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}

	event, ok := p.queue.Dequeue()
	if !ok {
		t.Fatal("event with seeded reserves was not enqueued")
	}
	if math.Abs(event.Price-2.0) > 1e-9 {
		t.Errorf("Price = %v, want 2.0 from seeded reserves", event.Price)
	}
}

func TestProcessEvent_FilterRejections(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		filter FilterConfig
		events []*types.PoolEvent
	}{
		{
			name:   "below-min-liquidity",
			filter: FilterConfig{MinLiquidity: 1e6},
			events: []*types.PoolEvent{
				syncEvent(1000, 2000, 100, 1, now),
			},
		},
		{
			name:   "price-impact-exceeded",
			filter: FilterConfig{MaxPriceImpact: 0.01, MinPriceDelta: 0.01},
			events: []*types.PoolEvent{
				syncEvent(1000, 2000, 100, 1, now),
				syncEvent(1000, 2500, 101, 1, now.Add(time.Second)),
			},
		},
		{
			name:   "delta-below-threshold",
			filter: FilterConfig{MinPriceDelta: 0.10, MaxPriceImpact: 1.0},
			events: []*types.PoolEvent{
				syncEvent(1000, 2000, 100, 1, now),
				syncEvent(1000, 2100, 101, 1, now.Add(time.Second)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			p := newTestPipeline(t, store, Config{Filter: tt.filter})

			for _, event := range tt.events {
				if err := p.ProcessEvent(event); err != nil {
					t.Fatalf("ProcessEvent() error = %v", err)
				}
				store.Wait()
			}

			if _, ok := p.queue.Dequeue(); ok {
				t.Error("rejected event was enqueued")
			}
			if got := p.Status().Filtered; got != uint64(len(tt.events)) {
				t.Errorf("Filtered = %d, want %d", got, len(tt.events))
			}
		})
	}
}

func TestProcessEvent_DropNonePropagatesQueueFull(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, Config{
		Filter:    FilterConfig{MaxPriceImpact: 1.0},
		QueueSize: 1,
		Policy:    DropNone,
	})

	now := time.Now()

	if err := p.ProcessEvent(syncEvent(1000, 2000, 100, 1, now)); err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}
	store.Wait()

	err := p.ProcessEvent(syncEvent(1000, 2000, 101, 1, now.Add(time.Second)))
	if !errors.Is(err, types.ErrQueueFull) {
		t.Fatalf("ProcessEvent() error = %v, want ErrQueueFull", err)
	}

	status := p.Status()
	if status.BackpressureHits != 1 {
		t.Errorf("BackpressureHits = %d, want 1", status.BackpressureHits)
	}
	if status.QueueDepth != 1 {
		t.Errorf("QueueDepth = %d, want 1", status.QueueDepth)
	}
}

func TestClassify_Banding(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, Config{
		Filter: FilterConfig{
			MinLiquidity:  100,
			MinPriceDelta: 0.02,
		},
	})

	tests := []struct {
		name      string
		delta     float64
		liquidity float64
		want      types.Priority
	}{
		{name: "high-by-delta", delta: 0.06, liquidity: 100, want: types.PriorityHigh},
		{name: "high-by-liquidity", delta: 0.02, liquidity: 1000, want: types.PriorityHigh},
		{name: "medium", delta: 0.03, liquidity: 100, want: types.PriorityMedium},
		{name: "low", delta: 0.025, liquidity: 100, want: types.PriorityLow},
		{name: "boundary-is-inclusive", delta: 0.06, liquidity: 0, want: types.PriorityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.classify(tt.delta, tt.liquidity)
			if got != tt.want {
				t.Errorf("classify(%v, %v) = %v, want %v", tt.delta, tt.liquidity, got, tt.want)
			}
		})
	}
}

func TestPipeline_EndToEndEmission(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, Config{
		Filter: FilterConfig{MaxPriceImpact: 1.0},
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	now := time.Now()
	if err := p.ProcessEvent(syncEvent(1000, 2000, 100, 1, now)); err != nil {
		t.Fatalf("ProcessEvent() error = %v", err)
	}

	select {
	case event := <-p.Out():
		if event.BlockNumber != 100 {
			t.Errorf("emitted BlockNumber = %d, want 100", event.BlockNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted within deadline")
	}

	if got := p.Status().Emitted; got != 1 {
		t.Errorf("Emitted = %d, want 1", got)
	}

	cancel()
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	store := newTestStore(t)

	_, err := New(Config{QueueSize: 10, Logger: zap.NewNop()})
	if err == nil {
		t.Error("New() without store should fail")
	}

	_, err = New(Config{Store: store, Logger: zap.NewNop()})
	if err == nil {
		t.Error("New() with zero queue size should fail")
	}
}
