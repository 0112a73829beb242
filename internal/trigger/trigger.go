package trigger

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// GasOracle is the gas price dependency, satisfied by internal/gas.
type GasOracle interface {
	CurrentPrice(ctx context.Context, tier types.GasTier) (*types.GasPrice, error)
}

// ProfitEstimator supplies the gross profit estimate and expected
// slippage (percent) for a candidate event. The real formula belongs to
// the arbitrage path-search collaborator; this component only consumes
// its output.
type ProfitEstimator interface {
	Estimate(event *types.FilteredEvent) (profit float64, slippagePercent float64)
}

// Storage is the sink for accepted opportunities.
type Storage interface {
	StoreOpportunity(ctx context.Context, opp *OpportunityDetection) error
	Close() error
}

// ProfitabilityConfig holds the acceptance thresholds.
type ProfitabilityConfig struct {
	MinProfitPercent   float64 // net/gross * 100 must reach this
	MaxSlippagePercent float64
	MinProfitAbsolute  float64 // native-token units
}

// Config holds trigger configuration.
type Config struct {
	Profitability  ProfitabilityConfig
	DebounceWindow time.Duration
	GasTier        types.GasTier
	GasLimit       uint64
	Logger         *zap.Logger
}

// Trigger converts filtered events into opportunity detections,
// enforcing per-pool debouncing and the profitability thresholds.
type Trigger struct {
	cfg       Config
	logger    *zap.Logger
	oracle    GasOracle
	estimator ProfitEstimator
	storage   Storage
	in        <-chan *types.FilteredEvent
	out       chan *OpportunityDetection

	mu          sync.Mutex
	lastTrigger map[common.Address]time.Time

	debounceSkips    atomic.Uint64
	triggered        atomic.Uint64
	rejected         atomic.Uint64
	failedExecutions atomic.Uint64

	now func() time.Time
	wg  sync.WaitGroup
}

// Status is the operator-visible trigger state.
type Status struct {
	OpportunitiesTriggered uint64 `json:"opportunities_triggered"`
	Rejected               uint64 `json:"rejected"`
	DebounceSkips          uint64 `json:"debounce_skips"`
	FailedExecutions       uint64 `json:"failed_executions"`
}

// New creates an opportunity trigger. Dependencies are passed
// explicitly; there is no shared process state.
func New(cfg Config, oracle GasOracle, estimator ProfitEstimator, storage Storage, in <-chan *types.FilteredEvent) *Trigger {
	return &Trigger{
		cfg:         cfg,
		logger:      cfg.Logger,
		oracle:      oracle,
		estimator:   estimator,
		storage:     storage,
		in:          in,
		out:         make(chan *OpportunityDetection, 50),
		lastTrigger: make(map[common.Address]time.Time),
		now:         time.Now,
	}
}

// Start launches the evaluation loop.
func (t *Trigger) Start(ctx context.Context) {
	t.logger.Info("opportunity-trigger-starting",
		zap.Duration("debounce-window", t.cfg.DebounceWindow),
		zap.String("gas-tier", string(t.cfg.GasTier)))

	t.wg.Add(1)
	go t.loop(ctx)
}

func (t *Trigger) loop(ctx context.Context) {
	defer t.wg.Done()
	defer close(t.out)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("opportunity-trigger-stopping")
			return
		case event, ok := <-t.in:
			if !ok {
				return
			}

			start := time.Now()
			opp, accepted := t.HandleEvent(ctx, event)
			EvaluationDurationSeconds.Observe(time.Since(start).Seconds())

			if !accepted {
				continue
			}

			// At-least-once delivery per accepted opportunity.
			select {
			case t.out <- opp:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleEvent evaluates one filtered event. Returns the detection and
// true only when every threshold is cleared.
func (t *Trigger) HandleEvent(ctx context.Context, event *types.FilteredEvent) (*OpportunityDetection, bool) {
	if event == nil {
		return nil, false
	}

	now := t.now()

	t.mu.Lock()
	last, seen := t.lastTrigger[event.PoolAddress]
	t.mu.Unlock()

	if seen && now.Sub(last) < t.cfg.DebounceWindow {
		t.debounceSkips.Add(1)
		DebounceSkipsTotal.Inc()
		return nil, false
	}

	// Gas price captured at evaluation time governs this decision.
	gasPrice, err := t.oracle.CurrentPrice(ctx, t.cfg.GasTier)
	if err != nil {
		t.reject("no_gas_price")
		t.logger.Warn("gas-price-unavailable",
			zap.String("pool", event.PoolAddress.Hex()),
			zap.Error(err))
		return nil, false
	}

	estimatedProfit, slippagePercent := t.estimator.Estimate(event)
	gasCost := gasCostNative(gasPrice, t.cfg.GasLimit)
	netProfit := estimatedProfit - gasCost

	if estimatedProfit <= 0 {
		t.reject("no_gross_profit")
		return nil, false
	}
	if netProfit < t.cfg.Profitability.MinProfitAbsolute {
		t.reject("below_min_absolute")
		return nil, false
	}
	if (netProfit/estimatedProfit)*100 < t.cfg.Profitability.MinProfitPercent {
		t.reject("below_min_percent")
		return nil, false
	}
	if slippagePercent > t.cfg.Profitability.MaxSlippagePercent {
		t.reject("slippage")
		return nil, false
	}

	opp := NewOpportunity(event, estimatedProfit, gasCost, gasPrice.Stale)
	opp.TriggeredAt = now

	t.mu.Lock()
	t.lastTrigger[event.PoolAddress] = now
	t.mu.Unlock()

	t.triggered.Add(1)
	OpportunitiesTriggeredTotal.Inc()
	NetProfitNative.Observe(netProfit)

	err = t.storage.StoreOpportunity(ctx, opp)
	if err != nil {
		t.logger.Error("failed-to-store-opportunity",
			zap.String("opportunity-id", opp.ID),
			zap.Error(err))
	}

	t.logger.Info("opportunity-detected",
		zap.String("opportunity-id", opp.ID),
		zap.String("pool", event.PoolAddress.Hex()),
		zap.Float64("price-delta", event.PriceDelta),
		zap.Float64("net-profit", netProfit),
		zap.Bool("gas-stale", gasPrice.Stale))

	return opp, true
}

// ReportExecutionFailure records an asynchronous execution failure from
// the downstream collaborator. The opportunity is not re-queued;
// re-triggering only happens via a fresh qualifying event.
func (t *Trigger) ReportExecutionFailure(opportunityID string) {
	t.failedExecutions.Add(1)
	FailedExecutionsTotal.Inc()
	t.logger.Warn("execution-failure-reported", zap.String("opportunity-id", opportunityID))
}

func (t *Trigger) reject(reason string) {
	t.rejected.Add(1)
	RejectedTotal.WithLabelValues(reason).Inc()
}

// Out returns the channel of accepted detections.
func (t *Trigger) Out() <-chan *OpportunityDetection {
	return t.out
}

// Status returns a point-in-time snapshot of the trigger counters.
func (t *Trigger) Status() Status {
	return Status{
		OpportunitiesTriggered: t.triggered.Load(),
		Rejected:               t.rejected.Load(),
		DebounceSkips:          t.debounceSkips.Load(),
		FailedExecutions:       t.failedExecutions.Load(),
	}
}

// Close waits for the evaluation loop to exit.
func (t *Trigger) Close() error {
	t.wg.Wait()
	t.logger.Info("opportunity-trigger-closed")
	return nil
}

// gasCostNative converts max fee * gas limit into native-token units.
func gasCostNative(price *types.GasPrice, gasLimit uint64) float64 {
	fee := price.MaxFeePerGas
	if fee == nil {
		fee = price.GasPrice
	}
	if fee == nil {
		return 0
	}

	costWei := new(big.Int).Mul(fee, new(big.Int).SetUint64(gasLimit))
	cost, _ := new(big.Float).Quo(
		new(big.Float).SetInt(costWei),
		big.NewFloat(1e18),
	).Float64()
	return cost
}
