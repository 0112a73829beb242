package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies the on-chain liquidity-pool event type.
type EventKind string

const (
	EventSync EventKind = "sync"
	EventSwap EventKind = "swap"
	EventMint EventKind = "mint"
	EventBurn EventKind = "burn"
)

// PoolEvent is a raw liquidity-pool event as delivered by an upstream node.
// Reserve0/Reserve1 are nil for event kinds that do not carry reserve data
// (V2 pools emit a Sync with the updated reserves alongside every
// Swap/Mint/Burn, so reserves are recovered from the last Sync).
type PoolEvent struct {
	PoolAddress common.Address
	DexName     string
	Kind        EventKind
	Token0      common.Address
	Token1      common.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	BlockNumber uint64
	LogIndex    uint
	ReceivedAt  time.Time
}

// Key returns the idempotency key for this event. Upstream feeds may
// duplicate messages; two events with the same key are the same log.
func (e *PoolEvent) Key() string {
	return fmt.Sprintf("%s:%d:%d", e.PoolAddress.Hex(), e.BlockNumber, e.LogIndex)
}

// HasReserves reports whether the event carries usable reserve data.
func (e *PoolEvent) HasReserves() bool {
	return e.Reserve0 != nil && e.Reserve1 != nil &&
		e.Reserve0.Sign() > 0 && e.Reserve1.Sign() > 0
}

// Price returns the pool mid price (reserve1/reserve0) as a float.
// Returns false when reserves are missing or zero.
func (e *PoolEvent) Price() (float64, bool) {
	if !e.HasReserves() {
		return 0, false
	}
	price, _ := new(big.Float).Quo(
		new(big.Float).SetInt(e.Reserve1),
		new(big.Float).SetInt(e.Reserve0),
	).Float64()
	return price, true
}

// Liquidity returns the geometric mean of the reserves (the constant-product
// liquidity measure). Returns 0 when reserves are missing.
func (e *PoolEvent) Liquidity() float64 {
	if !e.HasReserves() {
		return 0
	}
	product := new(big.Float).Mul(
		new(big.Float).SetInt(e.Reserve0),
		new(big.Float).SetInt(e.Reserve1),
	)
	liq, _ := new(big.Float).Sqrt(product).Float64()
	return liq
}

// Priority is the processing priority assigned to a filtered event.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String returns the lowercase priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// FilteredEvent is a PoolEvent that passed the filter thresholds, annotated
// with the derived pricing fields. Transient; never persisted.
type FilteredEvent struct {
	*PoolEvent

	Price       float64
	PriceDelta  float64
	PriceImpact float64
	Liquidity   float64
	Priority    Priority
}
