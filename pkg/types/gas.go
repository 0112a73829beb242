package types

import (
	"math/big"
	"time"
)

// GasTier is a named fee-aggressiveness level.
type GasTier string

const (
	TierInstant GasTier = "instant"
	TierFast    GasTier = "fast"
	TierNormal  GasTier = "normal"
	TierSlow    GasTier = "slow"
)

// GasPrice is a normalized fee sample from one gas-price source.
// All values are in wei.
type GasPrice struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	BaseFee              *big.Int
	Timestamp            time.Time
	Source               string

	// Stale is set when every source failed and this is the last known
	// value rather than a fresh fetch. Callers decide whether stale
	// pricing is acceptable.
	Stale bool
}

// Clone returns a deep copy; the oracle hands out copies so callers can
// never mutate the shared cache.
func (g *GasPrice) Clone() *GasPrice {
	if g == nil {
		return nil
	}
	out := &GasPrice{
		Timestamp: g.Timestamp,
		Source:    g.Source,
		Stale:     g.Stale,
	}
	if g.GasPrice != nil {
		out.GasPrice = new(big.Int).Set(g.GasPrice)
	}
	if g.MaxFeePerGas != nil {
		out.MaxFeePerGas = new(big.Int).Set(g.MaxFeePerGas)
	}
	if g.MaxPriorityFeePerGas != nil {
		out.MaxPriorityFeePerGas = new(big.Int).Set(g.MaxPriorityFeePerGas)
	}
	if g.BaseFee != nil {
		out.BaseFee = new(big.Int).Set(g.BaseFee)
	}
	return out
}
