package trigger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// CreateTestOpportunity creates a detection for a synthetic pool event.
// This is a test helper living outside _test.go so sibling packages can
// reuse it without import cycles.
func CreateTestOpportunity(pool string) *OpportunityDetection {
	event := &types.FilteredEvent{
		PoolEvent: &types.PoolEvent{
			PoolAddress: common.HexToAddress(pool),
			DexName:     "uniswap-v2",
			Kind:        types.EventSync,
			Reserve0:    big.NewInt(1_000_000),
			Reserve1:    big.NewInt(2_100_000),
			BlockNumber: 19_000_000,
			LogIndex:    7,
			ReceivedAt:  time.Now(),
		},
		Price:      2.1,
		PriceDelta: 0.05,
		Liquidity:  1449.13,
		Priority:   types.PriorityHigh,
	}

	return &OpportunityDetection{
		ID:              "test-opp-00000000",
		Event:           event,
		EstimatedProfit: 0.025,
		GasCostEstimate: 0.004,
		NetProfit:       0.021,
		GasPriceStale:   false,
		TriggeredAt:     time.Now(),
	}
}
