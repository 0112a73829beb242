package trigger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dexpulse/dexpulse/pkg/types"
)

// OpportunityDetection is an actionable opportunity handed to the
// execution collaborator. Profit figures are in native-token units and
// were computed with the gas price captured at evaluation time; there is
// no retroactive re-pricing.
type OpportunityDetection struct {
	ID              string
	Event           *types.FilteredEvent
	EstimatedProfit float64
	GasCostEstimate float64
	NetProfit       float64
	GasPriceStale   bool
	TriggeredAt     time.Time
}

// NewOpportunity builds a detection with a fresh ID.
func NewOpportunity(event *types.FilteredEvent, estimatedProfit, gasCost float64, gasStale bool) *OpportunityDetection {
	return &OpportunityDetection{
		ID:              uuid.New().String(),
		Event:           event,
		EstimatedProfit: estimatedProfit,
		GasCostEstimate: gasCost,
		NetProfit:       estimatedProfit - gasCost,
		GasPriceStale:   gasStale,
		TriggeredAt:     time.Now(),
	}
}

// String returns a human-readable representation of the detection.
func (o *OpportunityDetection) String() string {
	return fmt.Sprintf(
		"Opportunity[%s] Pool=%s Kind=%s Delta=%.4f Gross=%.6f Gas=%.6f Net=%.6f",
		o.ID[:8],
		o.Event.PoolAddress.Hex(),
		o.Event.Kind,
		o.Event.PriceDelta,
		o.EstimatedProfit,
		o.GasCostEstimate,
		o.NetProfit,
	)
}
