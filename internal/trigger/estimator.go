package trigger

import (
	"github.com/dexpulse/dexpulse/pkg/types"
)

// ImbalanceEstimator is the default profit function: it treats the
// observed price delta as capturable spread on a fixed notional. The
// path-search collaborator replaces this with its real route
// simulation; the trigger only needs something monotone and bounded to
// run against.
type ImbalanceEstimator struct {
	// NotionalNative is the trade size assumed, in native-token units.
	NotionalNative float64
	// CaptureRatio discounts the delta for competition and fees.
	CaptureRatio float64
}

// NewImbalanceEstimator creates the default estimator.
func NewImbalanceEstimator() *ImbalanceEstimator {
	return &ImbalanceEstimator{
		NotionalNative: 1.0,
		CaptureRatio:   0.5,
	}
}

// Estimate returns the gross profit on the assumed notional and the
// expected slippage. The event's own price impact is the slippage
// proxy: a move we observed is a move our counter-trade fights.
func (e *ImbalanceEstimator) Estimate(event *types.FilteredEvent) (float64, float64) {
	profit := event.PriceDelta * e.NotionalNative * e.CaptureRatio
	slippagePercent := event.PriceImpact * 100
	return profit, slippagePercent
}
