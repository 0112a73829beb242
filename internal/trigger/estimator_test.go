package trigger

import (
	"math"
	"testing"

	"github.com/dexpulse/dexpulse/pkg/types"
)

func TestImbalanceEstimator_Defaults(t *testing.T) {
	e := NewImbalanceEstimator()
	if e.NotionalNative != 1.0 {
		t.Errorf("NotionalNative = %v, want 1.0", e.NotionalNative)
	}
	if e.CaptureRatio != 0.5 {
		t.Errorf("CaptureRatio = %v, want 0.5", e.CaptureRatio)
	}
}

func TestImbalanceEstimator_Estimate(t *testing.T) {
	tests := []struct {
		name         string
		notional     float64
		capture      float64
		delta        float64
		impact       float64
		wantProfit   float64
		wantSlippage float64
	}{
		{
			name:         "default-params",
			notional:     1.0,
			capture:      0.5,
			delta:        0.05,
			impact:       0.02,
			wantProfit:   0.025,
			wantSlippage: 2.0,
		},
		{
			name:         "larger-notional",
			notional:     10.0,
			capture:      0.5,
			delta:        0.03,
			impact:       0.01,
			wantProfit:   0.15,
			wantSlippage: 1.0,
		},
		{
			name:         "zero-delta",
			notional:     1.0,
			capture:      0.5,
			delta:        0,
			impact:       0,
			wantProfit:   0,
			wantSlippage: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &ImbalanceEstimator{NotionalNative: tt.notional, CaptureRatio: tt.capture}
			event := &types.FilteredEvent{
				PoolEvent:   &types.PoolEvent{},
				PriceDelta:  tt.delta,
				PriceImpact: tt.impact,
			}

			profit, slippage := e.Estimate(event)
			if math.Abs(profit-tt.wantProfit) > 1e-9 {
				t.Errorf("profit = %v, want %v", profit, tt.wantProfit)
			}
			if math.Abs(slippage-tt.wantSlippage) > 1e-9 {
				t.Errorf("slippage = %v, want %v", slippage, tt.wantSlippage)
			}
		})
	}
}
