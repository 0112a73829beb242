package gas

import (
	"github.com/dexpulse/dexpulse/pkg/types"
)

// Predict extrapolates a short-horizon gas price in gwei from the cached
// sample window: a plain moving average, plus a linear trend term when
// the newer half of the window averages above the older half. A cheap
// heuristic, not a model; callers must treat it as advisory.
func (o *Oracle) Predict(blocksAhead int) (float64, error) {
	o.mu.RLock()
	samples := make([]float64, 0, len(o.samples))
	for _, s := range o.samples {
		samples = append(samples, WeiToGwei(s.GasPrice))
	}
	o.mu.RUnlock()

	if len(samples) == 0 {
		return 0, types.ErrNoGasPrice
	}

	average := mean(samples)
	if len(samples) < 4 || blocksAhead <= 0 {
		return average, nil
	}

	half := len(samples) / 2
	olderAvg := mean(samples[:half])
	newerAvg := mean(samples[half:])

	if newerAvg <= olderAvg {
		return average, nil
	}

	trendUnits := float64(blocksAhead) / 5.0
	return average + (newerAvg-olderAvg)*trendUnits, nil
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
