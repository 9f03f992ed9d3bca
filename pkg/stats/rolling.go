package stats

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
)

// RollingZScore computes (x[t] - mean) / std over the trailing window ending
// at t. The first window-1 values are NaN: there is not enough history yet,
// and NaN never satisfies a threshold comparator.
func RollingZScore(series []float64, window int) ([]float64, error) {
	if err := RequireNonEmpty("series", series); err != nil {
		return nil, err
	}
	if window < 2 || window > len(series) {
		return nil, fmt.Errorf("%w: window %d outside [2, %d]", ErrParameter, window, len(series))
	}
	if err := RequireFinite("series", series); err != nil {
		return nil, err
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	std := volatility.NewMovingStdWithPeriod[float64](window)
	means := helper.ChanToSlice(sma.Compute(helper.SliceToChan(series)))
	stds := helper.ChanToSlice(std.Compute(helper.SliceToChan(series)))
	if len(means) != len(stds) {
		return nil, fmt.Errorf("%w: rolling mean/std lengths %d and %d", ErrLengthMismatch, len(means), len(stds))
	}

	// both indicators drop their warm-up period; align the tail with the input
	offset := len(series) - len(means)

	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	for j, mean := range means {
		t := j + offset
		if t < window-1 {
			continue
		}
		out[t] = ZScore(series[t], mean, stds[j])
	}
	return out, nil
}
