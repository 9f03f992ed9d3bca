package spread

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Compute 计算两个价格序列之间的 spread
func Compute(price1, price2 []float64, opts Options) (*Result, error) {
	if err := stats.RequireNonEmpty("price1", price1); err != nil {
		return nil, err
	}
	if err := stats.RequireSameLength([]string{"price1", "price2"}, price1, price2); err != nil {
		return nil, err
	}

	spreadType, err := ParseSpreadType(string(opts.Type))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stats.ErrParameter, err)
	}
	for i := range price1 {
		if !stats.IsFinite(price1[i]) || !stats.IsFinite(price2[i]) || price1[i] <= 0 || price2[i] <= 0 {
			return nil, fmt.Errorf("%w: prices at step %d must be positive and finite", stats.ErrParameter, i)
		}
	}

	hedgeRatio := opts.HedgeRatio
	if hedgeRatio == 0 {
		hedgeRatio = 1.0 // 默认 1:1
	}
	if !stats.IsFinite(hedgeRatio) {
		return nil, fmt.Errorf("%w: hedge ratio is not finite", stats.ErrParameter)
	}

	out := make([]float64, len(price1))
	switch spreadType {
	case SpreadTypeRatio:
		for i := range out {
			out[i] = price1[i] / price2[i]
		}
		hedgeRatio = 0 // 比率 spread 不使用对冲比率
	case SpreadTypeLog:
		log1 := logPrices(price1)
		log2 := logPrices(price2)
		if opts.EstimateHedgeRatio {
			hedgeRatio = stats.HedgeRatio(log1, log2)
		}
		for i := range out {
			out[i] = log1[i] - hedgeRatio*log2[i]
		}
	case SpreadTypeStandard:
		z1 := stats.Standardize(price1)
		z2 := stats.Standardize(price2)
		for i := range out {
			out[i] = z1[i] - z2[i]
		}
		hedgeRatio = 1.0
	default:
		if opts.EstimateHedgeRatio {
			hedgeRatio = stats.HedgeRatio(price1, price2)
		}
		for i := range out {
			out[i] = price1[i] - hedgeRatio*price2[i]
		}
	}

	mean := stats.Mean(out)
	std := stats.StdDev(out)
	last := out[len(out)-1]

	return &Result{
		Type:   spreadType,
		Spread: out,
		Stats: SpreadStats{
			CurrentSpread: last,
			Mean:          mean,
			Std:           std,
			ZScore:        stats.ZScore(last, mean, std),
			Correlation:   stats.Correlation(price1, price2),
			HedgeRatio:    hedgeRatio,
		},
	}, nil
}

func logPrices(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = math.Log(p)
	}
	return out
}
