package stats

import (
	"fmt"
	"math"
)

// LogReturns converts a price series into log returns ln(p[t]/p[t-1]).
// The first element is 0 so the result aligns with the prices.
func LogReturns(prices []float64) ([]float64, error) {
	if err := RequireNonEmpty("prices", prices); err != nil {
		return nil, err
	}
	out := make([]float64, len(prices))
	for i, p := range prices {
		if !IsFinite(p) || p <= 0 {
			return nil, fmt.Errorf("%w: prices[%d] must be positive and finite, got %v", ErrParameter, i, p)
		}
		if i > 0 {
			out[i] = math.Log(p / prices[i-1])
		}
	}
	return out, nil
}

// CumulativeSum returns the running sum of data.
func CumulativeSum(data []float64) []float64 {
	out := make([]float64, len(data))
	var acc float64
	for i, v := range data {
		acc += v
		out[i] = acc
	}
	return out
}

// ToSimple converts log returns into simple returns, exp(x)-1.
func ToSimple(logReturns []float64) []float64 {
	out := make([]float64, len(logReturns))
	for i, v := range logReturns {
		out[i] = math.Expm1(v)
	}
	return out
}
