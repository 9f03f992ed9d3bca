package stats

import (
	"github.com/shopspring/decimal"
)

// Round rounds v half away from zero to the given number of decimal places.
// NaN and ±Inf are returned unchanged.
func Round(v float64, places int32) float64 {
	if !IsFinite(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// RoundAll rounds every element of data, returning a new slice.
func RoundAll(data []float64, places int32) []float64 {
	if data == nil {
		return nil
	}
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = Round(v, places)
	}
	return out
}
