package signal

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Consolidate sums position series elementwise into one net series.
// The result is not clamped: a Long and a Short engine in position at the
// same step cancel, and two same-signed series add up as leverage.
func Consolidate(series ...[]float64) ([]float64, error) {
	if err := checkAligned(series); err != nil {
		return nil, err
	}
	out := make([]float64, len(series[0]))
	for _, s := range series {
		for i, v := range s {
			out[i] += v
		}
	}
	return out, nil
}

// GrossExposure sums absolute positions per step. Where it exceeds the
// absolute net position, opposite directions were active together.
func GrossExposure(series ...[]float64) ([]float64, error) {
	if err := checkAligned(series); err != nil {
		return nil, err
	}
	out := make([]float64, len(series[0]))
	for _, s := range series {
		for i, v := range s {
			out[i] += math.Abs(v)
		}
	}
	return out, nil
}

// OverlapSteps counts steps where gross exposure exceeds |net|.
func OverlapSteps(series ...[]float64) (int, error) {
	net, err := Consolidate(series...)
	if err != nil {
		return 0, err
	}
	gross, err := GrossExposure(series...)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range net {
		if gross[i] > math.Abs(net[i]) {
			n++
		}
	}
	return n, nil
}

func checkAligned(series [][]float64) error {
	if len(series) == 0 {
		return fmt.Errorf("%w: no position series to consolidate", stats.ErrEmptySeries)
	}
	names := make([]string, len(series))
	for i, s := range series {
		names[i] = fmt.Sprintf("positions[%d]", i)
		if err := stats.RequireNonEmpty(names[i], s); err != nil {
			return err
		}
	}
	return stats.RequireSameLength(names, series...)
}
