package spread

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestCompute_Difference(t *testing.T) {
	result, err := Compute([]float64{100, 101}, []float64{95, 96}, Options{})
	require.NoError(t, err)
	assert.Equal(t, SpreadTypeDifference, result.Type)

	// Spread = 100 - 1.0 * 95 = 5.0
	if !almostEqual(result.Spread[0], 5.0, 1e-10) {
		t.Errorf("spread[0] = %f, want 5.0", result.Spread[0])
	}

	result, err = Compute([]float64{100}, []float64{95}, Options{HedgeRatio: 1.05})
	require.NoError(t, err)

	// Spread = 100 - 1.05 * 95 = 0.25
	if !almostEqual(result.Spread[0], 0.25, 1e-10) {
		t.Errorf("spread[0] = %f, want 0.25", result.Spread[0])
	}
	assert.Equal(t, 1.05, result.Stats.HedgeRatio)
}

func TestCompute_EstimatedHedgeRatio(t *testing.T) {
	p2 := []float64{10, 11, 12, 13, 14}
	p1 := make([]float64, len(p2))
	for i, v := range p2 {
		p1[i] = 3*v + 5
	}

	result, err := Compute(p1, p2, Options{Type: SpreadTypeDifference, EstimateHedgeRatio: true})
	require.NoError(t, err)

	if !almostEqual(result.Stats.HedgeRatio, 3.0, 1e-10) {
		t.Errorf("HedgeRatio = %f, want 3.0", result.Stats.HedgeRatio)
	}
	for i, s := range result.Spread {
		if !almostEqual(s, 5.0, 1e-9) {
			t.Errorf("spread[%d] = %f, want 5.0", i, s)
		}
	}
	assert.InDelta(t, 1.0, result.Stats.Correlation, 1e-10)
	assert.InDelta(t, 0.0, result.Stats.Std, 1e-9)
}

func TestCompute_Ratio(t *testing.T) {
	result, err := Compute([]float64{100}, []float64{50}, Options{Type: "RATIO"})
	require.NoError(t, err)
	assert.Equal(t, SpreadTypeRatio, result.Type)
	assert.InDelta(t, 2.0, result.Spread[0], 1e-12)
	assert.Equal(t, 0.0, result.Stats.HedgeRatio)
}

func TestCompute_Log(t *testing.T) {
	result, err := Compute([]float64{100}, []float64{50}, Options{Type: SpreadTypeLog})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), result.Spread[0], 1e-12)
}

func TestCompute_Standard(t *testing.T) {
	p1 := []float64{1, 2, 3}
	p2 := []float64{10, 20, 30}

	result, err := Compute(p1, p2, Options{Type: SpreadTypeStandard})
	require.NoError(t, err)

	// identical shapes standardise to the same series
	for i, s := range result.Spread {
		assert.InDelta(t, 0.0, s, 1e-12, "step %d", i)
	}
}

func TestCompute_Stats(t *testing.T) {
	result, err := Compute([]float64{10, 12, 14}, []float64{9, 10, 11}, Options{})
	require.NoError(t, err)

	// spread = [1, 2, 3]
	assert.InDelta(t, 3.0, result.Stats.CurrentSpread, 1e-12)
	assert.InDelta(t, 2.0, result.Stats.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.0/3.0), result.Stats.Std, 1e-12)
	assert.InDelta(t, 1/math.Sqrt(2.0/3.0), result.Stats.ZScore, 1e-9)
}

func TestCompute_Errors(t *testing.T) {
	tests := []struct {
		name string
		p1   []float64
		p2   []float64
		opts Options
		want error
	}{
		{"empty", nil, nil, Options{}, stats.ErrEmptySeries},
		{"mismatch", []float64{1, 2}, []float64{1}, Options{}, stats.ErrLengthMismatch},
		{"unknown type", []float64{1}, []float64{1}, Options{Type: "cubic"}, stats.ErrParameter},
		{"zero price", []float64{1, 0}, []float64{1, 1}, Options{}, stats.ErrParameter},
		{"nan price", []float64{1}, []float64{math.NaN()}, Options{}, stats.ErrParameter},
		{"inf hedge", []float64{1}, []float64{1}, Options{HedgeRatio: math.Inf(1)}, stats.ErrParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.p1, tt.p2, tt.opts)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParseSpreadType(t *testing.T) {
	got, err := ParseSpreadType("")
	require.NoError(t, err)
	assert.Equal(t, SpreadTypeDifference, got)

	got, err = ParseSpreadType(" Log ")
	require.NoError(t, err)
	assert.Equal(t, SpreadTypeLog, got)

	_, err = ParseSpreadType("cubic")
	assert.Error(t, err)
}
