package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingZScore(t *testing.T) {
	out, err := RollingZScore([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))

	// a linear trend sits the same distance above every trailing mean
	want := 1 / math.Sqrt(2.0/3.0)
	for i := 2; i < 5; i++ {
		assert.InDelta(t, want, out[i], 1e-9, "step %d", i)
	}
}

func TestRollingZScore_MatchesWindowedZScore(t *testing.T) {
	series := []float64{0.3, -1.2, 0.8, 2.1, -0.4, 0.0, 1.7, -2.2, 0.9, 0.1}
	window := 4

	out, err := RollingZScore(series, window)
	require.NoError(t, err)

	for i := window - 1; i < len(series); i++ {
		w := series[i-window+1 : i+1]
		assert.InDelta(t, ZScore(series[i], Mean(w), StdDev(w)), out[i], 1e-9, "step %d", i)
	}
}

func TestRollingZScore_PriceLevelSeries(t *testing.T) {
	series := make([]float64, 300)
	for i := range series {
		series[i] = 250 + 0.05*float64(i) + 3*math.Sin(float64(i)/7)
	}
	window := 21

	out, err := RollingZScore(series, window)
	require.NoError(t, err)

	for i := window - 1; i < len(series); i++ {
		w := series[i-window+1 : i+1]
		assert.InDelta(t, ZScore(series[i], Mean(w), StdDev(w)), out[i], 1e-6, "step %d", i)
	}
}

func TestRollingZScore_FlatWindow(t *testing.T) {
	out, err := RollingZScore([]float64{2, 2, 2, 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[3])
}

func TestRollingZScore_Errors(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		window int
		want   error
	}{
		{"empty", nil, 3, ErrEmptySeries},
		{"window too small", []float64{1, 2, 3}, 1, ErrParameter},
		{"window too large", []float64{1, 2, 3}, 4, ErrParameter},
		{"infinite value", []float64{1, math.Inf(1), 3}, 2, ErrParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RollingZScore(tt.series, tt.window)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
