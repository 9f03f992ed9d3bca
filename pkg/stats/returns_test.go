package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogReturns(t *testing.T) {
	out, err := LogReturns([]float64{100, 110, 99})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 0.0, out[0])
	assert.InDelta(t, math.Log(1.1), out[1], 1e-12)
	assert.InDelta(t, math.Log(0.9), out[2], 1e-12)
}

func TestLogReturns_Errors(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   error
	}{
		{"empty", nil, ErrEmptySeries},
		{"zero price", []float64{1, 0, 2}, ErrParameter},
		{"negative price", []float64{1, -2}, ErrParameter},
		{"nan price", []float64{1, math.NaN()}, ErrParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LogReturns(tt.prices)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCumulativeSum(t *testing.T) {
	assert.Equal(t, []float64{1, 3, 6}, CumulativeSum([]float64{1, 2, 3}))
	assert.Empty(t, CumulativeSum(nil))
}

func TestToSimple(t *testing.T) {
	out := ToSimple([]float64{0, math.Log(1.5), math.Log(0.5)})
	assert.InDelta(t, 0.0, out[0], 1e-12)
	assert.InDelta(t, 0.5, out[1], 1e-12)
	assert.InDelta(t, -0.5, out[2], 1e-12)
}
