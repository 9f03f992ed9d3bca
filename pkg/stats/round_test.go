package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		places   int32
		expected float64
	}{
		{"two places", 1.23456, 2, 1.23},
		{"half away from zero", 2.5, 0, 3},
		{"negative half", -2.5, 0, -3},
		{"exact binary half", 0.125, 2, 0.13},
		{"no-op", 7, 3, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Round(tt.value, tt.places))
		})
	}
}

func TestRound_NonFinite(t *testing.T) {
	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
	assert.True(t, math.IsInf(Round(math.Inf(-1), 2), -1))
}

func TestRoundAll(t *testing.T) {
	assert.Nil(t, RoundAll(nil, 2))
	assert.Equal(t, []float64{0.12, -0.99}, RoundAll([]float64{0.1234, -0.9871}, 2))
}
