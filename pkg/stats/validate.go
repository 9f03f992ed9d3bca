package stats

import (
	"fmt"
	"math"
)

// RequireNonEmpty 检查序列非空
func RequireNonEmpty(name string, data []float64) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptySeries, name)
	}
	return nil
}

// RequireSameLength checks that every series has the length of the first one.
// The names slice labels the series in the error message.
func RequireSameLength(names []string, series ...[]float64) error {
	if len(series) == 0 {
		return nil
	}
	want := len(series[0])
	for i, s := range series[1:] {
		if len(s) != want {
			return fmt.Errorf("%w: %s has %d elements, %s has %d",
				ErrLengthMismatch, label(names, 0), want, label(names, i+1), len(s))
		}
	}
	return nil
}

// RequireFinite rejects NaN and ±Inf values.
func RequireFinite(name string, data []float64) error {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite (%v)", ErrParameter, name, i, v)
		}
	}
	return nil
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func label(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("series#%d", i)
}
