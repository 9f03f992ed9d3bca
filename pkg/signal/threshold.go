package signal

import (
	"fmt"
	"math"
	"strings"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// DefaultTolerance is the equality band used when a document sets none.
const DefaultTolerance = 1e-9

// Pair holds an optional threshold per slot: index 0 is entry, 1 is exit.
type Pair [2]*float64

// Float returns a pointer to v, for building a Pair inline.
func Float(v float64) *float64 {
	return &v
}

// Comparator is one active threshold test.
type Comparator struct {
	Kind      ComparatorKind
	Threshold float64
}

// Satisfied evaluates the comparator against value.
func (c Comparator) Satisfied(value, tolerance float64) bool {
	switch c.Kind {
	case Equal:
		return math.Abs(value-c.Threshold) <= tolerance
	case NotEqual:
		return math.Abs(value-c.Threshold) > tolerance
	case GreaterThan:
		return value > c.Threshold
	case LessThan:
		return value < c.Threshold
	default:
		return false
	}
}

func (c Comparator) String() string {
	return fmt.Sprintf("%s(%g)", c.Kind, c.Threshold)
}

// ThresholdSpec 入场/出场条件集合
// Each slot fires when any of its comparators is satisfied.
type ThresholdSpec struct {
	slots     [2][]Comparator
	tolerance float64
}

// NewThresholdSpec builds a spec from the four comparator families.
func NewThresholdSpec(eq, neq, gt, lt Pair, tolerance float64) (*ThresholdSpec, error) {
	if !stats.IsFinite(tolerance) || tolerance < 0 {
		return nil, fmt.Errorf("%w: tolerance must be a non-negative finite number, got %v",
			stats.ErrConfiguration, tolerance)
	}

	spec := &ThresholdSpec{tolerance: tolerance}
	families := []struct {
		kind ComparatorKind
		pair Pair
	}{
		{Equal, eq},
		{NotEqual, neq},
		{GreaterThan, gt},
		{LessThan, lt},
	}
	for _, f := range families {
		for slot, threshold := range f.pair {
			if threshold == nil {
				continue
			}
			if !stats.IsFinite(*threshold) {
				return nil, fmt.Errorf("%w: %s %s threshold is not finite",
					stats.ErrConfiguration, f.kind, Slot(slot))
			}
			spec.slots[slot] = append(spec.slots[slot], Comparator{Kind: f.kind, Threshold: *threshold})
		}
	}

	if len(spec.slots[SlotEntry]) == 0 && len(spec.slots[SlotExit]) == 0 {
		return nil, fmt.Errorf("%w: no active comparator in any slot", stats.ErrConfiguration)
	}
	return spec, nil
}

// Matches reports whether any active comparator of slot accepts value.
// NaN marks a step without data and never matches.
func (s *ThresholdSpec) Matches(slot Slot, value float64) bool {
	if slot != SlotEntry && slot != SlotExit {
		return false
	}
	if math.IsNaN(value) {
		return false
	}
	for _, c := range s.slots[slot] {
		if c.Satisfied(value, s.tolerance) {
			return true
		}
	}
	return false
}

// Active returns a copy of the comparators configured for slot.
func (s *ThresholdSpec) Active(slot Slot) []Comparator {
	if slot != SlotEntry && slot != SlotExit {
		return nil
	}
	out := make([]Comparator, len(s.slots[slot]))
	copy(out, s.slots[slot])
	return out
}

// Tolerance returns the equality band.
func (s *ThresholdSpec) Tolerance() float64 {
	return s.tolerance
}

func (s *ThresholdSpec) String() string {
	var b strings.Builder
	for i, slot := range []Slot{SlotEntry, SlotExit} {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(slot.String())
		b.WriteString("=[")
		for j, c := range s.slots[slot] {
			if j > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(c.String())
		}
		b.WriteString("]")
	}
	fmt.Fprintf(&b, " tol=%g", s.tolerance)
	return b.String()
}
