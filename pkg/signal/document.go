package signal

import (
	"fmt"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Document is the external form of one direction's threshold set.
//
//	eq:  [-1.5, 0.0]
//	neq: [null, null]
//	gt:  [null, 0.0]
//	lt:  [-1.5, null]
//	signal_type: Long
//
// Each comparator array is [entry, exit]; null or a missing key leaves the
// comparator inactive. A nil Tolerance means DefaultTolerance, 0 means an
// exact match.
type Document struct {
	Eq         []*float64 `yaml:"eq,omitempty" json:"eq,omitempty" mapstructure:"eq"`
	Neq        []*float64 `yaml:"neq,omitempty" json:"neq,omitempty" mapstructure:"neq"`
	Gt         []*float64 `yaml:"gt,omitempty" json:"gt,omitempty" mapstructure:"gt"`
	Lt         []*float64 `yaml:"lt,omitempty" json:"lt,omitempty" mapstructure:"lt"`
	Tolerance  *float64   `yaml:"tolerance,omitempty" json:"tolerance,omitempty" mapstructure:"tolerance"`
	SignalType Direction  `yaml:"signal_type" json:"signal_type" mapstructure:"signal_type"`
	Size       float64    `yaml:"size,omitempty" json:"size,omitempty" mapstructure:"size"`
}

// Spec validates the comparator arrays and builds the ThresholdSpec.
func (d *Document) Spec() (*ThresholdSpec, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil signal document", stats.ErrConfiguration)
	}

	var pairs [4]Pair
	for i, field := range []struct {
		name   string
		values []*float64
	}{
		{"eq", d.Eq},
		{"neq", d.Neq},
		{"gt", d.Gt},
		{"lt", d.Lt},
	} {
		switch len(field.values) {
		case 0:
		case 2:
			pairs[i] = Pair{field.values[0], field.values[1]}
		default:
			return nil, fmt.Errorf("%w: malformed comparator pairing: %s has %d elements, want [entry, exit]",
				stats.ErrConfiguration, field.name, len(field.values))
		}
	}

	tolerance := DefaultTolerance
	if d.Tolerance != nil {
		tolerance = *d.Tolerance
	}
	return NewThresholdSpec(pairs[0], pairs[1], pairs[2], pairs[3], tolerance)
}

// Engine builds the ThresholdSpec and wraps it in an Engine for the document's direction.
func (d *Document) Engine() (*Engine, error) {
	spec, err := d.Spec()
	if err != nil {
		return nil, err
	}
	dir, err := ParseDirection(string(d.SignalType))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stats.ErrConfiguration, err)
	}
	engine, err := NewEngine(spec, dir)
	if err != nil {
		return nil, err
	}
	if d.Size != 0 {
		if err := engine.SetSize(d.Size); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// Clone returns a deep copy, so optimizer variants never share thresholds.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Eq = clonePtrs(d.Eq)
	out.Neq = clonePtrs(d.Neq)
	out.Gt = clonePtrs(d.Gt)
	out.Lt = clonePtrs(d.Lt)
	if d.Tolerance != nil {
		out.Tolerance = Float(*d.Tolerance)
	}
	return &out
}

// Set assigns one comparator threshold, growing an absent array to [entry, exit].
func (d *Document) Set(kind ComparatorKind, slot Slot, value float64) error {
	if slot != SlotEntry && slot != SlotExit {
		return fmt.Errorf("%w: unknown slot %v", stats.ErrConfiguration, slot)
	}
	var target *[]*float64
	switch kind {
	case Equal:
		target = &d.Eq
	case NotEqual:
		target = &d.Neq
	case GreaterThan:
		target = &d.Gt
	case LessThan:
		target = &d.Lt
	default:
		return fmt.Errorf("%w: unknown comparator %v", stats.ErrConfiguration, kind)
	}
	if len(*target) == 0 {
		*target = make([]*float64, 2)
	}
	if len(*target) != 2 {
		return fmt.Errorf("%w: malformed comparator pairing: %s has %d elements",
			stats.ErrConfiguration, kind, len(*target))
	}
	(*target)[slot] = Float(value)
	return nil
}

func clonePtrs(in []*float64) []*float64 {
	if in == nil {
		return nil
	}
	out := make([]*float64, len(in))
	for i, p := range in {
		if p != nil {
			out[i] = Float(*p)
		}
	}
	return out
}
