// Package signal turns a deviation series into position series.
//
// A ThresholdSpec holds the entry and exit comparators, an Engine walks a
// series through a Flat/InPosition state machine, and Consolidate merges the
// per-direction outputs into one net position series.
package signal

import (
	"fmt"
	"strings"
)

// ComparatorKind 比较器类型
type ComparatorKind int

const (
	// Equal matches |value - threshold| <= tolerance
	Equal ComparatorKind = iota
	// NotEqual matches |value - threshold| > tolerance
	NotEqual
	// GreaterThan matches value > threshold
	GreaterThan
	// LessThan matches value < threshold
	LessThan
)

func (k ComparatorKind) String() string {
	switch k {
	case Equal:
		return "eq"
	case NotEqual:
		return "neq"
	case GreaterThan:
		return "gt"
	case LessThan:
		return "lt"
	default:
		return fmt.Sprintf("ComparatorKind(%d)", int(k))
	}
}

// ParseComparatorKind parses eq/neq/gt/lt.
func ParseComparatorKind(s string) (ComparatorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eq":
		return Equal, nil
	case "neq":
		return NotEqual, nil
	case "gt":
		return GreaterThan, nil
	case "lt":
		return LessThan, nil
	}
	return 0, fmt.Errorf("unknown comparator %q", s)
}

// Slot 决策槽位（入场 / 出场）
type Slot int

const (
	SlotEntry Slot = iota
	SlotExit
)

func (s Slot) String() string {
	switch s {
	case SlotEntry:
		return "entry"
	case SlotExit:
		return "exit"
	default:
		return fmt.Sprintf("Slot(%d)", int(s))
	}
}

// ParseSlot parses entry/exit.
func ParseSlot(s string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entry":
		return SlotEntry, nil
	case "exit":
		return SlotExit, nil
	}
	return 0, fmt.Errorf("unknown slot %q", s)
}

// Direction 信号方向
type Direction string

const (
	// Long 做多价差: long asset 1, short asset 2
	Long Direction = "Long"
	// Short 做空价差: short asset 1, long asset 2
	Short Direction = "Short"
)

// ParseDirection accepts "long"/"short" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown signal type %q", s)
	}
}

// Sign returns +1 for Long and -1 for Short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Valid reports whether d is Long or Short.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// UnmarshalText normalises the case of a decoded direction.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// State 引擎状态
type State int

const (
	Flat State = iota
	InPosition
)

func (s State) String() string {
	switch s {
	case Flat:
		return "Flat"
	case InPosition:
		return "InPosition"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name in reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Flat":
		*s = Flat
	case "InPosition":
		*s = InPosition
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}
