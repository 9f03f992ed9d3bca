package signal

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Engine 信号状态机
// An Engine is immutable after construction; every Walk starts Flat, so one
// Engine may be shared by concurrent callers.
type Engine struct {
	spec      *ThresholdSpec
	direction Direction
	size      float64
}

// NewEngine creates a unit-size engine for direction.
func NewEngine(spec *ThresholdSpec, direction Direction) (*Engine, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil threshold spec", stats.ErrConfiguration)
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", stats.ErrConfiguration, direction)
	}
	return &Engine{spec: spec, direction: direction, size: 1}, nil
}

// SetSize sets the position magnitude emitted while InPosition.
func (e *Engine) SetSize(size float64) error {
	if !stats.IsFinite(size) || size <= 0 {
		return fmt.Errorf("%w: size must be positive and finite, got %v", stats.ErrParameter, size)
	}
	e.size = size
	return nil
}

func (e *Engine) Spec() *ThresholdSpec { return e.spec }
func (e *Engine) Direction() Direction { return e.direction }
func (e *Engine) Size() float64        { return e.size }

// Transition records a state change. Step is the first step that carries
// the new state, so an exit matched on the last step has Step == len(series).
type Transition struct {
	Step int   `yaml:"step" json:"step"`
	From State `yaml:"from" json:"from"`
	To   State `yaml:"to" json:"to"`
}

// Trace is the full outcome of one walk.
type Trace struct {
	Positions   []float64
	Transitions []Transition
	Final       State
}

// Entries counts Flat→InPosition transitions.
func (t *Trace) Entries() int {
	n := 0
	for _, tr := range t.Transitions {
		if tr.To == InPosition {
			n++
		}
	}
	return n
}

// Exits counts InPosition→Flat transitions.
func (t *Trace) Exits() int {
	return len(t.Transitions) - t.Entries()
}

// Walk runs the state machine over deviation.
//
// Step 0 only primes the machine and always emits 0: there is no prior
// observation, and a position opened there would never pay an entry cost.
// While Flat the entry slot is tested; on a match the step emits the signed
// size. While InPosition the step emits the signed size and, if the exit slot
// matches, the machine is Flat from the following step.
func (e *Engine) Walk(deviation []float64) (*Trace, error) {
	if err := stats.RequireNonEmpty("deviation", deviation); err != nil {
		return nil, err
	}

	position := e.direction.Sign() * e.size
	trace := &Trace{Positions: make([]float64, len(deviation))}
	state := Flat

	for i, v := range deviation {
		if math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: deviation[%d] is infinite", stats.ErrParameter, i)
		}

		switch state {
		case Flat:
			if i == 0 || !e.spec.Matches(SlotEntry, v) {
				continue
			}
			state = InPosition
			trace.Positions[i] = position
			trace.Transitions = append(trace.Transitions, Transition{Step: i, From: Flat, To: InPosition})
		case InPosition:
			trace.Positions[i] = position
			if e.spec.Matches(SlotExit, v) {
				state = Flat
				trace.Transitions = append(trace.Transitions, Transition{Step: i + 1, From: InPosition, To: Flat})
			}
		}
	}

	trace.Final = state
	return trace, nil
}

// Generate returns only the position series of Walk.
func (e *Engine) Generate(deviation []float64) ([]float64, error) {
	trace, err := e.Walk(deviation)
	if err != nil {
		return nil, err
	}
	return trace.Positions, nil
}
