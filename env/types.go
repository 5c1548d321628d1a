// Package env adapts an Agar.io engine to a reset/step/observe contract for
// reinforcement-learning agents.
//
// The coordinator always works on per-agent lists of length NumAgents.
// Single-agent callers go through Single, which unwraps those lists at the
// boundary.
package env

import (
	"fmt"
	"strings"
)

// Command is the discrete half of an action.
type Command int

const (
	Noop  Command = 0
	Split Command = 1
	Feed  Command = 2
)

func (c Command) String() string {
	switch c {
	case Noop:
		return "noop"
	case Split:
		return "split"
	case Feed:
		return "feed"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Action is what one agent does in one step.
type Action struct {
	Target  [2]float64
	Command Command
}

// NoopAction stays put and does nothing.
var NoopAction = Action{}

// ActionFromTuple decodes the wire encoding (target_x, target_y, command).
func ActionFromTuple(x, y float64, command int) Action {
	return Action{Target: [2]float64{x, y}, Command: Command(command)}
}

// Kind selects the observation variant. It is fixed per environment.
type Kind int

const (
	KindFull Kind = iota
	KindGrid
	KindRAM
	KindScreen
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindGrid:
		return "grid"
	case KindRAM:
		return "ram"
	case KindScreen:
		return "screen"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps an observation-type tag to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return KindFull, nil
	case "grid":
		return KindGrid, nil
	case "ram":
		return KindRAM, nil
	case "screen":
		return KindScreen, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownObservationType, s)
}

// Table is a row-major numeric table: one row per entity.
type Table struct {
	Rows int
	Cols int
	Data []float32
}

// NewTable allocates a zeroed rows x cols table.
func NewTable(rows, cols int) Table {
	return Table{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// Row returns row i as a sub-slice of Data.
func (t Table) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// At returns the value at row i, column j.
func (t Table) At(i, j int) float32 {
	return t.Data[i*t.Cols+j]
}

// Valid reports whether the table is rectangular.
func (t Table) Valid() bool {
	return t.Rows >= 0 && t.Cols > 0 && len(t.Data) == t.Rows*t.Cols
}

// Clone deep-copies the table. Engines may reuse table storage after the
// next step, so callers that retain observations should clone them.
func (t Table) Clone() Table {
	out := Table{Rows: t.Rows, Cols: t.Cols}
	if len(t.Data) > 0 {
		out.Data = make([]float32, len(t.Data))
		copy(out.Data, t.Data)
	}
	return out
}

// Number is the element type of a dense tensor.
type Number interface {
	~int32 | ~float32 | ~uint8
}

// Tensor is a dense row-major array.
type Tensor[T Number] struct {
	Shape []int
	Data  []T
}

// Len is the number of elements implied by Shape.
func (t Tensor[T]) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Transpose permutes the axes of t. perm[i] names the source axis that
// becomes axis i. Values are copied, never changed.
func (t Tensor[T]) Transpose(perm ...int) Tensor[T] {
	rank := len(t.Shape)
	if len(perm) != rank {
		panic(fmt.Sprintf("transpose: perm %v does not match rank %d", perm, rank))
	}

	outShape := make([]int, rank)
	for i, p := range perm {
		outShape[i] = t.Shape[p]
	}

	srcStrides := strides(t.Shape)
	out := Tensor[T]{Shape: outShape, Data: make([]T, len(t.Data))}
	if len(t.Data) == 0 {
		return out
	}

	idx := make([]int, rank)
	for o := range out.Data {
		src := 0
		for i, p := range perm {
			src += idx[i] * srcStrides[p]
		}
		out.Data[o] = t.Data[src]

		// advance the output index odometer
		for i := rank - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < outShape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// Raw is one agent's state as the engine reports it. Only the field for the
// engine's Kind is populated.
type Raw struct {
	Tables []Table         // full: pellets, viruses, foods, agent, others...
	Grid   Tensor[int32]   // grid: (channels, width, height)
	RAM    Tensor[float32] // ram: flat vector
	Screen Tensor[uint8]   // screen: (frames, len, len, rgb)
}

// Info is the step metadata returned alongside observations.
type Info struct {
	Steps int `json:"steps"`
}
