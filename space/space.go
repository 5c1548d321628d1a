// Package space describes the action and observation contracts an
// environment promises its callers.
package space

import (
	"fmt"
	"math"
	"strings"
)

type DType string

const (
	Float32 DType = "float32"
	Int32   DType = "int32"
	Uint8   DType = "uint8"
)

// Box is a bounded (or unbounded, with infinities) n-dimensional range.
type Box struct {
	Low   float64
	High  float64
	Shape []int
	DType DType
}

// Contains reports whether every value lies in [Low, High]. NaN never does.
func (b Box) Contains(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || v < b.Low || v > b.High {
			return false
		}
	}
	return true
}

// Size is the product of the shape dimensions.
func (b Box) Size() int {
	n := 1
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

func (b Box) String() string {
	return fmt.Sprintf("Box(%g, %g, %v, %s)", b.Low, b.High, b.Shape, b.DType)
}

// Discrete is the set {0, 1, ..., N-1}.
type Discrete struct {
	N int
}

func (d Discrete) Contains(v int) bool { return v >= 0 && v < d.N }

func (d Discrete) String() string { return fmt.Sprintf("Discrete(%d)", d.N) }

// Action is the per-agent action contract: a 2-D target plus a command.
type Action struct {
	Target  Box
	Command Discrete
}

// DefaultAction has targets in [-1, 1] and three commands (noop, split,
// feed).
func DefaultAction() Action {
	return Action{
		Target:  Box{Low: -1, High: 1, Shape: []int{2}, DType: Float32},
		Command: Discrete{N: 3},
	}
}

func (a Action) String() string {
	return fmt.Sprintf("Tuple(%s, %s)", a.Target, a.Command)
}

// Field is one named entity array of a structural observation. Variable
// dimensions are -1.
type Field struct {
	Name  string
	Shape []int
}

// Observation describes what one agent observes. Exactly one of Box or
// Fields is meaningful: dense kinds carry a Box, the full kind carries Fields.
type Observation struct {
	Box    *Box
	Fields []Field
}

// Shape is the dense shape, or nil for structural descriptors.
func (o Observation) Shape() []int {
	if o.Box == nil {
		return nil
	}
	return o.Box.Shape
}

func (o Observation) String() string {
	if o.Box != nil {
		return o.Box.String()
	}
	parts := make([]string, 0, len(o.Fields))
	for _, f := range o.Fields {
		dims := make([]string, len(f.Shape))
		for i, d := range f.Shape {
			if d < 0 {
				dims[i] = "None"
			} else {
				dims[i] = fmt.Sprint(d)
			}
		}
		parts = append(parts, fmt.Sprintf("%s:(%s)", f.Name, strings.Join(dims, ",")))
	}
	return "Dict(" + strings.Join(parts, " ") + ")"
}
