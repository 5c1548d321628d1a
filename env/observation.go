package env

import "fmt"

// Observation is one agent's view of the world. The concrete type is one of
// *Full, *Grid, *RAM or *Screen, chosen by the environment's Kind. A nil
// Observation in a per-agent list means the agent is done.
type Observation interface {
	Kind() Kind
	observation()
}

// Full lists every entity by kind. Others holds one cell table per other
// player, in engine order.
type Full struct {
	Pellets Table
	Viruses Table
	Foods   Table
	Agent   Table
	Others  []Table
}

// Grid is a (width, height, channels) tensor.
type Grid struct{ Tensor[int32] }

// RAM is the engine's flat state vector.
type RAM struct{ Tensor[float32] }

// Screen is (frames, len, len, rgb) pixels.
type Screen struct{ Tensor[uint8] }

func (*Full) Kind() Kind   { return KindFull }
func (*Grid) Kind() Kind   { return KindGrid }
func (*RAM) Kind() Kind    { return KindRAM }
func (*Screen) Kind() Kind { return KindScreen }

func (*Full) observation()   {}
func (*Grid) observation()   {}
func (*RAM) observation()    {}
func (*Screen) observation() {}

// Mass is the agent's total cell mass.
func (f *Full) Mass() float64 {
	var m float64
	for i := 0; i < f.Agent.Rows; i++ {
		m += float64(f.Agent.At(i, 4))
	}
	return m
}

// assembler converts one agent's raw state. One is picked per Kind at
// construction.
type assembler func(raw Raw) (Observation, error)

func assemblerFor(kind Kind) (assembler, error) {
	switch kind {
	case KindFull:
		return assembleFull, nil
	case KindGrid:
		return assembleGrid, nil
	case KindRAM:
		return func(raw Raw) (Observation, error) { return &RAM{raw.RAM}, nil }, nil
	case KindScreen:
		return func(raw Raw) (Observation, error) { return &Screen{raw.Screen}, nil }, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownObservationType, kind)
}

// Assemble converts raw engine state into the observation promised for kind.
func Assemble(kind Kind, raw Raw) (Observation, error) {
	fn, err := assemblerFor(kind)
	if err != nil {
		return nil, err
	}
	return fn(raw)
}

func assembleFull(raw Raw) (Observation, error) {
	if len(raw.Tables) < 4 {
		return nil, fmt.Errorf("%w: full state has %d tables, need at least 4", ErrEngineContractViolation, len(raw.Tables))
	}
	want := [4]int{EntityCols, EntityCols, EntityCols, CellCols}
	for i, t := range raw.Tables {
		cols := CellCols
		if i < 4 {
			cols = want[i]
		}
		if !t.Valid() || t.Cols != cols {
			return nil, fmt.Errorf("%w: table %d is %dx%d with %d values, want %d columns", ErrEngineContractViolation, i, t.Rows, t.Cols, len(t.Data), cols)
		}
	}
	return &Full{
		Pellets: raw.Tables[0],
		Viruses: raw.Tables[1],
		Foods:   raw.Tables[2],
		Agent:   raw.Tables[3],
		Others:  raw.Tables[4:],
	}, nil
}

// assembleGrid moves channels last: (C, W, H) -> (W, H, C).
func assembleGrid(raw Raw) (Observation, error) {
	if len(raw.Grid.Shape) != 3 || raw.Grid.Len() != len(raw.Grid.Data) {
		return nil, fmt.Errorf("%w: grid state shape %v with %d values", ErrEngineContractViolation, raw.Grid.Shape, len(raw.Grid.Data))
	}
	return &Grid{raw.Grid.Transpose(1, 2, 0)}, nil
}
