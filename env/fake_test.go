package env

import (
	"github.com/brensch/agarenv/config"
)

// scripted is an Engine whose outputs are set by the test.
type scripted struct {
	cfg  config.Config
	kind Kind

	shape   []int
	rewards []float64
	dones   []bool
	states  []Raw

	resets  int
	seed    int64
	actions [][]Action
	steps   int
	closed  bool
}

func newScripted(kind Kind, cfg config.Config) *scripted {
	n := cfg.NumAgents
	s := &scripted{
		cfg:     cfg,
		kind:    kind,
		rewards: make([]float64, n),
		dones:   make([]bool, n),
		states:  make([]Raw, n),
	}
	switch kind {
	case KindGrid:
		g := cfg.Grid
		s.shape = []int{g.NumFrames * g.Channels(), g.GridSize, g.GridSize}
		for i := range s.states {
			t := Tensor[int32]{Shape: s.shape}
			t.Data = make([]int32, t.Len())
			for j := range t.Data {
				t.Data[j] = int32(j)
			}
			s.states[i].Grid = t
		}
	case KindRAM:
		s.shape = []int{7}
		for i := range s.states {
			s.states[i].RAM = Tensor[float32]{Shape: []int{7}, Data: make([]float32, 7)}
		}
	case KindScreen:
		s.shape = []int{4, cfg.ScreenLen, cfg.ScreenLen, 3}
		for i := range s.states {
			t := Tensor[uint8]{Shape: s.shape}
			t.Data = make([]uint8, t.Len())
			s.states[i].Screen = t
		}
	default:
		s.shape = []int{}
		for i := range s.states {
			s.states[i].Tables = []Table{
				NewTable(3, EntityCols),
				NewTable(0, EntityCols),
				NewTable(1, EntityCols),
				NewTable(1, CellCols),
			}
		}
	}
	return s
}

func (s *scripted) Reset() {
	s.resets++
	for i := range s.dones {
		s.dones[i] = false
	}
}

func (s *scripted) Seed(seed int64) { s.seed = seed }

func (s *scripted) TakeActions(actions []Action) {
	s.actions = append(s.actions, append([]Action(nil), actions...))
}

func (s *scripted) Step() []float64 {
	s.steps++
	return append([]float64(nil), s.rewards...)
}

func (s *scripted) State() []Raw            { return s.states }
func (s *scripted) Dones() []bool           { return append([]bool(nil), s.dones...) }
func (s *scripted) ObservationShape() []int { return s.shape }

func (s *scripted) Close() error {
	s.closed = true
	return nil
}

// opener hands out scripted engines and remembers the last one.
type opener struct {
	screen bool
	last   *scripted

	// tweak adjusts a new engine before it is returned.
	tweak func(*scripted)
}

func (o *opener) HasScreen() bool { return o.screen }

func (o *opener) Open(kind Kind, cfg config.Config) (Engine, error) {
	o.last = newScripted(kind, cfg)
	if o.tweak != nil {
		o.tweak(o.last)
	}
	return o.last, nil
}
