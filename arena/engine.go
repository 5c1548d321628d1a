package arena

import (
	"fmt"
	"math"

	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/env"
)

// Engine runs a World behind the env.Engine interface. Agents are
// Players[0:NumAgents]; the rest are bots.
type Engine struct {
	kind  env.Kind
	cfg   config.Config
	world *World
	seed  int64

	dones []bool
	grids [][]int32
	rams  [][]float32
}

var _ env.Engine = (*Engine)(nil)

// NewEngine builds an engine rendering observations of the given kind. The
// screen kind is not supported.
func NewEngine(kind env.Kind, cfg config.Config) (*Engine, error) {
	if kind == env.KindScreen {
		return nil, fmt.Errorf("%w: arena engine has no renderer", env.ErrEnvironmentUnavailable)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	settings := Settings{
		Width:       cfg.ArenaSize,
		Height:      cfg.ArenaSize,
		NumPellets:  cfg.NumPellets,
		NumViruses:  cfg.NumViruses,
		PelletRegen: cfg.PelletRegen,
	}
	e := &Engine{
		kind:  kind,
		cfg:   cfg,
		world: NewWorld(settings, DefaultSeed),
		seed:  DefaultSeed,
		dones: make([]bool, cfg.NumAgents),
	}

	switch kind {
	case env.KindGrid:
		shape := GridShape(cfg.Grid)
		e.grids = make([][]int32, cfg.NumAgents)
		for i := range e.grids {
			e.grids[i] = make([]int32, shape[0]*shape[1]*shape[2])
		}
	case env.KindRAM:
		n := RAMLength(e.numPlayers(), cfg.NumPellets, cfg.NumViruses)
		e.rams = make([][]float32, cfg.NumAgents)
		for i := range e.rams {
			e.rams[i] = make([]float32, n)
		}
	}
	return e, nil
}

func (e *Engine) numPlayers() int { return e.cfg.NumAgents + e.cfg.NumBots }

// World exposes the underlying simulation, mainly for viewers.
func (e *Engine) World() *World { return e.world }

// Seed takes effect at the next Reset.
func (e *Engine) Seed(seed int64) {
	e.seed = seed
}

func (e *Engine) Reset() {
	e.world.Reseed(e.seed)
	e.world.Populate(e.cfg.NumAgents, e.cfg.NumBots)
	clear(e.dones)

	if e.kind == env.KindGrid {
		for i := range e.grids {
			clear(e.grids[i])
			for f := 0; f < e.cfg.Grid.NumFrames; f++ {
				DrawFrame(e.grids[i], e.cfg.Grid, e.world.State, i, f)
			}
		}
	}
}

// TakeActions steers every live agent. The target is relative to the
// agent's center.
func (e *Engine) TakeActions(actions []env.Action) {
	for i := 0; i < len(actions) && i < e.cfg.NumAgents; i++ {
		a := actions[i]
		e.world.SetAction(i, a.Target[0], a.Target[1], int(a.Command))
	}
}

// Step runs TicksPerStep ticks. Grid frames are captured during the last
// NumFrames ticks. Rewards are the change in whole units of agent mass.
func (e *Engine) Step() []float64 {
	before := make([]float64, e.cfg.NumAgents)
	for i := range before {
		before[i] = e.world.State.Players[i].Mass()
	}

	ticks := e.cfg.TicksPerStep
	frames := e.cfg.Grid.NumFrames
	for t := 0; t < ticks; t++ {
		e.world.Tick(TickDt)
		if e.kind != env.KindGrid {
			continue
		}
		if f := frames - ticks + t; f >= 0 {
			for i := range e.grids {
				DrawFrame(e.grids[i], e.cfg.Grid, e.world.State, i, f)
			}
		}
	}

	out := make([]float64, e.cfg.NumAgents)
	for i := range out {
		p := &e.world.State.Players[i]
		out[i] = math.Trunc(p.Mass()) - math.Trunc(before[i])
		if p.Dead() {
			e.dones[i] = true
		}
	}
	return out
}

func (e *Engine) State() []env.Raw {
	out := make([]env.Raw, e.cfg.NumAgents)
	s := e.world.State
	for i := range out {
		switch e.kind {
		case env.KindFull:
			out[i].Tables = FullTables(s, i)
		case env.KindGrid:
			out[i].Grid = env.Tensor[int32]{Shape: GridShape(e.cfg.Grid), Data: e.grids[i]}
		case env.KindRAM:
			WriteRAM(e.rams[i], s, i, e.cfg.NumPellets, e.cfg.NumViruses)
			out[i].RAM = env.Tensor[float32]{Shape: []int{len(e.rams[i])}, Data: e.rams[i]}
		}
	}
	return out
}

func (e *Engine) Dones() []bool {
	out := make([]bool, len(e.dones))
	copy(out, e.dones)
	return out
}

// ObservationShape is (C, W, H) for grid, (L) for ram and empty for full.
func (e *Engine) ObservationShape() []int {
	switch e.kind {
	case env.KindGrid:
		return GridShape(e.cfg.Grid)
	case env.KindRAM:
		return []int{RAMLength(e.numPlayers(), e.cfg.NumPellets, e.cfg.NumViruses)}
	}
	return []int{}
}

func (e *Engine) Close() error { return nil }

// Opener opens arena engines for env.New.
type Opener struct{}

var _ env.Opener = Opener{}

// HasScreen is false: the arena engine is built without a renderer.
func (Opener) HasScreen() bool { return false }

func (Opener) Open(kind env.Kind, cfg config.Config) (env.Engine, error) {
	return NewEngine(kind, cfg)
}
