package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment variable read by FromEnv.
const EnvPrefix = "AGARENV_"

// envSettings mirrors Overrides with env tags. Unset variables stay nil so
// they do not mask preset defaults.
type envSettings struct {
	Difficulty string `env:"DIFFICULTY"`

	TicksPerStep *int     `env:"TICKS_PER_STEP"`
	ArenaSize    *float64 `env:"ARENA_SIZE"`
	NumPellets   *int     `env:"NUM_PELLETS"`
	NumViruses   *int     `env:"NUM_VIRUSES"`
	NumBots      *int     `env:"NUM_BOTS"`
	PelletRegen  *bool    `env:"PELLET_REGEN"`
	MultiAgent   *bool    `env:"MULTI_AGENT"`
	NumAgents    *int     `env:"NUM_AGENTS"`

	GridSize       *int  `env:"GRID_SIZE"`
	NumFrames      *int  `env:"NUM_FRAMES"`
	ObserveCells   *bool `env:"OBSERVE_CELLS"`
	ObserveOthers  *bool `env:"OBSERVE_OTHERS"`
	ObserveViruses *bool `env:"OBSERVE_VIRUSES"`
	ObservePellets *bool `env:"OBSERVE_PELLETS"`
	ScreenLen      *int  `env:"SCREEN_LEN"`
}

// FromEnv loads the difficulty and overrides from AGARENV_* variables.
func FromEnv() (string, Overrides, error) {
	var s envSettings
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return "", Overrides{}, fmt.Errorf("parse env: %w", err)
	}
	return s.Difficulty, Overrides{
		TicksPerStep:   s.TicksPerStep,
		ArenaSize:      s.ArenaSize,
		NumPellets:     s.NumPellets,
		NumViruses:     s.NumViruses,
		NumBots:        s.NumBots,
		PelletRegen:    s.PelletRegen,
		MultiAgent:     s.MultiAgent,
		NumAgents:      s.NumAgents,
		GridSize:       s.GridSize,
		NumFrames:      s.NumFrames,
		ObserveCells:   s.ObserveCells,
		ObserveOthers:  s.ObserveOthers,
		ObserveViruses: s.ObserveViruses,
		ObservePellets: s.ObservePellets,
		ScreenLen:      s.ScreenLen,
	}, nil
}

// Merge returns o with every field set in top replacing the one in o.
func (o Overrides) Merge(top Overrides) Overrides {
	pick := func(a, b *int) *int {
		if b != nil {
			return b
		}
		return a
	}
	pickB := func(a, b *bool) *bool {
		if b != nil {
			return b
		}
		return a
	}
	out := Overrides{
		TicksPerStep:   pick(o.TicksPerStep, top.TicksPerStep),
		ArenaSize:      o.ArenaSize,
		NumPellets:     pick(o.NumPellets, top.NumPellets),
		NumViruses:     pick(o.NumViruses, top.NumViruses),
		NumBots:        pick(o.NumBots, top.NumBots),
		PelletRegen:    pickB(o.PelletRegen, top.PelletRegen),
		MultiAgent:     pickB(o.MultiAgent, top.MultiAgent),
		NumAgents:      pick(o.NumAgents, top.NumAgents),
		GridSize:       pick(o.GridSize, top.GridSize),
		NumFrames:      pick(o.NumFrames, top.NumFrames),
		ObserveCells:   pickB(o.ObserveCells, top.ObserveCells),
		ObserveOthers:  pickB(o.ObserveOthers, top.ObserveOthers),
		ObserveViruses: pickB(o.ObserveViruses, top.ObserveViruses),
		ObservePellets: pickB(o.ObservePellets, top.ObservePellets),
		ScreenLen:      pick(o.ScreenLen, top.ScreenLen),
	}
	if top.ArenaSize != nil {
		out.ArenaSize = top.ArenaSize
	}
	return out
}
