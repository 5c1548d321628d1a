// Package config resolves environment configuration from a named difficulty
// preset and explicit overrides.
//
// A resolved Config is a plain value. It is built once by Resolve and handed
// to the environment factory; nothing mutates it afterwards.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned for an unknown difficulty or an out-of-range
// parameter.
var ErrInvalidConfig = errors.New("invalid config")

type Difficulty string

const (
	Normal  Difficulty = "normal"
	Empty   Difficulty = "empty"
	Trivial Difficulty = "trivial"
)

const (
	DefaultGridSize  = 128
	DefaultNumFrames = 2
	DefaultScreenLen = 256
)

// GridOptions drives the shape of grid observations.
type GridOptions struct {
	GridSize       int
	NumFrames      int
	ObserveCells   bool
	ObserveOthers  bool
	ObserveViruses bool
	ObservePellets bool
}

// Channels is the number of channels per frame: one per enabled toggle.
func (g GridOptions) Channels() int {
	n := 0
	for _, on := range []bool{g.ObserveCells, g.ObserveOthers, g.ObserveViruses, g.ObservePellets} {
		if on {
			n++
		}
	}
	return n
}

// Config is the canonical environment configuration.
type Config struct {
	Difficulty   Difficulty
	TicksPerStep int
	ArenaSize    float64
	NumPellets   int
	NumViruses   int
	NumBots      int
	PelletRegen  bool
	MultiAgent   bool
	NumAgents    int

	Grid      GridOptions
	ScreenLen int
}

// Overrides holds explicit caller settings. A nil field means "use the
// preset default"; a non-nil field always wins.
type Overrides struct {
	TicksPerStep *int
	ArenaSize    *float64
	NumPellets   *int
	NumViruses   *int
	NumBots      *int
	PelletRegen  *bool
	MultiAgent   *bool
	NumAgents    *int

	GridSize       *int
	NumFrames      *int
	ObserveCells   *bool
	ObserveOthers  *bool
	ObserveViruses *bool
	ObservePellets *bool
	ScreenLen      *int
}

// Preset returns the defaults for a difficulty. The empty string selects
// Normal and matching is case-insensitive.
func Preset(difficulty string) (Config, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(difficulty)))
	if d == "" {
		d = Normal
	}

	cfg := Config{
		Difficulty:   d,
		TicksPerStep: 4,
		ArenaSize:    1000,
		NumPellets:   1000,
		NumViruses:   25,
		NumBots:      25,
		PelletRegen:  true,
		NumAgents:    1,
		Grid: GridOptions{
			GridSize:       DefaultGridSize,
			NumFrames:      DefaultNumFrames,
			ObserveCells:   true,
			ObserveOthers:  true,
			ObserveViruses: true,
			ObservePellets: true,
		},
		ScreenLen: DefaultScreenLen,
	}

	switch d {
	case Normal:
	case Empty:
		cfg.NumBots = 0
	case Trivial:
		cfg.ArenaSize = 50
		cfg.NumPellets = 200
		cfg.NumViruses = 0
		cfg.NumBots = 0
	default:
		return Config{}, fmt.Errorf("%w: unrecognized difficulty %q", ErrInvalidConfig, difficulty)
	}
	return cfg, nil
}

// Resolve merges the preset for difficulty with o and validates the result.
func Resolve(difficulty string, o Overrides) (Config, error) {
	cfg, err := Preset(difficulty)
	if err != nil {
		return Config{}, err
	}

	setInt(&cfg.TicksPerStep, o.TicksPerStep)
	setFloat(&cfg.ArenaSize, o.ArenaSize)
	setInt(&cfg.NumPellets, o.NumPellets)
	setInt(&cfg.NumViruses, o.NumViruses)
	setInt(&cfg.NumBots, o.NumBots)
	setBool(&cfg.PelletRegen, o.PelletRegen)
	setBool(&cfg.MultiAgent, o.MultiAgent)
	setInt(&cfg.NumAgents, o.NumAgents)
	setInt(&cfg.Grid.GridSize, o.GridSize)
	setInt(&cfg.Grid.NumFrames, o.NumFrames)
	setBool(&cfg.Grid.ObserveCells, o.ObserveCells)
	setBool(&cfg.Grid.ObserveOthers, o.ObserveOthers)
	setBool(&cfg.Grid.ObserveViruses, o.ObserveViruses)
	setBool(&cfg.Grid.ObservePellets, o.ObservePellets)
	setInt(&cfg.ScreenLen, o.ScreenLen)

	// The frame default only applies when it fits inside one tick-group.
	if o.NumFrames == nil && cfg.TicksPerStep > 0 && cfg.Grid.NumFrames > cfg.TicksPerStep {
		cfg.Grid.NumFrames = cfg.TicksPerStep
	}

	// num_agents > 1 implies multi-agent even if the caller did not say so.
	cfg.MultiAgent = cfg.MultiAgent || cfg.NumAgents > 1

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every parameter range.
func (c Config) Validate() error {
	switch {
	case c.TicksPerStep <= 0:
		return fmt.Errorf("%w: ticks_per_step must be a positive integer, got %d", ErrInvalidConfig, c.TicksPerStep)
	case c.ArenaSize <= 0:
		return fmt.Errorf("%w: arena_size must be positive, got %g", ErrInvalidConfig, c.ArenaSize)
	case c.NumPellets < 0:
		return fmt.Errorf("%w: num_pellets must be >= 0, got %d", ErrInvalidConfig, c.NumPellets)
	case c.NumViruses < 0:
		return fmt.Errorf("%w: num_viruses must be >= 0, got %d", ErrInvalidConfig, c.NumViruses)
	case c.NumBots < 0:
		return fmt.Errorf("%w: num_bots must be >= 0, got %d", ErrInvalidConfig, c.NumBots)
	case c.NumAgents < 1:
		return fmt.Errorf("%w: num_agents must be >= 1, got %d", ErrInvalidConfig, c.NumAgents)
	case c.NumAgents > 1 && !c.MultiAgent:
		return fmt.Errorf("%w: num_agents=%d requires multi_agent", ErrInvalidConfig, c.NumAgents)
	case c.Grid.GridSize < 0:
		return fmt.Errorf("%w: grid_size must be >= 0, got %d", ErrInvalidConfig, c.Grid.GridSize)
	case c.Grid.NumFrames < 0 || c.Grid.NumFrames > c.TicksPerStep:
		return fmt.Errorf("%w: num_frames must be in [0, ticks_per_step=%d], got %d", ErrInvalidConfig, c.TicksPerStep, c.Grid.NumFrames)
	case c.ScreenLen <= 0:
		return fmt.Errorf("%w: screen_len must be positive, got %d", ErrInvalidConfig, c.ScreenLen)
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Int, Float and Bool build Overrides fields inline.
func Int(v int) *int           { return &v }
func Float(v float64) *float64 { return &v }
func Bool(v bool) *bool        { return &v }
