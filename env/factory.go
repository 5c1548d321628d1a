package env

import (
	"fmt"
	"math"

	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/space"
)

// Column counts of the full observation's entity tables.
const (
	EntityCols = 2 // x, y
	CellCols   = 5 // x, y, vx, vy, mass
)

// Build opens an engine for kind and describes what its observations look
// like.
func Build(kind Kind, cfg config.Config, open Opener) (Engine, space.Observation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, space.Observation{}, err
	}
	if open == nil {
		return nil, space.Observation{}, fmt.Errorf("%w: no engine opener", ErrEnvironmentUnavailable)
	}

	switch kind {
	case KindFull:
		eng, err := open.Open(kind, cfg)
		if err != nil {
			return nil, space.Observation{}, fmt.Errorf("open full engine: %w", err)
		}
		return eng, FullSpace(), nil

	case KindGrid:
		obs := GridSpace(cfg.Grid)
		eng, err := open.Open(kind, cfg)
		if err != nil {
			return nil, space.Observation{}, fmt.Errorf("open grid engine: %w", err)
		}
		// The engine reports channel-major (C, W, H); we promise (W, H, C).
		want := []int{obs.Box.Shape[2], obs.Box.Shape[0], obs.Box.Shape[1]}
		if got := eng.ObservationShape(); !sameShape(got, want) {
			_ = eng.Close()
			return nil, space.Observation{}, fmt.Errorf("%w: grid engine shape %v, configured %v", ErrEngineContractViolation, got, want)
		}
		return eng, obs, nil

	case KindRAM:
		eng, err := open.Open(kind, cfg)
		if err != nil {
			return nil, space.Observation{}, fmt.Errorf("open ram engine: %w", err)
		}
		shape := append([]int(nil), eng.ObservationShape()...)
		return eng, space.Observation{Box: &space.Box{
			Low:   math.Inf(-1),
			High:  math.Inf(1),
			Shape: shape,
			DType: space.Float32,
		}}, nil

	case KindScreen:
		if !open.HasScreen() {
			return nil, space.Observation{}, fmt.Errorf("%w: engine was built without screen support", ErrEnvironmentUnavailable)
		}
		eng, err := open.Open(kind, cfg)
		if err != nil {
			return nil, space.Observation{}, fmt.Errorf("open screen engine: %w", err)
		}
		return eng, ScreenSpace(cfg.ScreenLen), nil
	}

	return nil, space.Observation{}, fmt.Errorf("%w: %v", ErrUnknownObservationType, kind)
}

// GridSpace is (width, height, channels) with channels = frames x toggles.
// Cells hold integer markers; -1 flags area outside the arena.
func GridSpace(g config.GridOptions) space.Observation {
	channels := g.NumFrames * g.Channels()
	return space.Observation{Box: &space.Box{
		Low:   -1,
		High:  math.MaxInt32,
		Shape: []int{g.GridSize, g.GridSize, channels},
		DType: space.Int32,
	}}
}

// ScreenSpace is four RGB frames of screenLen x screenLen pixels.
func ScreenSpace(screenLen int) space.Observation {
	return space.Observation{Box: &space.Box{
		Low:   0,
		High:  255,
		Shape: []int{4, screenLen, screenLen, 3},
		DType: space.Uint8,
	}}
}

// FullSpace documents the named entity arrays; it is never used to allocate.
func FullSpace() space.Observation {
	return space.Observation{Fields: []space.Field{
		{Name: "pellets", Shape: []int{-1, EntityCols}},
		{Name: "viruses", Shape: []int{-1, EntityCols}},
		{Name: "foods", Shape: []int{-1, EntityCols}},
		{Name: "agent", Shape: []int{-1, CellCols}},
		{Name: "others", Shape: []int{-1, -1, CellCols}},
	}}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
