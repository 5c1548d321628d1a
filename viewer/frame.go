// Package viewer serves recorded episodes from parquet and streams live
// arena frames over websockets.
package viewer

import (
	"github.com/brensch/agarenv/arena"
	"github.com/brensch/agarenv/rollout"
)

type Circle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

type PlayerFrame struct {
	ID    int      `json:"id"`
	Kind  string   `json:"kind"`
	Mass  float64  `json:"mass"`
	Cells []Circle `json:"cells"`
}

// Frame is one rendered world snapshot.
type Frame struct {
	Worker    int     `json:"worker"`
	EpisodeID string  `json:"episode_id,omitempty"`
	Step      int     `json:"step"`
	Tick      int     `json:"tick"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`

	Pellets [][2]float64  `json:"pellets"`
	Viruses []Circle      `json:"viruses"`
	Foods   [][2]float64  `json:"foods"`
	Players []PlayerFrame `json:"players"`

	Rewards []float64 `json:"rewards,omitempty"`
	Dones   []bool    `json:"dones,omitempty"`
}

// NewFrame renders s. Dead players are kept with no cells so IDs stay stable.
func NewFrame(s *arena.State) Frame {
	f := Frame{
		Tick:    s.Ticks,
		Width:   s.Width,
		Height:  s.Height,
		Pellets: make([][2]float64, len(s.Pellets)),
		Viruses: make([]Circle, len(s.Viruses)),
		Foods:   make([][2]float64, len(s.Foods)),
		Players: make([]PlayerFrame, len(s.Players)),
	}
	for i, p := range s.Pellets {
		f.Pellets[i] = [2]float64{p.X, p.Y}
	}
	virusR := arena.Radius(arena.VirusMass)
	for i, v := range s.Viruses {
		f.Viruses[i] = Circle{X: v.X, Y: v.Y, R: virusR}
	}
	for i, food := range s.Foods {
		f.Foods[i] = [2]float64{food.Pos.X, food.Pos.Y}
	}
	for i := range s.Players {
		p := &s.Players[i]
		pf := PlayerFrame{
			ID:    p.ID,
			Kind:  p.Kind.String(),
			Mass:  p.Mass(),
			Cells: make([]Circle, len(p.Cells)),
		}
		for j, c := range p.Cells {
			pf.Cells[j] = Circle{X: c.Pos.X, Y: c.Pos.Y, R: c.Radius()}
		}
		f.Players[i] = pf
	}
	return f
}

// StepFrame renders the world behind a rollout step. It reports false when
// the env is not backed by the built-in arena.
func StepFrame(si rollout.StepInfo) (Frame, bool) {
	if si.Env == nil {
		return Frame{}, false
	}
	eng, ok := si.Env.Engine().(*arena.Engine)
	if !ok || eng.World() == nil {
		return Frame{}, false
	}
	f := NewFrame(eng.World().State)
	f.Worker = si.WorkerID
	f.EpisodeID = si.EpisodeID
	f.Step = si.Step
	f.Rewards = append([]float64(nil), si.Result.Rewards...)
	f.Dones = append([]bool(nil), si.Result.Dones...)
	return f, true
}
