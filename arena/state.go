// Package arena is a small in-process Agar.io engine.
//
// The world is a square arena of pellets, viruses, ejected food and player
// cells. Players are either learning agents, steered through actions, or
// built-in bots. World state is plain data and cheap to clone so tests can
// snapshot and compare it.
package arena

import "math"

// Point is a world coordinate or a velocity. (0,0) is the arena corner.
type Point struct {
	X float64
	Y float64
}

func (p Point) Add(q Point) Point     { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point     { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }
func (p Point) Len() float64          { return math.Hypot(p.X, p.Y) }
func (p Point) Dist(q Point) float64  { return p.Sub(q).Len() }

// Unit returns p scaled to length one, or the zero vector.
func (p Point) Unit() Point {
	l := p.Len()
	if l < 1e-9 {
		return Point{}
	}
	return p.Scale(1 / l)
}

// Food is ejected mass drifting to a stop.
type Food struct {
	Pos Point
	Vel Point
}

// Cell is one blob of a player.
type Cell struct {
	Pos  Point
	Vel  Point
	Mass float64
	// RecombineAt is the world tick after which the cell may merge with its
	// siblings.
	RecombineAt int
}

func (c Cell) Radius() float64 { return Radius(c.Mass) }

// Radius is the radius of a ball of the given mass.
func Radius(mass float64) float64 {
	return math.Sqrt(mass / math.Pi * MassAreaRatio)
}

type PlayerKind int

const (
	KindAgent PlayerKind = iota
	KindHungryBot
	KindShyBot
)

func (k PlayerKind) String() string {
	switch k {
	case KindAgent:
		return "agent"
	case KindHungryBot:
		return "hungry"
	case KindShyBot:
		return "shy"
	}
	return "unknown"
}

// Player owns zero or more cells. A player with no cells is dead.
type Player struct {
	ID     int
	Kind   PlayerKind
	Cells  []Cell
	Target Point
	// Command is applied once at the start of the next tick-group.
	Command int
}

func (p *Player) Dead() bool { return len(p.Cells) == 0 }

// Mass is the total mass over all cells.
func (p *Player) Mass() float64 {
	var m float64
	for _, c := range p.Cells {
		m += c.Mass
	}
	return m
}

// Center is the mass-weighted centroid of the player's cells.
func (p *Player) Center() Point {
	var sum Point
	var m float64
	for _, c := range p.Cells {
		sum = sum.Add(c.Pos.Scale(c.Mass))
		m += c.Mass
	}
	if m <= 0 {
		return Point{}
	}
	return sum.Scale(1 / m)
}

// largest returns the index of the heaviest cell, or -1.
func (p *Player) largest() int {
	best := -1
	for i, c := range p.Cells {
		if best < 0 || c.Mass > p.Cells[best].Mass {
			best = i
		}
	}
	return best
}

// State is the full world snapshot.
type State struct {
	Width   float64
	Height  float64
	Ticks   int
	Pellets []Point
	Viruses []Point
	Foods   []Food
	Players []Player
}

// Clone performs a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	out := &State{
		Width:  s.Width,
		Height: s.Height,
		Ticks:  s.Ticks,
	}

	if len(s.Pellets) > 0 {
		out.Pellets = make([]Point, len(s.Pellets))
		copy(out.Pellets, s.Pellets)
	}
	if len(s.Viruses) > 0 {
		out.Viruses = make([]Point, len(s.Viruses))
		copy(out.Viruses, s.Viruses)
	}
	if len(s.Foods) > 0 {
		out.Foods = make([]Food, len(s.Foods))
		copy(out.Foods, s.Foods)
	}

	if len(s.Players) > 0 {
		out.Players = make([]Player, len(s.Players))
		for i := range s.Players {
			out.Players[i] = s.Players[i]
			out.Players[i].Cells = nil
			if len(s.Players[i].Cells) > 0 {
				out.Players[i].Cells = make([]Cell, len(s.Players[i].Cells))
				copy(out.Players[i].Cells, s.Players[i].Cells)
			}
		}
	}

	return out
}

// InBounds reports whether p lies inside the arena.
func (s *State) InBounds(p Point) bool {
	return p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height
}

func (s *State) clamp(p Point) Point {
	return Point{
		X: math.Max(0, math.Min(s.Width, p.X)),
		Y: math.Max(0, math.Min(s.Height, p.Y)),
	}
}
