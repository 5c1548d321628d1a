package arena

import (
	"math"
	"math/rand"
)

// Action commands, matching env.Command values.
const (
	CommandNoop  = 0
	CommandSplit = 1
	CommandFeed  = 2
)

// World advances a State under the arena rules.
type World struct {
	State    *State
	Settings Settings
	rng      *rand.Rand
	nextID   int
}

// NewWorld creates an empty world seeded with seed. Call Populate to fill it.
func NewWorld(settings Settings, seed int64) *World {
	return &World{
		State:    &State{Width: settings.Width, Height: settings.Height},
		Settings: settings,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Reseed replaces the world's random source.
func (w *World) Reseed(seed int64) {
	w.rng = rand.New(rand.NewSource(seed))
}

// Populate clears the world and spawns pellets, viruses, agents and bots.
// Agents come first so agent i is Players[i].
func (w *World) Populate(numAgents, numBots int) {
	w.State = &State{Width: w.Settings.Width, Height: w.Settings.Height}
	w.nextID = 0

	w.topUpPellets()
	w.topUpViruses()

	for i := 0; i < numAgents; i++ {
		w.AddPlayer(KindAgent)
	}
	for i := 0; i < numBots; i++ {
		kind := KindHungryBot
		if i%2 == 1 {
			kind = KindShyBot
		}
		w.AddPlayer(kind)
	}
}

// AddPlayer spawns a new single-cell player and returns its index.
func (w *World) AddPlayer(kind PlayerKind) int {
	p := Player{ID: w.nextID, Kind: kind}
	w.nextID++
	w.spawn(&p)
	w.State.Players = append(w.State.Players, p)
	return len(w.State.Players) - 1
}

func (w *World) spawn(p *Player) {
	pos := w.randomPoint()
	p.Cells = []Cell{{Pos: pos, Mass: StartMass}}
	p.Target = pos
	p.Command = CommandNoop
}

func (w *World) randomPoint() Point {
	return Point{X: w.rng.Float64() * w.State.Width, Y: w.rng.Float64() * w.State.Height}
}

// SetAction steers player idx: the target is an offset from its center.
func (w *World) SetAction(idx int, dx, dy float64, command int) {
	p := &w.State.Players[idx]
	if p.Dead() {
		return
	}
	p.Target = p.Center().Add(Point{dx * ActionScale, dy * ActionScale})
	p.Command = command
}

// Tick advances the world by dt seconds.
func (w *World) Tick(dt float64) {
	s := w.State
	s.Ticks++

	for i := range s.Players {
		p := &s.Players[i]
		if p.Kind != KindAgent {
			if p.Dead() {
				w.spawn(p)
			}
			w.steerBot(i)
		}
		if p.Dead() {
			continue
		}

		switch p.Command {
		case CommandSplit:
			w.split(p)
		case CommandFeed:
			w.feed(p)
		}
		p.Command = CommandNoop

		w.move(p, dt)
	}

	w.moveFoods(dt)
	w.eatPellets()
	w.eatFoods()
	w.hitViruses()
	w.eatCells()
	w.recombine()

	if w.Settings.PelletRegen {
		w.topUpPellets()
	}
	w.topUpViruses()
}

// speed falls off with the square root of mass.
func speed(mass float64) float64 {
	if mass <= CellMinMass {
		return CellMaxSpeed
	}
	return CellMaxSpeed / math.Sqrt(mass/CellMinMass)
}

func (w *World) move(p *Player, dt float64) {
	for i := range p.Cells {
		c := &p.Cells[i]
		dir := p.Target.Sub(c.Pos)
		step := speed(c.Mass) * dt
		if d := dir.Len(); d < step {
			step = d
		}
		c.Pos = c.Pos.Add(dir.Unit().Scale(step)).Add(c.Vel.Scale(dt))
		c.Pos = w.State.clamp(c.Pos)
		c.Vel = decelerate(c.Vel, SplitDecel*dt)
	}
}

func decelerate(v Point, by float64) Point {
	l := v.Len()
	if l <= by {
		return Point{}
	}
	return v.Scale((l - by) / l)
}

func (w *World) split(p *Player) {
	n := len(p.Cells)
	for i := 0; i < n && len(p.Cells) < PlayerCellLimit; i++ {
		c := &p.Cells[i]
		if c.Mass < SplitMinimum {
			continue
		}
		c.Mass /= 2
		c.RecombineAt = w.State.Ticks + RecombineTicks
		dir := p.Target.Sub(c.Pos).Unit()
		if dir == (Point{}) {
			dir = Point{X: 1}
		}
		p.Cells = append(p.Cells, Cell{
			Pos:         c.Pos,
			Vel:         dir.Scale(SplitSpeed),
			Mass:        c.Mass,
			RecombineAt: c.RecombineAt,
		})
	}
}

func (w *World) feed(p *Player) {
	for i := range p.Cells {
		c := &p.Cells[i]
		if c.Mass < FeedMinimum {
			continue
		}
		c.Mass -= FoodMass
		dir := p.Target.Sub(c.Pos).Unit()
		if dir == (Point{}) {
			dir = Point{X: 1}
		}
		w.State.Foods = append(w.State.Foods, Food{
			Pos: w.State.clamp(c.Pos.Add(dir.Scale(c.Radius() + Radius(FoodMass)))),
			Vel: dir.Scale(FoodSpeed),
		})
	}
}

func (w *World) moveFoods(dt float64) {
	for i := range w.State.Foods {
		f := &w.State.Foods[i]
		f.Pos = w.State.clamp(f.Pos.Add(f.Vel.Scale(dt)))
		f.Vel = decelerate(f.Vel, FoodDecel*dt)
	}
}

// eatPellets lets any cell swallow pellets whose center it covers.
func (w *World) eatPellets() {
	s := w.State
	kept := s.Pellets[:0]
	for _, pellet := range s.Pellets {
		if c := w.coveringCell(pellet, PelletMass); c != nil {
			c.Mass += PelletMass
			continue
		}
		kept = append(kept, pellet)
	}
	s.Pellets = kept
}

func (w *World) eatFoods() {
	s := w.State
	kept := s.Foods[:0]
	for _, f := range s.Foods {
		if c := w.coveringCell(f.Pos, FoodMass); c != nil {
			c.Mass += FoodMass
			continue
		}
		kept = append(kept, f)
	}
	s.Foods = kept
}

// coveringCell returns the first cell (in player order) that covers pos and
// is heavy enough to eat mass.
func (w *World) coveringCell(pos Point, mass float64) *Cell {
	for i := range w.State.Players {
		p := &w.State.Players[i]
		for j := range p.Cells {
			c := &p.Cells[j]
			if c.Mass > mass && c.Pos.Dist(pos) < c.Radius() {
				return c
			}
		}
	}
	return nil
}

// hitViruses pops any cell large enough to swallow a virus.
func (w *World) hitViruses() {
	s := w.State
	kept := s.Viruses[:0]
	for _, v := range s.Viruses {
		popped := false
		for i := range s.Players {
			p := &s.Players[i]
			for j := range p.Cells {
				c := p.Cells[j]
				if c.Mass > VirusMass*EatMargin && c.Pos.Dist(v) < c.Radius() {
					w.pop(p, j)
					popped = true
					break
				}
			}
			if popped {
				break
			}
		}
		if !popped {
			kept = append(kept, v)
		}
	}
	s.Viruses = kept
}

// pop absorbs a virus into cell j and shatters it radially.
func (w *World) pop(p *Player, j int) {
	c := p.Cells[j]
	mass := c.Mass + VirusMass

	pieces := int(mass / PopPieceMass)
	if pieces > PopMaxPieces {
		pieces = PopMaxPieces
	}
	if free := PlayerCellLimit - len(p.Cells) + 1; pieces > free {
		pieces = free
	}
	if pieces < 2 {
		p.Cells[j].Mass = mass
		return
	}

	recombine := w.State.Ticks + RecombineTicks
	each := mass / float64(pieces)
	p.Cells[j] = Cell{Pos: c.Pos, Mass: each, RecombineAt: recombine}
	for k := 1; k < pieces; k++ {
		angle := 2 * math.Pi * float64(k) / float64(pieces)
		p.Cells = append(p.Cells, Cell{
			Pos:         c.Pos,
			Vel:         Point{math.Cos(angle), math.Sin(angle)}.Scale(SplitSpeed),
			Mass:        each,
			RecombineAt: recombine,
		})
	}
}

// eatCells resolves cell-on-cell eating between different players.
func (w *World) eatCells() {
	s := w.State
	for a := range s.Players {
		pa := &s.Players[a]
		for i := range pa.Cells {
			big := &pa.Cells[i]
			if big.Mass == 0 {
				continue
			}
			for b := range s.Players {
				if a == b {
					continue
				}
				pb := &s.Players[b]
				for j := range pb.Cells {
					small := &pb.Cells[j]
					if small.Mass == 0 || big.Mass <= small.Mass*EatMargin {
						continue
					}
					if big.Pos.Dist(small.Pos) < big.Radius() {
						big.Mass += small.Mass
						small.Mass = 0
					}
				}
			}
		}
	}
	for i := range s.Players {
		removeEmptyCells(&s.Players[i])
	}
}

// recombine merges a player's overlapping cells once their timers expire.
func (w *World) recombine() {
	ticks := w.State.Ticks
	for i := range w.State.Players {
		p := &w.State.Players[i]
		for a := range p.Cells {
			ca := &p.Cells[a]
			if ca.Mass == 0 || ca.RecombineAt > ticks {
				continue
			}
			for b := a + 1; b < len(p.Cells); b++ {
				cb := &p.Cells[b]
				if cb.Mass == 0 || cb.RecombineAt > ticks {
					continue
				}
				if ca.Pos.Dist(cb.Pos) < math.Max(ca.Radius(), cb.Radius()) {
					ca.Pos = ca.Pos.Scale(ca.Mass).Add(cb.Pos.Scale(cb.Mass)).Scale(1 / (ca.Mass + cb.Mass))
					ca.Mass += cb.Mass
					cb.Mass = 0
				}
			}
		}
		removeEmptyCells(p)
	}
}

func removeEmptyCells(p *Player) {
	kept := p.Cells[:0]
	for _, c := range p.Cells {
		if c.Mass > 0 {
			kept = append(kept, c)
		}
	}
	p.Cells = kept
}

func (w *World) topUpPellets() {
	for len(w.State.Pellets) < w.Settings.NumPellets {
		w.State.Pellets = append(w.State.Pellets, w.randomPoint())
	}
}

func (w *World) topUpViruses() {
	for len(w.State.Viruses) < w.Settings.NumViruses {
		w.State.Viruses = append(w.State.Viruses, w.randomPoint())
	}
}
