package arena

import (
	"math"

	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/env"
)

// FullTables lists every entity from player idx's perspective: pellets,
// viruses, foods, its own cells, then each other player's cells in player
// order. Dead players still get a (zero-row) table.
func FullTables(s *State, idx int) []env.Table {
	tables := make([]env.Table, 0, 4+len(s.Players)-1)
	tables = append(tables, pointTable(s.Pellets))
	tables = append(tables, pointTable(s.Viruses))

	foods := env.NewTable(len(s.Foods), env.EntityCols)
	for i, f := range s.Foods {
		row := foods.Row(i)
		row[0], row[1] = float32(f.Pos.X), float32(f.Pos.Y)
	}
	tables = append(tables, foods)

	tables = append(tables, cellTable(s.Players[idx].Cells))
	for i := range s.Players {
		if i == idx {
			continue
		}
		tables = append(tables, cellTable(s.Players[i].Cells))
	}
	return tables
}

func pointTable(pts []Point) env.Table {
	t := env.NewTable(len(pts), env.EntityCols)
	for i, p := range pts {
		row := t.Row(i)
		row[0], row[1] = float32(p.X), float32(p.Y)
	}
	return t
}

func cellTable(cells []Cell) env.Table {
	t := env.NewTable(len(cells), env.CellCols)
	for i, c := range cells {
		row := t.Row(i)
		row[0] = float32(c.Pos.X)
		row[1] = float32(c.Pos.Y)
		row[2] = float32(c.Vel.X)
		row[3] = float32(c.Vel.Y)
		row[4] = float32(c.Mass)
	}
	return t
}

// GridShape is the channel-major (C, W, H) shape of a grid observation.
func GridShape(g config.GridOptions) []int {
	return []int{g.NumFrames * g.Channels(), g.GridSize, g.GridSize}
}

// viewSize is how much of the world the grid covers around a player.
func viewSize(mass float64) float64 {
	return math.Max(100, math.Min(300, 2*mass))
}

// DrawFrame renders frame number frame of player idx into data, which holds
// a (C, W, H) grid. Every channel of the frame gets -1 outside the arena and
// 0 inside, then 1 wherever an entity of that channel's kind lies.
// Channel order within a frame: pellets, viruses, own cells, others.
func DrawFrame(data []int32, g config.GridOptions, s *State, idx, frame int) {
	perFrame := g.Channels()
	size := g.GridSize
	if perFrame == 0 || size == 0 {
		return
	}
	p := &s.Players[idx]
	if p.Dead() {
		return
	}

	center := p.Center()
	view := viewSize(p.Mass())
	half := float64(size) / 2
	plane := size * size
	base := frame * perFrame

	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			world := Point{
				X: center.X + (float64(x)-half)*view/float64(size),
				Y: center.Y + (float64(y)-half)*view/float64(size),
			}
			var v int32
			if !s.InBounds(world) {
				v = -1
			}
			for c := 0; c < perFrame; c++ {
				data[(base+c)*plane+x*size+y] = v
			}
		}
	}

	mark := func(channel int, pos Point, radius float64) {
		gx := int(math.Floor(float64(size)*(pos.X-center.X)/view + half))
		gy := int(math.Floor(float64(size)*(pos.Y-center.Y)/view + half))
		r := float64(size) * radius / view
		for _, d := range rasterCircle(r) {
			x, y := gx+d[0], gy+d[1]
			if x < 0 || x >= size || y < 0 || y >= size {
				continue
			}
			data[channel*plane+x*size+y] = 1
		}
	}

	channel := base
	if g.ObservePellets {
		for _, pt := range s.Pellets {
			mark(channel, pt, Radius(PelletMass))
		}
		channel++
	}
	if g.ObserveViruses {
		for _, v := range s.Viruses {
			mark(channel, v, Radius(VirusMass))
		}
		channel++
	}
	if g.ObserveCells {
		for _, c := range p.Cells {
			mark(channel, c.Pos, c.Radius())
		}
		channel++
	}
	if g.ObserveOthers {
		for i := range s.Players {
			if i == idx {
				continue
			}
			for _, c := range s.Players[i].Cells {
				mark(channel, c.Pos, c.Radius())
			}
		}
	}
}

// rasterCircle lists the integer offsets covered by a disc of radius r. The
// center is always included.
func rasterCircle(r float64) [][2]int {
	ri := int(math.Ceil(r))
	out := [][2]int{{0, 0}}
	for dx := -ri; dx <= ri; dx++ {
		for dy := -ri; dy <= ri; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if float64(dx*dx+dy*dy) <= r*r {
				out = append(out, [2]int{dx, dy})
			}
		}
	}
	return out
}

// RAMLength is the fixed length of a ram observation.
func RAMLength(numPlayers, numPellets, numViruses int) int {
	return 3 + 5*PlayerCellLimit*numPlayers + 2*(numPellets+numViruses+RAMFoodLimit)
}

// WriteRAM fills data (of length RAMLength) from player idx's perspective:
// ticks, arena width and height; then PlayerCellLimit cell slots of
// (mass, x, y, vx, vy) for the player and each other player; then pellet,
// virus and food slots of (x, y). Empty slots are zero.
func WriteRAM(data []float32, s *State, idx, numPellets, numViruses int) {
	clear(data)
	data[0] = float32(s.Ticks)
	data[1] = float32(s.Width)
	data[2] = float32(s.Height)
	at := 3

	writePlayer := func(p *Player) {
		for i := 0; i < PlayerCellLimit && i < len(p.Cells); i++ {
			c := p.Cells[i]
			o := at + i*5
			data[o+0] = float32(c.Mass)
			data[o+1] = float32(c.Pos.X)
			data[o+2] = float32(c.Pos.Y)
			data[o+3] = float32(c.Vel.X)
			data[o+4] = float32(c.Vel.Y)
		}
		at += 5 * PlayerCellLimit
	}
	writePlayer(&s.Players[idx])
	for i := range s.Players {
		if i != idx {
			writePlayer(&s.Players[i])
		}
	}

	writePoints := func(pts []Point, slots int) {
		for i := 0; i < slots && i < len(pts); i++ {
			data[at+2*i] = float32(pts[i].X)
			data[at+2*i+1] = float32(pts[i].Y)
		}
		at += 2 * slots
	}
	writePoints(s.Pellets, numPellets)
	writePoints(s.Viruses, numViruses)

	foods := make([]Point, len(s.Foods))
	for i, f := range s.Foods {
		foods[i] = f.Pos
	}
	writePoints(foods, RAMFoodLimit)
}
