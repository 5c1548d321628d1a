// Package features flattens a full observation into a fixed-length vector
// for models with a fixed input size.
//
// The vector is laid out as contiguous segments: foods, viruses, pellets,
// the agent's own cells, then one block per tracked other player. Each
// segment is filled nearest-first (or heaviest-last for cell blocks) and
// padded with trailing zeros up to its capacity.
package features

import (
	"math"
	"sort"
	"sync"

	"github.com/brensch/agarenv/env"
)

// Capacities sets how many rows each segment holds. Negative values count
// as zero.
type Capacities struct {
	Foods         int
	Viruses       int
	Pellets       int
	OwnCells      int
	Others        int
	CellsPerOther int
}

// DefaultCapacities is sized for the normal preset.
func DefaultCapacities() Capacities {
	return Capacities{
		Foods:         10,
		Viruses:       5,
		Pellets:       20,
		OwnCells:      16,
		Others:        5,
		CellsPerOther: 4,
	}
}

// Segment locates one block of the output vector.
type Segment struct {
	Name   string
	Offset int
	Rows   int
	Cols   int
}

// Len is the number of values in the segment.
func (s Segment) Len() int { return s.Rows * s.Cols }

// Extractor turns *env.Full observations into vectors of Len() values.
// It remembers the last reference position it saw, so use one Extractor
// per agent and do not share it between goroutines.
type Extractor struct {
	caps     Capacities
	segments []Segment
	length   int

	last Point
	seen bool
}

// Point is a reference position in world units.
type Point struct{ X, Y float64 }

func (p Point) dist(x, y float64) float64 { return math.Hypot(x-p.X, y-p.Y) }

func New(c Capacities) *Extractor {
	c.Foods = max(c.Foods, 0)
	c.Viruses = max(c.Viruses, 0)
	c.Pellets = max(c.Pellets, 0)
	c.OwnCells = max(c.OwnCells, 0)
	c.Others = max(c.Others, 0)
	c.CellsPerOther = max(c.CellsPerOther, 0)

	x := &Extractor{caps: c}
	add := func(name string, rows, cols int) {
		x.segments = append(x.segments, Segment{Name: name, Offset: x.length, Rows: rows, Cols: cols})
		x.length += rows * cols
	}
	add("foods", c.Foods, env.EntityCols)
	add("viruses", c.Viruses, env.EntityCols)
	add("pellets", c.Pellets, env.EntityCols)
	add("agent", c.OwnCells, env.CellCols)
	for i := 0; i < c.Others; i++ {
		add("other", c.CellsPerOther, env.CellCols)
	}
	return x
}

// Len is 2(foods+viruses+pellets) + 5*own + 5*others*cellsPerOther.
func (x *Extractor) Len() int { return x.length }

func (x *Extractor) Capacities() Capacities { return x.caps }

// Segments returns the output layout in order.
func (x *Extractor) Segments() []Segment {
	out := make([]Segment, len(x.segments))
	copy(out, x.segments)
	return out
}

// ResetMemory forgets the last reference position. Call it between
// episodes.
func (x *Extractor) ResetMemory() {
	x.last = Point{}
	x.seen = false
}

// Extract allocates a new vector for obs.
func (x *Extractor) Extract(obs *env.Full) []float32 {
	dst := make([]float32, x.length)
	x.ExtractInto(dst, obs)
	return dst
}

// ExtractInto writes the vector for obs into dst[:Len()]. A nil obs writes
// all zeros.
func (x *Extractor) ExtractInto(dst []float32, obs *env.Full) {
	dst = dst[:x.length]
	clear(dst)
	if obs == nil {
		return
	}

	ref := x.reference(obs.Agent)

	seg := x.segments
	writeNearest(dst[seg[0].Offset:], obs.Foods, seg[0].Rows, ref)
	writeNearest(dst[seg[1].Offset:], obs.Viruses, seg[1].Rows, ref)
	writeNearest(dst[seg[2].Offset:], obs.Pellets, seg[2].Rows, ref)
	writeHeaviest(dst[seg[3].Offset:], obs.Agent, seg[3].Rows)

	if x.caps.Others == 0 {
		return
	}
	ranked := rankPlayers(obs.Others, ref)
	for i := 0; i < len(ranked) && i < x.caps.Others; i++ {
		s := seg[4+i]
		writeHeaviest(dst[s.Offset:], obs.Others[ranked[i]], s.Rows)
	}
	putOrder(ranked)
}

// reference is the agent's centroid. With no cells it falls back to the
// last centroid seen, or the origin.
func (x *Extractor) reference(agent env.Table) Point {
	if p, ok := Centroid(agent); ok {
		x.last = p
		x.seen = true
		return p
	}
	if x.seen {
		return x.last
	}
	return Point{}
}

// Centroid is the mass-weighted mean position of a cell table. It reports
// false when the table has no mass.
func Centroid(cells env.Table) (Point, bool) {
	var sx, sy, m float64
	for i := 0; i < cells.Rows; i++ {
		mass := float64(cells.At(i, 4))
		sx += mass * float64(cells.At(i, 0))
		sy += mass * float64(cells.At(i, 1))
		m += mass
	}
	if m <= 0 {
		return Point{}, false
	}
	return Point{X: sx / m, Y: sy / m}, true
}

var orderPool = sync.Pool{
	New: func() interface{} {
		b := make([]int, 0, 256)
		return &b
	},
}

func getOrder(n int) []int {
	p := orderPool.Get().(*[]int)
	order := (*p)[:0]
	for i := 0; i < n; i++ {
		order = append(order, i)
	}
	return order
}

func putOrder(order []int) {
	order = order[:0]
	orderPool.Put(&order)
}

// writeNearest copies up to n rows of t, closest to ref first. Equal
// distances keep table order.
func writeNearest(dst []float32, t env.Table, n int, ref Point) {
	if n == 0 || t.Rows == 0 {
		return
	}
	order := getOrder(t.Rows)
	dist := make([]float64, t.Rows)
	for i := range dist {
		dist[i] = ref.dist(float64(t.At(i, 0)), float64(t.At(i, 1)))
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

	for i := 0; i < n && i < len(order); i++ {
		copy(dst[i*t.Cols:], t.Row(order[i]))
	}
	putOrder(order)
}

// writeHeaviest copies the n heaviest cells of t. Cells are sorted by
// ascending mass and the tail is taken, so the heaviest cell comes last.
func writeHeaviest(dst []float32, t env.Table, n int) {
	if n == 0 || t.Rows == 0 {
		return
	}
	order := getOrder(t.Rows)
	sort.SliceStable(order, func(a, b int) bool { return t.At(order[a], 4) < t.At(order[b], 4) })

	tail := order
	if len(tail) > n {
		tail = tail[len(tail)-n:]
	}
	for i, row := range tail {
		copy(dst[i*t.Cols:], t.Row(row))
	}
	putOrder(order)
}

// rankPlayers orders other players by centroid distance from ref. Players
// without cells sort last. The caller returns the slice with putOrder.
func rankPlayers(others []env.Table, ref Point) []int {
	order := getOrder(len(others))
	dist := make([]float64, len(others))
	for i, t := range others {
		if c, ok := Centroid(t); ok {
			dist[i] = ref.dist(c.X, c.Y)
		} else {
			dist[i] = math.Inf(1)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })
	return order
}
