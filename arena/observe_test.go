package arena

import (
	"testing"

	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/env"
)

func allChannels(size, frames int) config.GridOptions {
	return config.GridOptions{
		GridSize:       size,
		NumFrames:      frames,
		ObserveCells:   true,
		ObserveOthers:  true,
		ObserveViruses: true,
		ObservePellets: true,
	}
}

func TestFullTables_Order(t *testing.T) {
	s := &State{
		Width:   1000,
		Height:  1000,
		Pellets: []Point{{1, 2}, {3, 4}},
		Viruses: []Point{{5, 6}},
		Foods:   []Food{{Pos: Point{7, 8}, Vel: Point{1, 1}}},
		Players: []Player{
			{ID: 0, Cells: []Cell{{Pos: Point{10, 10}, Mass: 40}}},
			{ID: 1, Cells: []Cell{{Pos: Point{20, 20}, Vel: Point{1, -1}, Mass: 50}, {Pos: Point{21, 20}, Mass: 25}}},
			{ID: 2},
		},
	}

	tables := FullTables(s, 1)

	if len(tables) != 6 {
		t.Fatalf("tables=%d want=6", len(tables))
	}
	if tables[0].Rows != 2 || tables[0].Cols != env.EntityCols {
		t.Fatalf("pellets %dx%d want 2x%d", tables[0].Rows, tables[0].Cols, env.EntityCols)
	}
	if tables[2].At(0, 0) != 7 || tables[2].At(0, 1) != 8 {
		t.Fatalf("foods row=%v want [7 8]", tables[2].Row(0))
	}

	agent := tables[3]
	if agent.Rows != 2 || agent.Cols != env.CellCols {
		t.Fatalf("agent %dx%d want 2x%d", agent.Rows, agent.Cols, env.CellCols)
	}
	want := []float32{20, 20, 1, -1, 50}
	for j, v := range want {
		if agent.At(0, j) != v {
			t.Fatalf("agent row 0=%v want=%v", agent.Row(0), want)
		}
	}

	if tables[4].At(0, 4) != 40 {
		t.Fatalf("first other should be player 0, got %v", tables[4].Row(0))
	}
	if tables[5].Rows != 0 || !tables[5].Valid() {
		t.Fatalf("dead player table %dx%d want valid 0-row", tables[5].Rows, tables[5].Cols)
	}
}

func TestRasterCircle(t *testing.T) {
	if got := rasterCircle(0); len(got) != 1 {
		t.Fatalf("radius 0 covers %d cells want 1", len(got))
	}
	if got := rasterCircle(1); len(got) != 5 {
		t.Fatalf("radius 1 covers %d cells want 5", len(got))
	}
}

func TestDrawFrame_MarksEntities(t *testing.T) {
	g := allChannels(8, 1)
	s := &State{
		Width:   1000,
		Height:  1000,
		Pellets: []Point{{500, 500}},
		Players: []Player{
			{Cells: []Cell{{Pos: Point{500, 500}, Mass: 40}}},
			{Cells: []Cell{{Pos: Point{530, 500}, Mass: 40}}},
		},
	}
	shape := GridShape(g)
	data := make([]int32, shape[0]*shape[1]*shape[2])

	DrawFrame(data, g, s, 0, 0)

	plane := 64
	at := func(c, x, y int) int32 { return data[c*plane+x*8+y] }

	if at(0, 4, 4) != 1 {
		t.Fatalf("pellet channel at center=%d want 1", at(0, 4, 4))
	}
	if at(1, 4, 4) != 0 {
		t.Fatalf("virus channel at center=%d want 0", at(1, 4, 4))
	}
	if at(2, 4, 4) != 1 {
		t.Fatalf("own cell channel at center=%d want 1", at(2, 4, 4))
	}
	// view is 100 units over 8 cells, so +30 in x lands on x=6
	if at(3, 6, 4) != 1 {
		t.Fatalf("others channel at (6,4)=%d want 1", at(3, 6, 4))
	}
	if at(3, 4, 4) != 0 {
		t.Fatalf("others channel at center=%d want 0", at(3, 4, 4))
	}
}

func TestDrawFrame_OutOfBounds(t *testing.T) {
	g := allChannels(8, 2)
	s := &State{
		Width:   1000,
		Height:  1000,
		Players: []Player{{Cells: []Cell{{Pos: Point{10, 10}, Mass: 40}}}},
	}
	shape := GridShape(g)
	data := make([]int32, shape[0]*shape[1]*shape[2])

	DrawFrame(data, g, s, 0, 1)

	plane := 64
	for c := 4; c < 8; c++ {
		if got := data[c*plane]; got != -1 {
			t.Fatalf("channel %d corner=%d want -1", c, got)
		}
		if got := data[c*plane+7*8+7]; got == -1 {
			t.Fatalf("channel %d far corner is inside the arena", c)
		}
	}
	for i := 0; i < 4*plane; i++ {
		if data[i] != 0 {
			t.Fatalf("frame 0 was written at %d", i)
		}
	}
}

func TestDrawFrame_Toggles(t *testing.T) {
	g := config.GridOptions{GridSize: 4, NumFrames: 1, ObserveViruses: true}
	s := &State{
		Width:   1000,
		Height:  1000,
		Pellets: []Point{{500, 500}},
		Viruses: []Point{{500, 500}},
		Players: []Player{{Cells: []Cell{{Pos: Point{500, 500}, Mass: 40}}}},
	}
	data := make([]int32, 16)

	DrawFrame(data, g, s, 0, 0)

	if data[2*4+2] != 1 {
		t.Fatalf("only channel should hold the virus")
	}
}

func TestWriteRAM_Layout(t *testing.T) {
	s := &State{
		Width:   50,
		Height:  60,
		Ticks:   12,
		Pellets: []Point{{1, 2}},
		Players: []Player{
			{Cells: []Cell{{Pos: Point{5, 6}, Mass: 40}}},
			{Cells: []Cell{{Pos: Point{7, 8}, Vel: Point{1, 2}, Mass: 30}}},
		},
	}
	n := RAMLength(2, 3, 0)
	if want := 3 + 5*PlayerCellLimit*2 + 2*(3+RAMFoodLimit); n != want {
		t.Fatalf("len=%d want=%d", n, want)
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = 99
	}

	WriteRAM(data, s, 1, 3, 0)

	head := []float32{12, 50, 60, 30, 7, 8, 1, 2}
	for i, v := range head {
		if data[i] != v {
			t.Fatalf("data[%d]=%v want=%v", i, data[i], v)
		}
	}
	other := 3 + 5*PlayerCellLimit
	if data[other] != 40 || data[other+1] != 5 {
		t.Fatalf("other player slot=%v want mass 40 at x 5", data[other:other+3])
	}
	pellets := 3 + 5*PlayerCellLimit*2
	if data[pellets] != 1 || data[pellets+1] != 2 || data[pellets+2] != 0 {
		t.Fatalf("pellet slots=%v want [1 2 0 ...]", data[pellets:pellets+4])
	}
	if data[n-1] != 0 {
		t.Fatalf("unused slots should be cleared")
	}
}

func TestDrawFrame_JustOutsideViewIsSkipped(t *testing.T) {
	g := config.GridOptions{GridSize: 8, NumFrames: 1, ObservePellets: true}
	s := &State{
		Width:  1000,
		Height: 1000,
		// view is 100 units over 8 cells; x=445 maps to column -0.4
		Pellets: []Point{{445, 500}},
		Players: []Player{{Cells: []Cell{{Pos: Point{500, 500}, Mass: 40}}}},
	}
	data := make([]int32, 64)

	DrawFrame(data, g, s, 0, 0)

	for i, v := range data {
		if v != 0 {
			t.Fatalf("cell %d=%d, pellet outside the view was drawn", i, v)
		}
	}
}
