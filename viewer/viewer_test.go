package viewer

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brensch/agarenv/arena"
	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/env"
	"github.com/brensch/agarenv/policy"
	"github.com/brensch/agarenv/rollout"
	"github.com/brensch/agarenv/store"
	"github.com/gorilla/websocket"
)

func TestNewFrame(t *testing.T) {
	s := &arena.State{
		Width:   100,
		Height:  80,
		Ticks:   12,
		Pellets: []arena.Point{{X: 1, Y: 2}},
		Viruses: []arena.Point{{X: 50, Y: 50}},
		Foods:   []arena.Food{{Pos: arena.Point{X: 3, Y: 4}}},
		Players: []arena.Player{
			{ID: 0, Kind: arena.KindAgent, Cells: []arena.Cell{{Pos: arena.Point{X: 10, Y: 10}, Mass: 40}}},
			{ID: 1, Kind: arena.KindShyBot},
		},
	}
	f := NewFrame(s)
	if f.Tick != 12 || f.Width != 100 || f.Height != 80 {
		t.Fatalf("frame header=%+v", f)
	}
	if len(f.Pellets) != 1 || f.Pellets[0] != [2]float64{1, 2} {
		t.Fatalf("pellets=%v", f.Pellets)
	}
	if len(f.Viruses) != 1 || f.Viruses[0].R != arena.Radius(arena.VirusMass) {
		t.Fatalf("viruses=%v", f.Viruses)
	}
	if len(f.Foods) != 1 || f.Foods[0] != [2]float64{3, 4} {
		t.Fatalf("foods=%v", f.Foods)
	}
	if len(f.Players) != 2 {
		t.Fatalf("players=%d want 2", len(f.Players))
	}
	p := f.Players[0]
	if p.Kind != "agent" || p.Mass != 40 || len(p.Cells) != 1 || p.Cells[0].R != arena.Radius(40) {
		t.Fatalf("player 0=%+v", p)
	}
	if f.Players[1].Kind != "shy" || len(f.Players[1].Cells) != 0 {
		t.Fatalf("dead player=%+v", f.Players[1])
	}
}

func TestStepFrame_FromRollout(t *testing.T) {
	cfg, err := config.Resolve("trivial", config.Overrides{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	e, err := env.New(env.KindFull, cfg, arena.Opener{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer e.Close()

	var frames []Frame
	_, err = rollout.PlayEpisode(context.Background(), 2, e, rollout.EpisodeOptions{
		Policy:   policy.NewRandom(1),
		MaxSteps: 3,
		Observer: func(si rollout.StepInfo) {
			if f, ok := StepFrame(si); ok {
				frames = append(frames, f)
			}
		},
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames=%d want 3", len(frames))
	}
	for i, f := range frames {
		if f.Worker != 2 || f.Step != i || f.EpisodeID == "" {
			t.Fatalf("frame %d=%+v", i, f)
		}
		if f.Tick != (i+1)*cfg.TicksPerStep {
			t.Fatalf("frame %d tick=%d want %d", i, f.Tick, (i+1)*cfg.TicksPerStep)
		}
		if len(f.Players) != 1 || len(f.Rewards) != 1 || len(f.Dones) != 1 {
			t.Fatalf("frame %d players=%d rewards=%d", i, len(f.Players), len(f.Rewards))
		}
	}

	if _, ok := StepFrame(rollout.StepInfo{}); ok {
		t.Fatalf("frame without env should fail")
	}
}

func TestHub_RegisterAndFilter(t *testing.T) {
	hub := NewHub()
	all := &Client{hub: hub, send: make(chan []byte, 4), worker: AllWorkers}
	one := &Client{hub: hub, send: make(chan []byte, 4), worker: 1}

	hub.registerClient(all)
	hub.registerClient(one)
	if !hub.Watching() {
		t.Fatalf("hub should be watching")
	}

	hub.broadcastMessage(message{worker: 0, data: []byte("a")})
	hub.broadcastMessage(message{worker: 1, data: []byte("b")})
	if len(all.send) != 2 || len(one.send) != 1 {
		t.Fatalf("all=%d one=%d want 2,1", len(all.send), len(one.send))
	}
	if got := string(<-one.send); got != "b" {
		t.Fatalf("one got %q", got)
	}

	hub.unregisterClient(all)
	hub.unregisterClient(all)
	for range all.send {
	}
	hub.unregisterClient(one)
	if hub.Watching() {
		t.Fatalf("hub still watching")
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub := NewHub()
	c := &Client{hub: hub, send: make(chan []byte, 1), worker: AllWorkers}
	hub.registerClient(c)
	hub.broadcastMessage(message{data: []byte("1")})
	hub.broadcastMessage(message{data: []byte("2")})
	if len(hub.clients) != 0 {
		t.Fatalf("slow client still registered")
	}
}

func TestHub_PublishWithoutRunDrops(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast)+5; i++ {
		hub.Publish(Frame{Step: i})
	}
	if hub.Dropped() != 5 {
		t.Fatalf("dropped=%d want 5", hub.Dropped())
	}
}

func TestHub_WebsocketStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?worker=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !hub.Watching() {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(Frame{Worker: 0, Step: 3})
	hub.Publish(Frame{Worker: 1, Step: 7})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Worker != 1 || f.Step != 7 {
		t.Fatalf("frame=%+v want worker 1 step 7", f)
	}
}

func TestServeWS_BadWorker(t *testing.T) {
	hub := NewHub()
	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws?worker=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d want 400", rec.Code)
	}
}

func writeEpisode(t *testing.T, dir, id string, steps int, reward float32) {
	t.Helper()
	rows := make([]store.TransitionRow, steps)
	for i := range rows {
		rows[i] = store.TransitionRow{
			EpisodeID:  id,
			Step:       int32(i),
			Difficulty: "trivial",
			ObsType:    "full",
			Policy:     "random",
			Features:   []float32{1, 2},
			Reward:     reward,
			Done:       i == steps-1,
			Mass:       40,
		}
	}
	if _, err := store.WriteBatchParquetAtomic(dir, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func getJSON(t *testing.T, mux *http.ServeMux, path string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code == http.StatusOK && v != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestServer_EmptyDir(t *testing.T) {
	s := NewServer([]string{t.TempDir()}, nil)
	defer s.Close()
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var resp EpisodesResponse
	if code := getJSON(t, mux, "/api/episodes", &resp); code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	if resp.Total != 0 || len(resp.Episodes) != 0 {
		t.Fatalf("resp=%+v want empty", resp)
	}
	if code := getJSON(t, mux, "/api/episodes/x/steps", nil); code != http.StatusNotFound {
		t.Fatalf("steps code=%d want 404", code)
	}
}

func TestServer_EpisodesAndSteps(t *testing.T) {
	dir := t.TempDir()
	writeEpisode(t, dir, "low", 4, 1)
	writeEpisode(t, dir, "high", 2, 5)

	s := NewServer([]string{dir}, NewHub())
	defer s.Close()
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var resp EpisodesResponse
	if code := getJSON(t, mux, "/api/episodes", &resp); code != http.StatusOK {
		t.Fatalf("code=%d", code)
	}
	if resp.Total != 2 || len(resp.Episodes) != 2 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Episodes[0].EpisodeID != "high" || resp.Episodes[0].TotalReward != 10 {
		t.Fatalf("first=%+v want high with reward 10", resp.Episodes[0])
	}

	resp = EpisodesResponse{}
	getJSON(t, mux, "/api/episodes?sort=steps&dir=asc&limit=1", &resp)
	if len(resp.Episodes) != 1 || resp.Episodes[0].EpisodeID != "high" || resp.Total != 2 {
		t.Fatalf("paged=%+v", resp)
	}

	var steps []StepRecord
	if code := getJSON(t, mux, "/api/episodes/low/steps", &steps); code != http.StatusOK {
		t.Fatalf("steps code=%d", code)
	}
	if len(steps) != 4 || steps[3].Step != 3 || !steps[3].Done || steps[0].Done {
		t.Fatalf("steps=%+v", steps)
	}
	if code := getJSON(t, mux, "/api/episodes/missing/steps", nil); code != http.StatusNotFound {
		t.Fatalf("missing code=%d want 404", code)
	}
	if code := getJSON(t, mux, "/api/episodes/low", nil); code != http.StatusNotFound {
		t.Fatalf("bad path code=%d want 404", code)
	}
}

func TestPaginateEpisodes(t *testing.T) {
	eps := []store.EpisodeSummary{
		{EpisodeID: "b", Steps: 3, TotalReward: 1},
		{EpisodeID: "a", Steps: 1, TotalReward: 2},
		{EpisodeID: "c", Steps: 2, TotalReward: 2},
	}
	got := paginateEpisodes(eps, 10, 0, "id", "asc")
	if got[0].EpisodeID != "a" || got[2].EpisodeID != "c" {
		t.Fatalf("by id=%v", got)
	}
	got = paginateEpisodes(eps, 10, 0, "", "")
	if got[0].EpisodeID != "a" || got[1].EpisodeID != "c" || got[2].EpisodeID != "b" {
		t.Fatalf("default order=%v", got)
	}
	if got := paginateEpisodes(eps, 10, 5, "steps", "asc"); len(got) != 0 {
		t.Fatalf("offset past end=%v", got)
	}
	if eps[0].EpisodeID != "b" {
		t.Fatalf("input reordered")
	}
	got = paginateEpisodes(eps, math.MaxInt, 1, "id", "asc")
	if len(got) != 2 || got[0].EpisodeID != "b" {
		t.Fatalf("huge limit=%v want [b c]", got)
	}
}

func TestDBCache_RefreshWaitsForQueries(t *testing.T) {
	dir := t.TempDir()
	writeEpisode(t, dir, "a", 3, 1)

	c := NewDBCache([]string{dir}, time.Hour)
	defer c.Close()

	stop := make(chan struct{})
	var refreshes sync.WaitGroup
	refreshes.Add(1)
	go func() {
		defer refreshes.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := c.Refresh(); err != nil {
				t.Errorf("refresh: %v", err)
				return
			}
		}
	}()

	var queries sync.WaitGroup
	for i := 0; i < 4; i++ {
		queries.Add(1)
		go func() {
			defer queries.Done()
			for j := 0; j < 20; j++ {
				err := c.Query(func(db *sql.DB) error {
					var n int
					return db.QueryRowContext(context.Background(), "SELECT count(*) FROM transitions").Scan(&n)
				})
				if err != nil {
					t.Errorf("query: %v", err)
					return
				}
			}
		}()
	}
	queries.Wait()
	close(stop)
	refreshes.Wait()
}

func TestDBCache_QueryWithoutData(t *testing.T) {
	c := NewDBCache([]string{t.TempDir()}, time.Hour)
	defer c.Close()
	err := c.Query(func(*sql.DB) error { return nil })
	if err != ErrNoData {
		t.Fatalf("err=%v want ErrNoData", err)
	}
}
