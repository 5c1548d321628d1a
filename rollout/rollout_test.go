package rollout

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brensch/agarenv/arena"
	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/env"
	"github.com/brensch/agarenv/features"
	"github.com/brensch/agarenv/policy"
	"github.com/brensch/agarenv/store"
)

func trivialConfig(t *testing.T, agents int) config.Config {
	t.Helper()
	cfg, err := config.Resolve("trivial", config.Overrides{NumAgents: config.Int(agents)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return cfg
}

func newFullEnv(t *testing.T, agents int) *env.Env {
	t.Helper()
	e, err := env.New(env.KindFull, trivialConfig(t, agents), arena.Opener{})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPlayEpisode_SingleAgentRows(t *testing.T) {
	e := newFullEnv(t, 1)
	var observed atomic.Int32
	var steps int
	ep, err := PlayEpisode(context.Background(), 3, e, EpisodeOptions{
		Policy:     policy.NewRandom(7),
		PolicyName: "random",
		MaxSteps:   6,
		Seed:       11,
		Observer: func(si StepInfo) {
			if si.WorkerID != 3 || si.Env != e {
				t.Errorf("observer got worker %d", si.WorkerID)
			}
			observed.Add(1)
		},
		OnStep: func() { steps++ },
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if ep.ID == "" || ep.Steps != 6 || ep.Completed {
		t.Fatalf("episode=%+v want 6 truncated steps", ep)
	}
	if observed.Load() != 6 || steps != 6 {
		t.Fatalf("observer=%d onStep=%d want 6", observed.Load(), steps)
	}
	if len(ep.Rows) != 6 {
		t.Fatalf("rows=%d want 6", len(ep.Rows))
	}

	wantLen := features.New(features.DefaultCapacities()).Len()
	var sum float64
	for i, row := range ep.Rows {
		if row.Step != int32(i) || row.Agent != 0 || row.EpisodeID != ep.ID {
			t.Fatalf("row %d=%+v", i, row)
		}
		if row.Difficulty != "trivial" || row.ObsType != "full" || row.Policy != "random" {
			t.Fatalf("row %d labels=%q %q %q", i, row.Difficulty, row.ObsType, row.Policy)
		}
		if len(row.Features) != wantLen {
			t.Fatalf("row %d features=%d want %d", i, len(row.Features), wantLen)
		}
		if row.Mass <= 0 || row.Done {
			t.Fatalf("row %d mass=%v done=%v", i, row.Mass, row.Done)
		}
		sum += float64(row.Reward)
	}
	if sum != ep.TotalReward() {
		t.Fatalf("row rewards=%v total=%v", sum, ep.TotalReward())
	}
}

func TestPlayEpisode_SameSeedSameRows(t *testing.T) {
	play := func() Episode {
		e := newFullEnv(t, 2)
		ep, err := PlayEpisode(context.Background(), 0, e, EpisodeOptions{
			Policy:   policy.NewRandom(5),
			MaxSteps: 8,
			Seed:     99,
		})
		if err != nil {
			t.Fatalf("play: %v", err)
		}
		return ep
	}
	a, b := play(), play()
	if len(a.Rows) != len(b.Rows) {
		t.Fatalf("rows %d vs %d", len(a.Rows), len(b.Rows))
	}
	for i := range a.Rows {
		ra, rb := a.Rows[i], b.Rows[i]
		if ra.Agent != rb.Agent || ra.Mass != rb.Mass || ra.Reward != rb.Reward || ra.Command != rb.Command {
			t.Fatalf("row %d differs: %+v vs %+v", i, ra, rb)
		}
	}
}

func TestPlayEpisode_MultiAgentRowsPerLiveAgent(t *testing.T) {
	e := newFullEnv(t, 2)
	ep, err := PlayEpisode(context.Background(), 0, e, EpisodeOptions{
		Policy:   policy.NewRandom(1),
		MaxSteps: 10,
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(ep.Rows) < ep.Steps || len(ep.Rows) > 2*ep.Steps {
		t.Fatalf("rows=%d for %d steps of 2 agents", len(ep.Rows), ep.Steps)
	}
	done := map[int32]bool{}
	for _, row := range ep.Rows {
		if row.Agent < 0 || row.Agent > 1 {
			t.Fatalf("agent=%d", row.Agent)
		}
		if done[row.Agent] {
			t.Fatalf("agent %d recorded after done", row.Agent)
		}
		if row.Done {
			done[row.Agent] = true
		}
	}
}

func TestPlayEpisode_SeekerPolicy(t *testing.T) {
	e := newFullEnv(t, 1)
	caps := features.DefaultCapacities()
	ep, err := PlayEpisode(context.Background(), 0, e, EpisodeOptions{
		Capacities: caps,
		Policy:     policy.NewSeeker(features.New(caps)),
		MaxSteps:   20,
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	moved := false
	for _, row := range ep.Rows {
		if row.TargetX != 0 || row.TargetY != 0 {
			moved = true
		}
	}
	if !moved {
		t.Fatalf("seeker never moved with pellets on the board")
	}
}

func TestPlayEpisode_RejectsNonFull(t *testing.T) {
	e, err := env.New(env.KindRAM, trivialConfig(t, 1), arena.Opener{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer e.Close()
	if _, err := PlayEpisode(context.Background(), 0, e, EpisodeOptions{Policy: policy.NewRandom(1)}); err == nil {
		t.Fatalf("expected error for ram env")
	}
}

func TestPlayEpisode_Cancelled(t *testing.T) {
	e := newFullEnv(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ep, err := PlayEpisode(ctx, 0, e, EpisodeOptions{Policy: policy.NewRandom(1), MaxSteps: 5})
	if err != context.Canceled {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if ep.Steps != 0 {
		t.Fatalf("steps=%d want 0", ep.Steps)
	}
}

func TestRunner_WritesBatchesAndLog(t *testing.T) {
	dir := t.TempDir()
	updates := make(chan Update, 16)
	r, err := NewRunner(Options{
		Config:           trivialConfig(t, 1),
		Open:             arena.Opener{},
		Policy:           policy.NewRandom(3),
		PolicyName:       "random",
		Workers:          2,
		Episodes:         5,
		MaxSteps:         4,
		OutDir:           dir,
		EpisodesPerFlush: 2,
		Updates:          updates,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	st := r.Stats()
	if st.Episodes != 5 || st.Steps != 20 || st.Rows != 20 {
		t.Fatalf("stats=%+v want 5 episodes, 20 steps, 20 rows", st)
	}
	if st.Flushes != 3 {
		t.Fatalf("flushes=%d want 3", st.Flushes)
	}
	if len(updates) != 5 {
		t.Fatalf("updates=%d want 5", len(updates))
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if len(files) != 3 {
		t.Fatalf("parquet files=%d want 3", len(files))
	}
	ids := map[string]bool{}
	total := 0
	for _, f := range files {
		rows, err := store.ReadRows(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		total += len(rows)
		for _, row := range rows {
			ids[row.EpisodeID] = true
		}
	}
	if total != 20 || len(ids) != 5 {
		t.Fatalf("rows=%d episodes=%d want 20,5", total, len(ids))
	}

	l, err := store.OpenEpisodeLog(filepath.Join(dir, "logs", "episodes.log"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer l.Close()
	if l.Count() != 5 {
		t.Fatalf("log count=%d want 5", l.Count())
	}
	for id := range ids {
		if !l.Has(id) {
			t.Fatalf("log missing %s", id)
		}
	}
}

func TestRunner_CancelledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRunner(Options{
		Config: trivialConfig(t, 1),
		Open:   arena.Opener{},
		Policy: policy.NewRandom(3),
		OutDir: dir,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if files, _ := filepath.Glob(filepath.Join(dir, "*.parquet")); len(files) != 0 {
		t.Fatalf("files=%v want none", files)
	}
}

func TestRunner_WriteFailureCancelsRun(t *testing.T) {
	tmp := t.TempDir()
	outFile := filepath.Join(tmp, "not-a-dir")
	if err := os.WriteFile(outFile, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	r, err := NewRunner(Options{
		Config:   trivialConfig(t, 1),
		Open:     arena.Opener{},
		Policy:   policy.NewRandom(3),
		Workers:  2,
		Episodes: 0,
		MaxSteps: 4,
		OutDir:   outFile,
		LogPath:  filepath.Join(tmp, "episodes.log"),
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	start := time.Now()
	err = r.Run(ctx)
	if err == nil {
		t.Fatalf("run should report the write failure")
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		t.Fatalf("run ended by deadline after %v: %v", time.Since(start), err)
	}
	if st := r.Stats(); st.Flushes != 0 || st.Rows != 0 {
		t.Fatalf("stats=%+v want nothing written", st)
	}
}

func TestNewRunner_Validation(t *testing.T) {
	cfg := trivialConfig(t, 1)
	cases := []Options{
		{Config: cfg, Open: arena.Opener{}, OutDir: "x"},
		{Config: cfg, Policy: policy.NewRandom(1), OutDir: "x"},
		{Config: cfg, Open: arena.Opener{}, Policy: policy.NewRandom(1)},
		{Config: config.Config{}, Open: arena.Opener{}, Policy: policy.NewRandom(1), OutDir: "x"},
	}
	for i, o := range cases {
		if _, err := NewRunner(o); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
