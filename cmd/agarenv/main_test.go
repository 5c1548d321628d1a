package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/features"
	"github.com/brensch/agarenv/store"
	"github.com/spf13/cobra"
)

func resolveWith(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var flags configFlags
	var got config.Config
	root := &cobra.Command{Use: "agarenv", SilenceUsage: true, SilenceErrors: true}
	flags.register(root.PersistentFlags())
	child := &cobra.Command{
		Use: "check",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			got, err = flags.resolve(cmd)
			return err
		},
	}
	root.AddCommand(child)
	root.SetArgs(append([]string{"check"}, args...))
	err := root.Execute()
	return got, err
}

func TestResolve_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("AGARENV_DIFFICULTY", "empty")
	t.Setenv("AGARENV_NUM_PELLETS", "7")
	t.Setenv("AGARENV_NUM_BOTS", "9")

	cfg, err := resolveWith(t, "--num_bots", "3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Difficulty != config.Empty || cfg.NumPellets != 7 || cfg.NumBots != 3 {
		t.Fatalf("cfg=%+v want empty preset, 7 pellets, 3 bots", cfg)
	}

	cfg, err = resolveWith(t, "--difficulty", "trivial", "--num_agents", "2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Difficulty != config.Trivial || cfg.NumAgents != 2 || !cfg.MultiAgent {
		t.Fatalf("cfg=%+v want trivial with 2 agents", cfg)
	}
}

func TestResolve_UnsetFlagsKeepPreset(t *testing.T) {
	cfg, err := resolveWith(t)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want, _ := config.Preset("normal")
	if cfg.NumBots != want.NumBots || !cfg.Grid.ObservePellets || cfg.NumAgents != 1 {
		t.Fatalf("cfg=%+v want normal preset", cfg)
	}
}

func TestResolve_InvalidFlag(t *testing.T) {
	if _, err := resolveWith(t, "--ticks_per_step", "0"); err == nil {
		t.Fatalf("expected invalid config error")
	}
}

func TestInspectCmd_PrintsSpaces(t *testing.T) {
	var flags configFlags
	root := &cobra.Command{Use: "agarenv", SilenceUsage: true, SilenceErrors: true}
	flags.register(root.PersistentFlags())
	root.AddCommand(newInspectCmd(&flags))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"inspect", "--difficulty", "trivial", "--obs", "grid", "--steps", "2"})
	if err := root.Execute(); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Action:", "Observation:", "step   2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestBuildPolicy(t *testing.T) {
	caps := features.DefaultCapacities()
	if _, name, _, err := buildPolicy(&rolloutFlags{policy: "seeker"}, caps); err != nil || name != "seeker" {
		t.Fatalf("seeker: name=%q err=%v", name, err)
	}
	if _, _, _, err := buildPolicy(&rolloutFlags{policy: "onnx"}, caps); err == nil {
		t.Fatalf("onnx without model should fail")
	}
	if _, _, _, err := buildPolicy(&rolloutFlags{policy: "greedy"}, caps); err == nil {
		t.Fatalf("unknown policy should fail")
	}
}

func TestSummaryCmd_ReportsLogCoverage(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"ep-a", "ep-b"} {
		rows := []store.TransitionRow{
			{EpisodeID: id, Step: 0, Difficulty: "trivial", ObsType: "full", Policy: "random", Features: []float32{0}, Reward: 1, Mass: 40},
			{EpisodeID: id, Step: 1, Difficulty: "trivial", ObsType: "full", Policy: "random", Features: []float32{0}, Reward: 1, Done: true},
		}
		if _, err := store.WriteBatchParquetAtomic(dir, rows); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	l, err := store.OpenEpisodeLog(filepath.Join(dir, "logs", "episodes.log"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if err := l.AddMany([]string{"ep-a", "ep-gone"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_ = l.Close()

	root := &cobra.Command{Use: "agarenv", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(newSummaryCmd())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"summary", "--dir", dir})
	if err := root.Execute(); err != nil {
		t.Fatalf("summary: %v", err)
	}
	text := out.String()
	for _, want := range []string{"ep-a", "ep-b", "2 episodes, mean reward 2.00", "1 of 2 episodes logged, 2 ids"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestSummaryCmd_NoLog(t *testing.T) {
	root := &cobra.Command{Use: "agarenv", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(newSummaryCmd())
	var out bytes.Buffer
	root.SetOut(&out)
	dir := t.TempDir()
	if _, err := store.WriteBatchParquetAtomic(dir, []store.TransitionRow{{EpisodeID: "x", Features: []float32{0}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	root.SetArgs([]string{"summary", "--dir", dir})
	if err := root.Execute(); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if strings.Contains(out.String(), "episode log") {
		t.Fatalf("reported a log that does not exist:\n%s", out.String())
	}
}
