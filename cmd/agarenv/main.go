package main

import (
	"fmt"
	"log"
	"os"

	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/env"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// configFlags are the persistent flags mirroring config.Overrides. Only
// flags the user actually set override the environment.
type configFlags struct {
	difficulty string

	ticksPerStep int
	arenaSize    float64
	numPellets   int
	numViruses   int
	numBots      int
	pelletRegen  bool
	multiAgent   bool
	numAgents    int

	gridSize       int
	numFrames      int
	observeCells   bool
	observeOthers  bool
	observeViruses bool
	observePellets bool
	screenLen      int
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.difficulty, "difficulty", "", "Preset: normal, empty or trivial (default normal)")
	fs.IntVar(&f.ticksPerStep, "ticks_per_step", 0, "Engine ticks per env step")
	fs.Float64Var(&f.arenaSize, "arena_size", 0, "Arena side length")
	fs.IntVar(&f.numPellets, "num_pellets", 0, "Pellets kept on the board")
	fs.IntVar(&f.numViruses, "num_viruses", 0, "Viruses kept on the board")
	fs.IntVar(&f.numBots, "num_bots", 0, "Scripted bots")
	fs.BoolVar(&f.pelletRegen, "pellet_regen", true, "Respawn eaten pellets")
	fs.BoolVar(&f.multiAgent, "multi_agent", false, "Allow more than one agent")
	fs.IntVar(&f.numAgents, "num_agents", 1, "Learning agents")
	fs.IntVar(&f.gridSize, "grid_size", 0, "Grid observation side length")
	fs.IntVar(&f.numFrames, "num_frames", 0, "Grid frames per step")
	fs.BoolVar(&f.observeCells, "observe_cells", true, "Grid channel for own cells")
	fs.BoolVar(&f.observeOthers, "observe_others", true, "Grid channel for other players")
	fs.BoolVar(&f.observeViruses, "observe_viruses", true, "Grid channel for viruses")
	fs.BoolVar(&f.observePellets, "observe_pellets", true, "Grid channel for pellets")
	fs.IntVar(&f.screenLen, "screen_len", 0, "Screen observation side length")
}

func (f *configFlags) overrides(fs *pflag.FlagSet) config.Overrides {
	var o config.Overrides
	setI := func(name string, v int) *int {
		if fs.Changed(name) {
			return config.Int(v)
		}
		return nil
	}
	setB := func(name string, v bool) *bool {
		if fs.Changed(name) {
			return config.Bool(v)
		}
		return nil
	}
	o.TicksPerStep = setI("ticks_per_step", f.ticksPerStep)
	if fs.Changed("arena_size") {
		o.ArenaSize = config.Float(f.arenaSize)
	}
	o.NumPellets = setI("num_pellets", f.numPellets)
	o.NumViruses = setI("num_viruses", f.numViruses)
	o.NumBots = setI("num_bots", f.numBots)
	o.PelletRegen = setB("pellet_regen", f.pelletRegen)
	o.MultiAgent = setB("multi_agent", f.multiAgent)
	o.NumAgents = setI("num_agents", f.numAgents)
	o.GridSize = setI("grid_size", f.gridSize)
	o.NumFrames = setI("num_frames", f.numFrames)
	o.ObserveCells = setB("observe_cells", f.observeCells)
	o.ObserveOthers = setB("observe_others", f.observeOthers)
	o.ObserveViruses = setB("observe_viruses", f.observeViruses)
	o.ObservePellets = setB("observe_pellets", f.observePellets)
	o.ScreenLen = setI("screen_len", f.screenLen)
	return o
}

// resolve merges AGARENV_* variables with explicitly set flags.
func (f *configFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	difficulty, fromEnv, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	fs := cmd.Flags()
	if fs.Changed("difficulty") {
		difficulty = f.difficulty
	}
	return config.Resolve(difficulty, fromEnv.Merge(f.overrides(fs)))
}

func parseObs(s string) (env.Kind, error) {
	kind, err := env.ParseKind(s)
	if err != nil {
		return 0, fmt.Errorf("--obs: %w", err)
	}
	return kind, nil
}

func main() {
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	var flags configFlags
	rootCmd := &cobra.Command{
		Use:           "agarenv",
		Short:         "Agar.io reinforcement-learning environment: rollouts, live viewer and data tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newInspectCmd(&flags),
		newRolloutCmd(&flags),
		newServeCmd(&flags),
		newSummaryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Printf("agarenv: %v", err)
		os.Exit(1)
	}
}
