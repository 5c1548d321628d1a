package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/agarenv/arena"
	"github.com/brensch/agarenv/env"
	"github.com/brensch/agarenv/features"
	"github.com/brensch/agarenv/policy"
	"github.com/brensch/agarenv/rollout"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

type rolloutFlags struct {
	obs              string
	episodes         int64
	workers          int
	maxSteps         int
	seed             int64
	out              string
	episodesPerFlush int
	policy           string

	model            string
	onnxSessions     int
	onnxBatchSize    int
	onnxBatchTimeout time.Duration
	cuda             bool

	tui bool
}

func newRolloutCmd(flags *configFlags) *cobra.Command {
	var rf rolloutFlags
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Play episodes on parallel workers and write transitions to parquet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollout(cmd, flags, &rf)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&rf.obs, "obs", "full", "Observation type; rollouts need full")
	fs.Int64Var(&rf.episodes, "episodes", 100, "Episodes to play (0 runs until interrupted)")
	fs.IntVar(&rf.workers, "workers", 4, "Parallel environments")
	fs.IntVar(&rf.maxSteps, "max_steps", rollout.DefaultMaxSteps, "Step cap per episode")
	fs.Int64Var(&rf.seed, "seed", arena.DefaultSeed, "Seed of the first episode")
	fs.StringVar(&rf.out, "out", "data/rollouts", "Output directory for parquet batches")
	fs.IntVar(&rf.episodesPerFlush, "episodes_per_flush", rollout.DefaultEpisodesPerFlush, "Episodes buffered per parquet file")
	fs.StringVar(&rf.policy, "policy", "random", "Policy: random, seeker or onnx (implied by --model)")
	fs.StringVar(&rf.model, "model", "", "ONNX model mapping features to (target, command logits)")
	fs.IntVar(&rf.onnxSessions, "onnx_sessions", 1, "ONNX Runtime sessions, each with its own batching loop")
	fs.IntVar(&rf.onnxBatchSize, "onnx_batch_size", policy.DefaultBatchSize, "ONNX inference batch size")
	fs.DurationVar(&rf.onnxBatchTimeout, "onnx_batch_timeout", policy.DefaultBatchTimeout, "Max time to wait for filling an ONNX batch")
	fs.BoolVar(&rf.cuda, "cuda", false, "Try the CUDA execution provider")
	fs.BoolVar(&rf.tui, "tui", false, "Show a live progress view instead of log lines")
	return cmd
}

// buildPolicy returns the policy, its recorded name and a closer.
func buildPolicy(rf *rolloutFlags, caps features.Capacities) (policy.Policy, string, func() error, error) {
	noClose := func() error { return nil }
	name := rf.policy
	if rf.model != "" {
		name = "onnx"
	}
	switch name {
	case "random":
		return policy.NewRandom(rf.seed), name, noClose, nil
	case "seeker":
		return policy.NewSeeker(features.New(caps)), name, noClose, nil
	case "onnx":
		if rf.model == "" {
			return nil, "", nil, fmt.Errorf("--policy onnx needs --model")
		}
		cfg := policy.OnnxConfig{
			InputSize:    features.New(caps).Len(),
			BatchSize:    rf.onnxBatchSize,
			BatchTimeout: rf.onnxBatchTimeout,
			UseCUDA:      rf.cuda,
		}
		if rf.onnxSessions <= 1 {
			p, err := policy.NewOnnx(rf.model, cfg)
			if err != nil {
				return nil, "", nil, err
			}
			return p, name, p.Close, nil
		}
		p, err := policy.NewOnnxPool(rf.model, rf.onnxSessions, cfg)
		if err != nil {
			return nil, "", nil, err
		}
		return p, name, p.Close, nil
	}
	return nil, "", nil, fmt.Errorf("unknown policy %q", rf.policy)
}

func runRollout(cmd *cobra.Command, flags *configFlags, rf *rolloutFlags) error {
	kind, err := parseObs(rf.obs)
	if err != nil {
		return err
	}
	if kind != env.KindFull {
		return fmt.Errorf("rollout records feature vectors and needs --obs full, got %s", kind)
	}
	cfg, err := flags.resolve(cmd)
	if err != nil {
		return err
	}

	caps := features.DefaultCapacities()
	pol, policyName, closePolicy, err := buildPolicy(rf, caps)
	if err != nil {
		return err
	}
	defer func() { _ = closePolicy() }()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	updates := make(chan rollout.Update, rf.workers*4)
	runner, err := rollout.NewRunner(rollout.Options{
		Config:           cfg,
		Open:             arena.Opener{},
		Capacities:       caps,
		Policy:           pol,
		PolicyName:       policyName,
		Workers:          rf.workers,
		Episodes:         rf.episodes,
		MaxSteps:         rf.maxSteps,
		Seed:             rf.seed,
		OutDir:           rf.out,
		EpisodesPerFlush: rf.episodesPerFlush,
		Updates:          updates,
	})
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	if rf.tui {
		// Keep log lines from tearing the TUI.
		log.SetOutput(io.Discard)
		defer log.SetOutput(os.Stderr)
	}
	go func() {
		runErr <- runner.Run(ctx)
		cancel()
	}()

	if rf.tui {
		stats := func() string { return onnxStatsLine(pol) }
		p := tea.NewProgram(newProgressModel(runner, updates, stats), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			log.Printf("TUI exited: %v", err)
		}
		cancel()
		return <-runErr
	}

	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-runErr:
			return err
		case u := <-updates:
			log.Printf("Worker %d: episode %s steps=%d reward=%.1f rows=%d", u.WorkerID, u.EpisodeID, u.Steps, u.TotalReward, u.Rows)
		case <-ticker.C:
			st := runner.Stats()
			secs := time.Since(start).Seconds()
			log.Printf("Stats: episodes=%d steps/s=%.1f rows=%d flushes=%d %s",
				st.Episodes, float64(st.Steps)/secs, st.Rows, st.Flushes, onnxStatsLine(pol))
		}
	}
}

func onnxStatsLine(p policy.Policy) string {
	sp, ok := p.(interface{ Stats() policy.RuntimeStats })
	if !ok {
		return ""
	}
	st := sp.Stats()
	return fmt.Sprintf("batch avg=%.1f last=%d q=%d run avg=%.2fms", st.AvgBatchSize, st.LastBatchSize, st.QueueLen, st.AvgRunMs)
}
