package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/agarenv/arena"
	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/env"
	"github.com/brensch/agarenv/features"
	"github.com/brensch/agarenv/policy"
	"github.com/brensch/agarenv/rollout"
	"github.com/brensch/agarenv/viewer"
	"github.com/spf13/cobra"
)

type liveOptions struct {
	policyName string
	fps        int
	maxSteps   int
	seed       int64
}

func newServeCmd(flags *configFlags) *cobra.Command {
	var (
		addr    string
		dataDir string
		live    liveOptions
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Stream a live episode over websocket at /ws and serve recorded episodes under /api",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := viewer.NewHub()
			go hub.Run(ctx)

			srv := viewer.NewServer([]string{dataDir}, hub)
			defer srv.Close()
			mux := http.NewServeMux()
			srv.RegisterRoutes(mux)
			httpServer := &http.Server{Addr: addr, Handler: mux}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			go func() {
				if err := playLive(ctx, hub, cfg, live); err != nil {
					log.Printf("Live play stopped: %v", err)
				}
			}()

			log.Printf("Serving on %s (ws at /ws, episodes from %s)", addr, dataDir)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "HTTP listen address")
	cmd.Flags().StringVar(&dataDir, "dir", "data/rollouts", "Parquet root for recorded episodes")
	cmd.Flags().StringVar(&live.policyName, "policy", "random", "Live policy: random or seeker")
	cmd.Flags().IntVar(&live.fps, "fps", 15, "Live steps per second (0 runs unthrottled)")
	cmd.Flags().IntVar(&live.maxSteps, "max_steps", 2000, "Step cap per live episode")
	cmd.Flags().Int64Var(&live.seed, "seed", arena.DefaultSeed, "Seed of the first live episode")
	return cmd
}

// playLive runs episodes back to back on one env and publishes every step
// while a viewer is connected. It idles when nobody is watching.
func playLive(ctx context.Context, hub *viewer.Hub, cfg config.Config, o liveOptions) error {
	var pol policy.Policy
	switch o.policyName {
	case "seeker":
		pol = policy.NewSeeker(features.New(features.DefaultCapacities()))
	default:
		o.policyName = "random"
		pol = policy.NewRandom(o.seed)
	}

	e, err := env.New(env.KindFull, cfg, arena.Opener{})
	if err != nil {
		return err
	}
	defer e.Close()

	var delay time.Duration
	if o.fps > 0 {
		delay = time.Second / time.Duration(o.fps)
	}
	publish := hub.Observer(1)
	observer := func(si rollout.StepInfo) {
		publish(si)
		if delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	var n int64
	for ctx.Err() == nil {
		if !hub.Watching() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}
		ep, err := rollout.PlayEpisode(ctx, 0, e, rollout.EpisodeOptions{
			Policy:     pol,
			PolicyName: o.policyName,
			MaxSteps:   o.maxSteps,
			Seed:       o.seed + n,
			Observer:   observer,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		n++
		log.Printf("Live episode %s: steps=%d reward=%.1f", ep.ID, ep.Steps, ep.TotalReward())
	}
	return nil
}
