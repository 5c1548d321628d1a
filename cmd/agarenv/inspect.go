package main

import (
	"fmt"

	"github.com/brensch/agarenv/arena"
	"github.com/brensch/agarenv/env"
	"github.com/brensch/agarenv/features"
	"github.com/spf13/cobra"
)

func newInspectCmd(flags *configFlags) *cobra.Command {
	var (
		obs   string
		steps int
		seed  int64
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the resolved config, action and observation spaces, then take a few no-op steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseObs(obs)
			if err != nil {
				return err
			}
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			e, err := env.New(kind, cfg, arena.Opener{})
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config:      %+v\n", cfg)
			fmt.Fprintf(out, "Action:      %s\n", e.ActionSpace())
			fmt.Fprintf(out, "Observation: %s (%s)\n", e.ObservationSpace(), kind)
			if kind == env.KindFull {
				x := features.New(features.DefaultCapacities())
				fmt.Fprintf(out, "Features:    %d floats\n", x.Len())
				for _, s := range x.Segments() {
					fmt.Fprintf(out, "  %-8s offset=%-4d rows=%-3d cols=%d\n", s.Name, s.Offset, s.Rows, s.Cols)
				}
			}

			e.Seed(seed)
			if _, err := e.Reset(); err != nil {
				return err
			}
			noop := make([]env.Action, e.NumAgents())
			for i := 0; i < steps; i++ {
				res, err := e.Step(noop)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "step %3d rewards=%v dones=%v\n", res.Info.Steps, res.Rewards, res.Dones)
				if res.AllDone() {
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&obs, "obs", "full", "Observation type: full, grid, ram or screen")
	cmd.Flags().IntVar(&steps, "steps", 5, "No-op steps to take after reset")
	cmd.Flags().Int64Var(&seed, "seed", arena.DefaultSeed, "Engine seed")
	return cmd
}
