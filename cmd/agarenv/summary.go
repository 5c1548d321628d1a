package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/brensch/agarenv/store"
	"github.com/spf13/cobra"
)

func newSummaryCmd() *cobra.Command {
	var dir, logPath string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print per-episode stats for the parquet batches under a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			episodes, err := store.Summarize(cmd.Context(), dir)
			if err != nil {
				return fmt.Errorf("summarize %s: %w", dir, err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "EPISODE\tDIFFICULTY\tPOLICY\tAGENTS\tSTEPS\tREWARD\tFINAL MASS\tDONE")
			var total float64
			for _, ep := range episodes {
				total += ep.TotalReward
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.1f\t%.1f\t%v\n",
					ep.EpisodeID, ep.Difficulty, ep.Policy, ep.Agents, ep.Steps, ep.TotalReward, ep.FinalMass, ep.AllDone)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if len(episodes) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d episodes, mean reward %.2f\n", len(episodes), total/float64(len(episodes)))
			}

			if logPath == "" {
				logPath = filepath.Join(dir, "logs", "episodes.log")
			}
			logged, inLog, err := logCoverage(logPath, episodes)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "episode log: %d of %d episodes logged, %d ids in %s\n", logged, len(episodes), inLog, logPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/rollouts", "Parquet root written by rollout")
	cmd.Flags().StringVar(&logPath, "log", "", "Episode log to check against (default <dir>/logs/episodes.log)")
	return cmd
}

// logCoverage counts how many of the queried episodes the rollout log
// recorded, and how many ids the log holds in total. A missing log returns
// fs.ErrNotExist.
func logCoverage(path string, episodes []store.EpisodeSummary) (logged, inLog int, err error) {
	if _, err := os.Stat(path); err != nil {
		return 0, 0, err
	}
	l, err := store.OpenEpisodeLog(path)
	if err != nil {
		return 0, 0, err
	}
	defer l.Close()
	for _, ep := range episodes {
		if l.Has(ep.EpisodeID) {
			logged++
		}
	}
	return logged, l.Count(), nil
}
