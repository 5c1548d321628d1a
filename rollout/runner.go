package rollout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/env"
	"github.com/brensch/agarenv/features"
	"github.com/brensch/agarenv/policy"
	"github.com/brensch/agarenv/store"
)

const DefaultEpisodesPerFlush = 50

// Options configures a Runner.
type Options struct {
	Config     config.Config
	Open       env.Opener
	Capacities features.Capacities
	Policy     policy.Policy
	PolicyName string

	Workers  int
	// Episodes stops the run after this many episodes. 0 runs until ctx is
	// cancelled.
	Episodes int64
	MaxSteps int
	// Seed is the seed of episode 0; episode n uses Seed+n.
	Seed     int64

	OutDir           string
	EpisodesPerFlush int
	// LogPath defaults to OutDir/logs/episodes.log.
	LogPath          string

	// Observer is shared by every worker and must be safe for concurrent use.
	Observer Observer
	// Updates receives one Update per finished episode. Sends never block.
	Updates  chan<- Update
}

// Update reports one finished episode.
type Update struct {
	WorkerID    int
	EpisodeID   string
	Steps       int
	TotalReward float64
	Rows        int
}

// Stats are running totals across all workers.
type Stats struct {
	Episodes int64
	Steps    int64
	Rows     int64
	Flushes  int64
}

type episodeWrite struct {
	id   string
	rows []store.TransitionRow
}

// Runner plays episodes on several workers and streams their transitions
// into parquet batches.
type Runner struct {
	opts Options

	claimed  atomic.Int64
	episodes atomic.Int64
	steps    atomic.Int64
	rows     atomic.Int64
	flushes  atomic.Int64
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Policy == nil {
		return nil, fmt.Errorf("rollout: no policy")
	}
	if opts.Open == nil {
		return nil, fmt.Errorf("rollout: no engine opener")
	}
	if opts.OutDir == "" {
		return nil, fmt.Errorf("rollout: out dir is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.EpisodesPerFlush <= 0 {
		opts.EpisodesPerFlush = DefaultEpisodesPerFlush
	}
	if opts.LogPath == "" {
		opts.LogPath = filepath.Join(opts.OutDir, "logs", "episodes.log")
	}
	if opts.PolicyName == "" {
		opts.PolicyName = "unknown"
	}
	return &Runner{opts: opts}, nil
}

func (r *Runner) Stats() Stats {
	return Stats{
		Episodes: r.episodes.Load(),
		Steps:    r.steps.Load(),
		Rows:     r.rows.Load(),
		Flushes:  r.flushes.Load(),
	}
}

// Run blocks until the episode target is reached, ctx is cancelled or a
// worker or the writer fails. The first failure cancels the run. Episodes
// interrupted by cancellation are dropped; every finished episode is
// flushed before Run returns unless writing failed.
func (r *Runner) Run(ctx context.Context) error {
	episodeLog, err := store.OpenEpisodeLog(r.opts.LogPath)
	if err != nil {
		return err
	}
	defer episodeLog.Close()

	batches, err := store.NewBatchWriter(r.opts.OutDir, r.opts.EpisodesPerFlush)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	writes := make(chan episodeWrite, r.opts.Workers*4)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		r.writerLoop(writes, batches, episodeLog, fail)
	}()

	log.Printf("Starting rollout with %d workers (%s, policy=%s)", r.opts.Workers, r.opts.Config.Difficulty, r.opts.PolicyName)
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			if err := r.work(ctx, workerID, writes); err != nil {
				fail(fmt.Errorf("worker %d: %w", workerID, err))
			}
		}(i)
	}

	wg.Wait()
	close(writes)
	<-writerDone
	log.Printf("Rollout finished: episodes=%d steps=%d rows=%d flushes=%d",
		r.episodes.Load(), r.steps.Load(), r.rows.Load(), r.flushes.Load())
	return firstErr
}

func (r *Runner) work(ctx context.Context, workerID int, writes chan<- episodeWrite) error {
	e, err := env.New(env.KindFull, r.opts.Config, r.opts.Open)
	if err != nil {
		return err
	}
	defer e.Close()

	opts := EpisodeOptions{
		Capacities: r.opts.Capacities,
		Policy:     r.opts.Policy,
		PolicyName: r.opts.PolicyName,
		MaxSteps:   r.opts.MaxSteps,
		Observer:   r.opts.Observer,
		OnStep:     func() { r.steps.Add(1) },
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		n := r.claimed.Add(1) - 1
		if r.opts.Episodes > 0 && n >= r.opts.Episodes {
			return nil
		}
		opts.Seed = r.opts.Seed + n

		ep, err := PlayEpisode(ctx, workerID, e, opts)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		r.episodes.Add(1)

		if len(ep.Rows) == 0 {
			log.Printf("Worker %d: episode %s recorded no rows", workerID, ep.ID)
			continue
		}
		writes <- episodeWrite{id: ep.ID, rows: ep.Rows}

		if r.opts.Updates != nil {
			select {
			case r.opts.Updates <- Update{WorkerID: workerID, EpisodeID: ep.ID, Steps: ep.Steps, TotalReward: ep.TotalReward(), Rows: len(ep.Rows)}:
			default:
			}
		}
	}
}

// writerLoop drains writes until the channel closes. On the first failure
// it reports through fail, drops the staged batch and discards everything
// after it, so workers never block on a dead writer.
func (r *Runner) writerLoop(in <-chan episodeWrite, batches *store.BatchWriter, episodeLog *store.EpisodeLog, fail func(error)) {
	failed := false
	abort := func(err error) {
		failed = true
		batches.Discard()
		fail(err)
	}
	publish := func(b *store.Batch) {
		if b == nil {
			return
		}
		r.flushes.Add(1)
		log.Printf("Parquet flush ok: %s (episodes=%d rows=%d)", b.Path, len(b.EpisodeIDs), b.Rows)
		if err := episodeLog.AddMany(b.EpisodeIDs); err != nil {
			log.Printf("Episode log append failed: %v", err)
			abort(fmt.Errorf("episode log: %w", err))
		}
	}

	for req := range in {
		if failed {
			continue
		}
		b, err := batches.Add(req.id, req.rows)
		if err != nil {
			log.Printf("Parquet write failed for episode %s: %v", req.id, err)
			abort(err)
			continue
		}
		r.rows.Add(int64(len(req.rows)))
		publish(b)
	}
	if failed {
		return
	}

	b, err := batches.Flush()
	if err != nil {
		log.Printf("Parquet flush failed: %v", err)
		abort(err)
		return
	}
	publish(b)
}
