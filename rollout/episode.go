// Package rollout plays episodes with a policy and records every agent's
// transitions.
package rollout

import (
	"context"
	"fmt"

	"github.com/brensch/agarenv/env"
	"github.com/brensch/agarenv/features"
	"github.com/brensch/agarenv/policy"
	"github.com/brensch/agarenv/store"
	"github.com/google/uuid"
)

// DefaultMaxSteps caps an episode when agents never die.
const DefaultMaxSteps = 500

// StepInfo is passed to Observer after every step.
type StepInfo struct {
	WorkerID  int
	EpisodeID string
	Step      int
	Env       *env.Env
	Result    env.StepResult
}

// Observer watches an episode. It runs on the worker goroutine.
type Observer func(StepInfo)

// EpisodeOptions configures PlayEpisode.
type EpisodeOptions struct {
	// Capacities defaults to features.DefaultCapacities when zero.
	Capacities features.Capacities
	Policy     policy.Policy
	PolicyName string
	MaxSteps   int
	Seed       int64
	Observer   Observer
	// OnStep is called once per env step, for progress counters.
	OnStep     func()
}

// Episode is one finished (or truncated) episode.
type Episode struct {
	ID        string
	Steps     int
	Rewards   []float64
	// Completed is true when every agent finished before MaxSteps.
	Completed bool
	Rows      []store.TransitionRow
}

// TotalReward sums the reward of every agent.
func (ep Episode) TotalReward() float64 {
	var t float64
	for _, r := range ep.Rewards {
		t += r
	}
	return t
}

// PlayEpisode resets e and plays until every agent is done, MaxSteps is
// reached or ctx is cancelled. e must produce full observations. On
// cancellation the partial episode is returned with ctx's error.
func PlayEpisode(ctx context.Context, workerID int, e *env.Env, opts EpisodeOptions) (Episode, error) {
	if e.Kind() != env.KindFull {
		return Episode{}, fmt.Errorf("rollout needs full observations, env has %v", e.Kind())
	}
	if opts.Policy == nil {
		return Episode{}, fmt.Errorf("rollout: no policy")
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	caps := opts.Capacities
	if caps == (features.Capacities{}) {
		caps = features.DefaultCapacities()
	}

	n := e.NumAgents()
	cfg := e.Config()
	extractors := make([]*features.Extractor, n)
	for i := range extractors {
		extractors[i] = features.New(caps)
	}

	ep := Episode{
		ID:      uuid.NewString(),
		Rewards: make([]float64, n),
		Rows:    make([]store.TransitionRow, 0, maxSteps*n),
	}

	e.Seed(opts.Seed)
	obs, err := e.Reset()
	if err != nil {
		return ep, fmt.Errorf("reset: %w", err)
	}

	actions := make([]env.Action, n)
	vecs := make([][]float32, n)
	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return ep, err
		}

		for i, o := range obs {
			actions[i] = env.NoopAction
			vecs[i] = nil
			full, ok := o.(*env.Full)
			if !ok {
				continue
			}
			vecs[i] = extractors[i].Extract(full)
			a, err := opts.Policy.Act(ctx, vecs[i])
			if err != nil {
				return ep, fmt.Errorf("agent %d act: %w", i, err)
			}
			actions[i] = a
		}

		res, err := e.Step(actions)
		if err != nil {
			return ep, fmt.Errorf("step %d: %w", step, err)
		}
		ep.Steps++
		if opts.OnStep != nil {
			opts.OnStep()
		}

		for i := range actions {
			if vecs[i] == nil {
				continue
			}
			ep.Rewards[i] += res.Rewards[i]
			var mass float64
			if full, ok := res.Observations[i].(*env.Full); ok {
				mass = full.Mass()
			}
			ep.Rows = append(ep.Rows, store.TransitionRow{
				EpisodeID:  ep.ID,
				Step:       int32(step),
				Agent:      int32(i),
				Difficulty: string(cfg.Difficulty),
				ObsType:    e.Kind().String(),
				Policy:     opts.PolicyName,
				Features:   vecs[i],
				TargetX:    float32(actions[i].Target[0]),
				TargetY:    float32(actions[i].Target[1]),
				Command:    int32(actions[i].Command),
				Reward:     float32(res.Rewards[i]),
				Done:       res.Dones[i],
				Mass:       float32(mass),
			})
		}

		if opts.Observer != nil {
			opts.Observer(StepInfo{WorkerID: workerID, EpisodeID: ep.ID, Step: step, Env: e, Result: res})
		}

		if res.AllDone() {
			ep.Completed = true
			break
		}
		obs = res.Observations
	}
	return ep, nil
}
