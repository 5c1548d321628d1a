package env

import (
	"fmt"

	"github.com/brensch/agarenv/config"
)

// Single is the single-agent face of an Env: observations, rewards and dones
// come back as scalars instead of one-element lists.
type Single struct {
	*Env
}

// NewSingle builds an Env for exactly one agent.
func NewSingle(kind Kind, cfg config.Config, open Opener) (*Single, error) {
	e, err := New(kind, cfg, open)
	if err != nil {
		return nil, err
	}
	s, err := AsSingle(e)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	return s, nil
}

// AsSingle wraps e, which must have exactly one agent.
func AsSingle(e *Env) (*Single, error) {
	if e.NumAgents() != 1 {
		return nil, fmt.Errorf("%w: single-agent view of %d agents", ErrInvalidConfig, e.NumAgents())
	}
	return &Single{Env: e}, nil
}

// Reset returns the lone agent's initial observation.
func (s *Single) Reset() (Observation, error) {
	obs, err := s.Env.Reset()
	if err != nil {
		return nil, err
	}
	return obs[0], nil
}

// Step applies a single action. The observation is nil once done.
func (s *Single) Step(a Action) (Observation, float64, bool, Info, error) {
	res, err := s.Env.Step([]Action{a})
	if err != nil {
		return nil, 0, false, Info{}, err
	}
	return res.Observations[0], res.Rewards[0], res.Dones[0], res.Info, nil
}
