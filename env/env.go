package env

import (
	"fmt"
	"log"

	"github.com/brensch/agarenv/config"
	"github.com/brensch/agarenv/space"
)

// AgentState tracks one agent slot for the current episode.
type AgentState struct {
	Steps int
	Done  bool
}

// StepResult holds parallel per-agent lists, each of length NumAgents.
// Observations[i] is nil once agent i is done.
type StepResult struct {
	Observations []Observation
	Rewards      []float64
	Dones        []bool
	Info         Info
}

// AllDone reports whether every agent has finished.
func (r StepResult) AllDone() bool {
	for _, d := range r.Dones {
		if !d {
			return false
		}
	}
	return true
}

// Env coordinates one engine for one or more agents. It is not safe for
// concurrent use; run one Env per goroutine.
type Env struct {
	cfg      config.Config
	kind     Kind
	engine   Engine
	obsSpace space.Observation
	actSpace space.Action
	assemble assembler

	ready  bool
	steps  int
	agents []AgentState
}

// New builds the engine for kind and takes ownership of it.
func New(kind Kind, cfg config.Config, open Opener) (*Env, error) {
	fn, err := assemblerFor(kind)
	if err != nil {
		return nil, err
	}
	eng, obs, err := Build(kind, cfg, open)
	if err != nil {
		return nil, err
	}
	return &Env{
		cfg:      cfg,
		kind:     kind,
		engine:   eng,
		obsSpace: obs,
		actSpace: space.DefaultAction(),
		assemble: fn,
		agents:   make([]AgentState, cfg.NumAgents),
	}, nil
}

func (e *Env) Kind() Kind                          { return e.kind }
func (e *Env) Config() config.Config               { return e.cfg }
func (e *Env) NumAgents() int                      { return e.cfg.NumAgents }
func (e *Env) Steps() int                          { return e.steps }
func (e *Env) ActionSpace() space.Action           { return e.actSpace }
func (e *Env) ObservationSpace() space.Observation { return e.obsSpace }

// Engine is the engine this Env drives. Callers must not step it directly.
func (e *Env) Engine() Engine { return e.engine }

// Agents returns a copy of the per-agent episode state.
func (e *Env) Agents() []AgentState {
	out := make([]AgentState, len(e.agents))
	copy(out, e.agents)
	return out
}

// Seed forwards a random seed to the engine for reproducible episodes.
func (e *Env) Seed(seed int64) {
	e.engine.Seed(seed)
}

// Close releases the engine.
func (e *Env) Close() error {
	return e.engine.Close()
}

// Reset starts a new episode and returns one observation per agent.
func (e *Env) Reset() ([]Observation, error) {
	e.steps = 0
	for i := range e.agents {
		e.agents[i] = AgentState{}
	}
	e.engine.Reset()
	e.ready = true

	return e.observe()
}

// Step applies one action per agent and advances one tick-group.
func (e *Env) Step(actions []Action) (StepResult, error) {
	if !e.ready {
		return StepResult{}, ErrNotReady
	}
	if err := Validate(actions, e.cfg.NumAgents, e.actSpace); err != nil {
		return StepResult{}, err
	}

	e.engine.TakeActions(actions)
	rewards := e.engine.Step()
	if len(rewards) != e.cfg.NumAgents {
		return StepResult{}, e.violation("rewards", len(rewards))
	}

	engineDones := e.engine.Dones()
	if len(engineDones) != e.cfg.NumAgents {
		return StepResult{}, e.violation("dones", len(engineDones))
	}

	dones := make([]bool, e.cfg.NumAgents)
	for i := range e.agents {
		if !e.agents[i].Done {
			e.agents[i].Steps++
		}
		// Done is sticky until the next Reset.
		e.agents[i].Done = e.agents[i].Done || engineDones[i]
		dones[i] = e.agents[i].Done
	}

	observations, err := e.observe()
	if err != nil {
		return StepResult{}, err
	}

	e.steps++
	return StepResult{
		Observations: observations,
		Rewards:      rewards,
		Dones:        dones,
		Info:         Info{Steps: e.steps},
	}, nil
}

// observe assembles one observation per agent, leaving done agents nil.
func (e *Env) observe() ([]Observation, error) {
	states := e.engine.State()
	if len(states) != e.cfg.NumAgents {
		return nil, e.violation("states", len(states))
	}

	out := make([]Observation, e.cfg.NumAgents)
	for i, raw := range states {
		if e.agents[i].Done {
			continue
		}
		obs, err := e.assemble(raw)
		if err != nil {
			e.ready = false
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		out[i] = obs
	}
	return out, nil
}

func (e *Env) violation(what string, got int) error {
	e.ready = false
	log.Printf("env: engine returned %d %s for %d agents", got, what, e.cfg.NumAgents)
	return fmt.Errorf("%w: engine returned %d %s for %d agents", ErrEngineContractViolation, got, what, e.cfg.NumAgents)
}
