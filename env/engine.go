package env

import "github.com/brensch/agarenv/config"

// Engine is the narrow capability surface of the simulation. Implementations
// own all game physics; the coordinator only drives and reads them.
//
// Every per-agent slice (Step, State, Dones) must have one entry per agent.
// Tables and tensors returned by State may be reused by the engine on the
// next Step.
type Engine interface {
	Reset()
	Seed(seed int64)
	// TakeActions records the next action of every agent without advancing
	// time.
	TakeActions(actions []Action)
	// Step advances one tick-group and returns each agent's reward.
	Step() []float64
	State() []Raw
	Dones() []bool
	ObservationShape() []int
	Close() error
}

// Opener constructs engines. HasScreen is a load-time capability flag: the
// factory consults it instead of probing construction for failure.
type Opener interface {
	HasScreen() bool
	Open(kind Kind, cfg config.Config) (Engine, error)
}
