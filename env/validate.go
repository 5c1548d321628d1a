package env

import (
	"fmt"

	"github.com/brensch/agarenv/space"
)

// Validate checks actions against the action space before anything reaches
// the engine.
func Validate(actions []Action, numAgents int, as space.Action) error {
	if len(actions) != numAgents {
		return fmt.Errorf("%w: got %d actions for %d agents", ErrActionShapeMismatch, len(actions), numAgents)
	}
	for i, a := range actions {
		if !as.Target.Contains(a.Target[0], a.Target[1]) {
			return fmt.Errorf("%w: agent %d target (%g, %g) outside %s", ErrActionOutOfSpace, i, a.Target[0], a.Target[1], as.Target)
		}
		if !as.Command.Contains(int(a.Command)) {
			return fmt.Errorf("%w: agent %d command %d outside %s", ErrActionOutOfSpace, i, int(a.Command), as.Command)
		}
	}
	return nil
}
