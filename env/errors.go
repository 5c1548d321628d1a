package env

import (
	"errors"

	"github.com/brensch/agarenv/config"
)

var (
	// ErrInvalidConfig is config.ErrInvalidConfig, re-exported so callers of
	// this package can match every failure mode from one place.
	ErrInvalidConfig = config.ErrInvalidConfig

	ErrUnknownObservationType = errors.New("unknown observation type")
	ErrEnvironmentUnavailable = errors.New("environment unavailable")
	ErrActionShapeMismatch    = errors.New("action count does not match number of agents")
	ErrActionOutOfSpace       = errors.New("action not in action space")
	ErrNotReady               = errors.New("step called before reset")

	// ErrEngineContractViolation means the engine returned per-agent data
	// whose length disagrees with the configured agent count. It is fatal:
	// the coordinator never pads, truncates or retries.
	ErrEngineContractViolation = errors.New("engine contract violation")
)
