package simulation

import (
	"github.com/rendis/flowcraft/pkg/schema"
)

// ValidTransitions lists the allowed status changes. Running->Running is the
// ordinary advance along a connector.
var ValidTransitions = map[schema.SimulationStatus][]schema.SimulationStatus{
	schema.SimulationIdle:      {schema.SimulationRunning, schema.SimulationStopped},
	schema.SimulationRunning:   {schema.SimulationRunning, schema.SimulationPaused, schema.SimulationCompleted, schema.SimulationStopped, schema.SimulationIdle},
	schema.SimulationPaused:    {schema.SimulationRunning, schema.SimulationStopped, schema.SimulationIdle},
	schema.SimulationCompleted: {schema.SimulationIdle},
	schema.SimulationStopped:   {schema.SimulationIdle},
}

// TransitionHook is called before or after a status change. A before hook
// returning an error vetoes the transition.
type TransitionHook func(from, to schema.SimulationStatus) error

type hookKey struct {
	from, to schema.SimulationStatus
}

type hooks struct {
	before map[hookKey][]TransitionHook
	after  map[hookKey][]TransitionHook
}

func newHooks() hooks {
	return hooks{
		before: make(map[hookKey][]TransitionHook),
		after:  make(map[hookKey][]TransitionHook),
	}
}

func isValidTransition(from, to schema.SimulationStatus) bool {
	for _, a := range ValidTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func invalidTransition(op string, from schema.SimulationStatus) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeInvalidTransition, "%s is not allowed while %s", op, from).
		WithDetails(map[string]any{"operation": op, "state": string(from)})
}

// eventType maps a status change to the event emitted for it.
func eventType(from, to schema.SimulationStatus) string {
	switch to {
	case schema.SimulationRunning:
		switch from {
		case schema.SimulationIdle:
			return schema.EventSimulationStarted
		case schema.SimulationPaused:
			return schema.EventSimulationResumed
		default:
			return schema.EventSimulationAdvanced
		}
	case schema.SimulationPaused:
		return schema.EventDecisionRequested
	case schema.SimulationCompleted:
		return schema.EventSimulationCompleted
	case schema.SimulationStopped:
		return schema.EventSimulationStopped
	case schema.SimulationIdle:
		return schema.EventSimulationReset
	default:
		return ""
	}
}
