package schema

// Event type constants for the simulation event log.
const (
	EventSimulationStarted   = "simulation_started"
	EventSimulationAdvanced  = "simulation_advanced"
	EventSimulationPaused    = "simulation_paused"
	EventSimulationResumed   = "simulation_resumed"
	EventSimulationCompleted = "simulation_completed"
	EventSimulationStopped   = "simulation_stopped"
	EventSimulationReset     = "simulation_reset"

	EventDecisionRequested = "decision_requested"
	EventDecisionResolved  = "decision_resolved"

	EventFlowchartSaved   = "flowchart_saved"
	EventFlowchartDeleted = "flowchart_deleted"
)

// SimulationStatus represents the lifecycle state of a simulation.
type SimulationStatus string

const (
	SimulationIdle      SimulationStatus = "idle"
	SimulationRunning   SimulationStatus = "running"
	SimulationPaused    SimulationStatus = "paused"
	SimulationCompleted SimulationStatus = "completed"
	SimulationStopped   SimulationStatus = "stopped"
)

// Terminal reports whether no further transitions are possible without a reset.
func (s SimulationStatus) Terminal() bool {
	return s == SimulationCompleted || s == SimulationStopped
}
