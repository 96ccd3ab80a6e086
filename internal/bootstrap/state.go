package bootstrap

// State is the lifecycle of the worker process as a whole.
type State int

const (
	// StateStarting covers acquiring the signal guard and logging startup facts.
	StateStarting State = iota

	// StateContractValidated means the arguments matched the invocation contract.
	StateContractValidated

	// StateRunning means the worker's run is in progress.
	StateRunning

	// StateSucceeded means the worker returned a status without failing.
	StateSucceeded

	// StateFaulted means a failure escaped and has been reported.
	StateFaulted

	// StateTornDown means every process-scoped resource has been released.
	StateTornDown
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateContractValidated:
		return "contract_validated"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFaulted:
		return "faulted"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for the two outcomes a run can end in.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFaulted
}
