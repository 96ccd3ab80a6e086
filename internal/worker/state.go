package worker

// State represents the lifecycle of a ProcessWorker run.
type State int

const (
	// StateCreated is the initial state before Run is called.
	StateCreated State = iota

	// StateStarting covers preflight, opening pipes and spawning the job.
	StateStarting

	// StateRunning indicates the job process is running and relayed.
	StateRunning

	// StateStopping indicates the job process group has been asked to stop.
	StateStopping

	// StateExited indicates Run has returned.
	StateExited
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// IsActive returns true while a job process may be alive.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// IsTerminal returns true once Run has returned.
func (s State) IsTerminal() bool {
	return s == StateExited
}
