package core

// Status describes the lifecycle state of a workflow run.
//
// Transitions are monotonic within one run: IDLE -> RUNNING -> one of
// COMPLETED, FAILED or STOPPED. A FAILED, STOPPED or COMPLETED run may be
// started again, re-entering RUNNING with its persisted memory intact.
type Status string

const (
	// StatusIdle means the run exists (state on disk) but is not executing.
	StatusIdle Status = "IDLE"
	// StatusRunning means the workflow entry point is currently executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted means the entry point returned without error.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means the entry point returned an error.
	StatusFailed Status = "FAILED"
	// StatusStopped means an interrupt/terminate signal ended the run.
	StatusStopped Status = "STOPPED"
)

// Terminal reports whether the status is a final state for the current run.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// Restartable reports whether a new run may be started from this status.
func (s Status) Restartable() bool {
	return s == StatusIdle || s.Terminal()
}
