package domain

import "time"

// StatusState is the coarse poller-facing state of the workflow
type StatusState string

const (
	StateIdle       StatusState = "idle"
	StateProcessing StatusState = "processing"
	StateComplete   StatusState = "complete"
	StateError      StatusState = "error"
)

// RunStatus is the single mutable progress record exposed to pollers.
// Exactly one exists; every write replaces the previous value.
type RunStatus struct {
	State       StatusState `json:"status" bson:"status"`
	Message     string      `json:"message" bson:"message"`
	CurrentTask string      `json:"currentTask" bson:"currentTask"`
	Progress    int         `json:"progress" bson:"progress"`
	LastUpdated time.Time   `json:"lastUpdated" bson:"lastUpdated"`
}

// IdleStatus is the status before any run has happened
func IdleStatus(now time.Time) RunStatus {
	return RunStatus{
		State:       StateIdle,
		Message:     "No run in progress",
		Progress:    0,
		LastUpdated: now,
	}
}

// ProcessingStatus builds a mid-run status for the given phase
func ProcessingStatus(phase Phase, task string, now time.Time) RunStatus {
	return RunStatus{
		State:       StateProcessing,
		Message:     "Batch run in progress",
		CurrentTask: task,
		Progress:    phase.Progress(),
		LastUpdated: now,
	}
}

// CompleteStatus builds the terminal status for a successful run
func CompleteStatus(message string, now time.Time) RunStatus {
	return RunStatus{
		State:       StateComplete,
		Message:     message,
		CurrentTask: "done",
		Progress:    100,
		LastUpdated: now,
	}
}

// ErrorStatus builds the terminal status for a failed run
func ErrorStatus(message string, now time.Time) RunStatus {
	return RunStatus{
		State:       StateError,
		Message:     message,
		CurrentTask: "failed",
		Progress:    100,
		LastUpdated: now,
	}
}

// InProgress reports whether the status indicates an active run
func (s RunStatus) InProgress() bool {
	return s.State == StateProcessing
}
