package graph

// Status is the lifecycle state of a node. Transitions are monotonic:
// Pending → Running → terminal, mutated only by the executor.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusSkipped:
		return true
	}
	return false
}

// Failure reports whether s counts as a failure outcome for hook scoping:
// failed and aborted stages trigger on_failure hooks.
func (s Status) Failure() bool {
	return s == StatusFailed || s == StatusAborted
}

func (s Status) String() string {
	return string(s)
}
