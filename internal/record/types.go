package record

import (
	"github.com/lucasnoah/conveyor/internal/artifact"
	"github.com/lucasnoah/conveyor/internal/graph"
)

// BuildRecord is the durable summary of one pipeline execution.
type BuildRecord struct {
	Number     int                 `json:"number"`
	Pipeline   string              `json:"pipeline"`
	Status     graph.Status        `json:"status"` // succeeded, failed or aborted
	StartedAt  string              `json:"started_at"`
	FinishedAt string              `json:"finished_at,omitempty"`
	Root       *StageResult        `json:"root,omitempty"`
	Artifacts  []artifact.Artifact `json:"artifacts,omitempty"`
}

// StageResult is the per-node outcome tree referenced by a BuildRecord.
// Status is the recorded outcome; Propagated is what the parent saw,
// which differs for best-effort commands whose failures are absorbed.
type StageResult struct {
	ID         string         `json:"id"`
	Kind       graph.Kind     `json:"kind"`
	Status     graph.Status   `json:"status"`
	Propagated graph.Status   `json:"propagated"`
	ExitCode   int            `json:"exit_code,omitempty"`
	Stdout     string         `json:"stdout,omitempty"`
	Stderr     string         `json:"stderr,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Reason     string         `json:"reason,omitempty"`   // failure detail: gate timeout, abort cause
	Approver   string         `json:"approver,omitempty"` // identity that resolved a gate
	HookErrors []string       `json:"hook_errors,omitempty"`
	Children   []*StageResult `json:"children,omitempty"`
}

// Find returns the result for the given stage id within the subtree, or
// nil if absent.
func (r *StageResult) Find(id string) *StageResult {
	if r == nil {
		return nil
	}
	if r.ID == id {
		return r
	}
	for _, c := range r.Children {
		if found := c.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits the result and all descendants depth-first.
func (r *StageResult) Walk(fn func(*StageResult)) {
	if r == nil {
		return
	}
	fn(r)
	for _, c := range r.Children {
		c.Walk(fn)
	}
}
