package graph

import "time"

// Kind identifies the three node variants of the stage tree.
type Kind string

const (
	KindLeaf     Kind = "leaf"
	KindSequence Kind = "sequence"
	KindParallel Kind = "parallel"
)

// FailurePolicy controls how a command's non-zero exit propagates.
type FailurePolicy string

const (
	// PolicyStrict surfaces a non-zero exit as a stage failure.
	PolicyStrict FailurePolicy = "strict"
	// PolicyBestEffort records a non-zero exit but propagates success.
	// This is how scan steps report findings without blocking the build.
	PolicyBestEffort FailurePolicy = "best_effort"
)

// CommandAction is the executable unit of a command leaf. It is owned by
// its node and stateless between invocations.
type CommandAction struct {
	Line   string
	Dir    string // relative to the build workdir; empty = workdir itself
	Policy FailurePolicy
}

// GateAction is the approval unit of a gate leaf.
type GateAction struct {
	Prompt       string
	Timeout      time.Duration // 0 = wait until the build timeout
	ApproverRole string
}

// ArchiveAction declares files a post-hook retains as artifacts.
type ArchiveAction struct {
	Pattern    string
	Source     string // relative to the build workdir; empty = workdir itself
	AllowEmpty bool
}

// HookAction is one post-action: exactly one of Archive or Notify is set.
type HookAction struct {
	Archive *ArchiveAction
	Notify  string
}

// Hooks groups post-actions by outcome class.
type Hooks struct {
	Always    []HookAction
	OnSuccess []HookAction
	OnFailure []HookAction
}

// Node is one unit of pipeline structure. The tree is built once from the
// definition and never mutated during execution; all run state lives in
// the executor's result tree.
type Node struct {
	ID       string
	Kind     Kind
	Children []*Node

	// Leaf action: exactly one of Command or Gate for KindLeaf, nil otherwise.
	Command *CommandAction
	Gate    *GateAction

	Env   map[string]string // stage-scoped bindings, shadow pipeline scope
	Hooks Hooks
}

// Walk visits n and all descendants depth-first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node) { count++ })
	return count
}
