// Package gate implements timed human-approval gates. A gate is a
// single-resolution future: the first decision wins and later attempts
// are silently ignored, matching the single-decision-maker model.
package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the terminal outcome of a gate.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionTimedOut Decision = "timed_out"
	DecisionAborted  Decision = "aborted"
)

// Resolution records how a gate was resolved and by whom.
type Resolution struct {
	ID       string    `json:"id"` // decision id, for the audit trail
	Decision Decision  `json:"decision"`
	Approver string    `json:"approver,omitempty"`
	At       time.Time `json:"at"`
}

// Gate is one pending approval. It is created when its leaf starts
// running and removed from the controller once resolved.
type Gate struct {
	id      string
	stage   string
	prompt  string
	role    string
	opened  time.Time
	timeout time.Duration

	mu       sync.Mutex
	resolved bool
	ch       chan Resolution // buffered; carries the winning resolution
}

// ID returns the gate's unique identifier.
func (g *Gate) ID() string { return g.id }

// Stage returns the id of the stage that opened the gate.
func (g *Gate) Stage() string { return g.stage }

// Prompt returns the approval prompt text.
func (g *Gate) Prompt() string { return g.prompt }

// ApproverRole returns the role expected to resolve the gate.
func (g *Gate) ApproverRole() string { return g.role }

// resolve applies a resolution if the gate is still open. The first
// resolution wins; losers are discarded without error.
func (g *Gate) resolve(r Resolution) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolved {
		return false
	}
	g.resolved = true
	g.ch <- r
	return true
}

// Await blocks until the gate is resolved, its own timeout elapses, or
// done is closed (the build-level timeout). It never returns before an
// external decision unless one of the timers fires.
func (g *Gate) Await(done <-chan struct{}) Resolution {
	var timer <-chan time.Time
	if g.timeout > 0 {
		t := time.NewTimer(g.timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case r := <-g.ch:
		return r
	case <-timer:
		// An approval may land while the timer fires; resolve serializes
		// the race and exactly one resolution reaches the channel.
		g.resolve(Resolution{ID: uuid.NewString(), Decision: DecisionTimedOut, At: time.Now().UTC()})
		return <-g.ch
	case <-done:
		g.resolve(Resolution{ID: uuid.NewString(), Decision: DecisionAborted, At: time.Now().UTC()})
		return <-g.ch
	}
}

// Info is a read-only snapshot of a pending gate for listings.
type Info struct {
	ID           string    `json:"id"`
	Stage        string    `json:"stage"`
	Prompt       string    `json:"prompt"`
	ApproverRole string    `json:"approver_role,omitempty"`
	OpenedAt     time.Time `json:"opened_at"`
}

// Controller tracks the pending gates of the running build.
type Controller struct {
	mu      sync.Mutex
	pending map[string]*Gate
}

// NewController creates an empty Controller.
func NewController() *Controller {
	return &Controller{pending: make(map[string]*Gate)}
}

// Open registers a new pending gate and returns it.
func (c *Controller) Open(stage, prompt, role string, timeout time.Duration) *Gate {
	g := &Gate{
		id:      uuid.NewString(),
		stage:   stage,
		prompt:  prompt,
		role:    role,
		opened:  time.Now().UTC(),
		timeout: timeout,
		ch:      make(chan Resolution, 1),
	}
	c.mu.Lock()
	c.pending[g.id] = g
	c.mu.Unlock()
	return g
}

// Close removes a gate from the pending set. Called by the executor once
// the gate's leaf is terminal.
func (c *Controller) Close(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Approve resolves a pending gate with the given approver identity.
// Approving an already-resolved gate is a no-op (first decision wins);
// approving an unknown gate id is an error.
func (c *Controller) Approve(id, approver string) error {
	if approver == "" {
		return fmt.Errorf("approver identity is required")
	}
	c.mu.Lock()
	g, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("gate %q not found", id)
	}
	g.resolve(Resolution{
		ID:       uuid.NewString(),
		Decision: DecisionApproved,
		Approver: approver,
		At:       time.Now().UTC(),
	})
	return nil
}

// Pending returns snapshots of all gates awaiting a decision.
func (c *Controller) Pending() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Info, 0, len(c.pending))
	for _, g := range c.pending {
		g.mu.Lock()
		resolved := g.resolved
		g.mu.Unlock()
		if resolved {
			continue
		}
		out = append(out, Info{
			ID:           g.id,
			Stage:        g.stage,
			Prompt:       g.prompt,
			ApproverRole: g.role,
			OpenedAt:     g.opened,
		})
	}
	return out
}
