// Package executor walks the stage tree and drives each node through its
// lifecycle: commands through the runner, gates through the controller,
// every terminal node through the post-action dispatcher, and the final
// outcome into the build record store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/lucasnoah/conveyor/internal/artifact"
	"github.com/lucasnoah/conveyor/internal/command"
	"github.com/lucasnoah/conveyor/internal/db"
	"github.com/lucasnoah/conveyor/internal/envctx"
	"github.com/lucasnoah/conveyor/internal/gate"
	"github.com/lucasnoah/conveyor/internal/graph"
	"github.com/lucasnoah/conveyor/internal/hooks"
	"github.com/lucasnoah/conveyor/internal/record"
)

// ErrBusy is returned when Run is called while another build holds the
// single-build lock. There is no queueing.
var ErrBusy = errors.New("another build is already running")

// Options configures one build.
type Options struct {
	WorkDir      string        // directory commands run in
	BuildTimeout time.Duration // wall-clock limit; 0 = unbounded
	DiscardCount int           // build records kept; 0 = no eviction
}

// Executor runs builds one at a time.
type Executor struct {
	invoker  *command.Invoker
	gates    *gate.Controller
	store    *record.Store
	db       *db.DB
	progress io.Writer

	lock sync.Mutex // the process-wide single-build lock
}

// New creates an Executor.
func New(invoker *command.Invoker, gates *gate.Controller, store *record.Store, database *db.DB) *Executor {
	return &Executor{
		invoker: invoker,
		gates:   gates,
		store:   store,
		db:      database,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Executor) SetProgress(w io.Writer) {
	e.progress = w
}

func (e *Executor) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// build carries the per-run state threaded through every node visit.
type build struct {
	number     int
	ctx        context.Context
	workDir    string
	registry   *artifact.Registry
	dispatcher *hooks.Dispatcher
}

// Run executes the stage tree and returns the finalized build record.
// It acquires the single-build lock up front and returns ErrBusy
// immediately when it is held. On expiry of the build timeout, every
// node still pending or running is aborted, outstanding gate waits are
// cancelled, and in-flight commands receive a termination signal.
func (e *Executor) Run(root *graph.Node, env *envctx.Context, opts Options) (*record.BuildRecord, error) {
	if !e.lock.TryLock() {
		return nil, ErrBusy
	}
	defer e.lock.Unlock()

	number, err := e.store.NextNumber()
	if err != nil {
		return nil, fmt.Errorf("allocate build number: %w", err)
	}

	rec := &record.BuildRecord{
		Number:    number,
		Pipeline:  root.ID,
		Status:    graph.StatusRunning,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := e.store.Create(rec); err != nil {
		return nil, fmt.Errorf("create build record: %w", err)
	}
	_ = e.db.LogBuildEvent(number, "build_started", "", root.ID)
	e.logf("build #%d started (%s)", number, root.ID)

	ctx := context.Background()
	if opts.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.BuildTimeout)
		defer cancel()
	}

	registry := artifact.NewRegistry()
	dispatcher := hooks.NewDispatcher(e.invoker, registry, e.store.ArtifactsDir(number), opts.WorkDir)
	dispatcher.SetProgress(e.progress)

	b := &build{
		number:     number,
		ctx:        ctx,
		workDir:    opts.WorkDir,
		registry:   registry,
		dispatcher: dispatcher,
	}

	result := e.runNode(b, root, env)

	rec.Root = result
	rec.Status = result.Status
	rec.Artifacts = registry.List()
	rec.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if err := e.store.Save(rec); err != nil {
		return rec, fmt.Errorf("save build record: %w", err)
	}
	_ = e.db.LogBuildEvent(number, "build_finished", "", rec.Status.String())
	e.logf("build #%d finished: %s", number, rec.Status)

	if opts.DiscardCount > 0 {
		evicted, err := e.store.ApplyRetention(opts.DiscardCount)
		if err != nil {
			e.logf("retention: %v", err)
		}
		for _, n := range evicted {
			_ = e.db.LogBuildEvent(number, "build_evicted", "", fmt.Sprintf("evicted build %d", n))
		}
	}

	return rec, nil
}

// runNode drives one node to a terminal status and dispatches its hooks.
// Nodes that never enter Running (skipped or aborted before start) get
// no hooks; their terminal status is still recorded for the report tree.
func (e *Executor) runNode(b *build, node *graph.Node, env *envctx.Context) *record.StageResult {
	if b.ctx.Err() != nil {
		return markStatus(node, graph.StatusAborted)
	}

	scope := env.Enter(node.Env)
	_ = e.db.LogBuildEvent(b.number, "stage_running", node.ID, "")

	var res *record.StageResult
	switch node.Kind {
	case graph.KindSequence:
		res = e.runSequence(b, node, scope)
	case graph.KindParallel:
		res = e.runParallel(b, node, scope)
	default:
		if node.Gate != nil {
			res = e.runGate(b, node, scope)
		} else {
			res = e.runCommand(b, node, scope)
		}
	}

	res.HookErrors = b.dispatcher.Dispatch(node.ID, node.Hooks, res.Status, scope)
	_ = e.db.LogBuildEvent(b.number, "stage_"+res.Status.String(), node.ID, res.Reason)
	return res
}

// runSequence runs children strictly in order. A propagated failure
// skips the remaining siblings; a build timeout aborts them.
func (e *Executor) runSequence(b *build, node *graph.Node, scope *envctx.Context) *record.StageResult {
	children := make([]*record.StageResult, 0, len(node.Children))
	failed := false

	for _, child := range node.Children {
		switch {
		case b.ctx.Err() != nil:
			children = append(children, markStatus(child, graph.StatusAborted))
		case failed:
			children = append(children, markStatus(child, graph.StatusSkipped))
		default:
			res := e.runNode(b, child, scope)
			children = append(children, res)
			if res.Propagated == graph.StatusFailed || res.Propagated == graph.StatusAborted {
				failed = true
			}
		}
	}

	status := aggregate(children)
	return &record.StageResult{
		ID:         node.ID,
		Kind:       graph.KindSequence,
		Status:     status,
		Propagated: status,
		Children:   children,
	}
}

// runParallel starts all children concurrently and awaits every one of
// them. A failing child never cancels its siblings; the node is Failed
// only once all children are terminal.
func (e *Executor) runParallel(b *build, node *graph.Node, scope *envctx.Context) *record.StageResult {
	children := make([]*record.StageResult, len(node.Children))

	var wg sync.WaitGroup
	for i, child := range node.Children {
		wg.Add(1)
		go func(i int, child *graph.Node) {
			defer wg.Done()
			children[i] = e.runNode(b, child, scope)
		}(i, child)
	}
	wg.Wait()

	status := aggregate(children)
	return &record.StageResult{
		ID:         node.ID,
		Kind:       graph.KindParallel,
		Status:     status,
		Propagated: status,
		Children:   children,
	}
}

// runCommand executes a command leaf and applies its failure policy.
func (e *Executor) runCommand(b *build, node *graph.Node, scope *envctx.Context) *record.StageResult {
	action := node.Command
	dir := b.workDir
	if action.Dir != "" {
		dir = filepath.Join(b.workDir, scope.Expand(action.Dir))
	}
	line := scope.Expand(action.Line)

	e.logf("stage %s: running %q", node.ID, line)
	result, err := e.invoker.Execute(b.ctx, dir, scope.Environ(), line)

	res := &record.StageResult{
		ID:   node.ID,
		Kind: graph.KindLeaf,
	}
	if result != nil {
		res.ExitCode = result.ExitCode
		res.Stdout = result.Stdout
		res.Stderr = result.Stderr
		res.DurationMs = result.Duration.Milliseconds()
	}

	switch {
	case err != nil:
		res.Status = graph.StatusFailed
		res.Reason = err.Error()
	case result.TimedOut && b.ctx.Err() != nil:
		res.Status = graph.StatusAborted
		res.Reason = "build timeout"
	case result.ExitCode != 0:
		res.Status = graph.StatusFailed
		res.Reason = fmt.Sprintf("exit code %d", result.ExitCode)
	default:
		res.Status = graph.StatusSucceeded
	}

	// Best-effort absorbs command failures for propagation while the
	// recorded status keeps the failure visible. Aborts are never
	// absorbed: a build timeout fails the build regardless of policy.
	res.Propagated = res.Status
	if res.Status == graph.StatusFailed && action.Policy == graph.PolicyBestEffort {
		res.Propagated = graph.StatusSucceeded
	}

	if result != nil {
		_ = e.db.LogCommandRun(
			b.number, node.ID, string(action.Policy),
			result.ExitCode, result.Duration.Milliseconds(),
			res.Status == graph.StatusSucceeded, result.TimedOut,
		)
	}
	e.logf("stage %s: %s", node.ID, res.Status)
	return res
}

// runGate opens a pending gate and suspends the branch until it is
// resolved, its own timeout elapses, or the build timeout fires.
func (e *Executor) runGate(b *build, node *graph.Node, scope *envctx.Context) *record.StageResult {
	action := node.Gate
	g := e.gates.Open(node.ID, scope.Expand(action.Prompt), action.ApproverRole, action.Timeout)
	defer e.gates.Close(g.ID())

	e.logf("stage %s: awaiting approval (gate %s)", node.ID, g.ID())
	start := time.Now()
	r := g.Await(b.ctx.Done())

	res := &record.StageResult{
		ID:         node.ID,
		Kind:       graph.KindLeaf,
		DurationMs: time.Since(start).Milliseconds(),
	}
	switch r.Decision {
	case gate.DecisionApproved:
		res.Status = graph.StatusSucceeded
		res.Approver = r.Approver
	case gate.DecisionTimedOut:
		// Equivalent to a stage failure for propagation.
		res.Status = graph.StatusFailed
		res.Reason = "gate timed out"
	default:
		res.Status = graph.StatusAborted
		res.Reason = "build timeout"
	}
	res.Propagated = res.Status

	_ = e.db.LogGateDecision(b.number, node.ID, g.ID(), r.ID, string(r.Decision), r.Approver)
	e.logf("stage %s: gate %s", node.ID, r.Decision)
	return res
}

// aggregate derives a composite node's status from its children's
// propagated statuses. An abort dominates, then failure; skipped
// children carry no weight of their own.
func aggregate(children []*record.StageResult) graph.Status {
	status := graph.StatusSucceeded
	for _, c := range children {
		switch c.Propagated {
		case graph.StatusAborted:
			return graph.StatusAborted
		case graph.StatusFailed:
			status = graph.StatusFailed
		}
	}
	return status
}

// markStatus builds a result subtree for nodes that never started:
// skipped after a sibling failure, or aborted by the build timeout.
func markStatus(node *graph.Node, status graph.Status) *record.StageResult {
	res := &record.StageResult{
		ID:         node.ID,
		Kind:       node.Kind,
		Status:     status,
		Propagated: status,
	}
	for _, child := range node.Children {
		res.Children = append(res.Children, markStatus(child, status))
	}
	return res
}
