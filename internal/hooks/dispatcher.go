// Package hooks dispatches outcome-scoped post-actions after a stage
// reaches a terminal status. Hooks cannot fail a pipeline: their errors
// are collected for the build record and logged, never propagated into
// stage status.
package hooks

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/lucasnoah/conveyor/internal/artifact"
	"github.com/lucasnoah/conveyor/internal/command"
	"github.com/lucasnoah/conveyor/internal/envctx"
	"github.com/lucasnoah/conveyor/internal/graph"
)

// notifyTimeout bounds a single notify command so a stuck hook cannot
// hold the build open after the root is terminal.
const notifyTimeout = 2 * time.Minute

// Dispatcher runs archive and notify hooks for one build.
type Dispatcher struct {
	invoker  *command.Invoker
	registry *artifact.Registry
	destDir  string // build artifact directory
	workDir  string // build workdir, base for patterns and notify commands
	progress io.Writer
}

// NewDispatcher creates a Dispatcher writing artifacts under destDir.
func NewDispatcher(invoker *command.Invoker, registry *artifact.Registry, destDir, workDir string) *Dispatcher {
	return &Dispatcher{
		invoker:  invoker,
		registry: registry,
		destDir:  destDir,
		workDir:  workDir,
	}
}

// SetProgress sets a writer for live progress output.
func (d *Dispatcher) SetProgress(w io.Writer) {
	d.progress = w
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.progress != nil {
		fmt.Fprintf(d.progress, "  → "+format+"\n", args...)
	}
}

// Dispatch runs the hooks selected by the stage's terminal status:
// always hooks unconditionally, on_success for Succeeded, on_failure for
// Failed and Aborted. Skipped stages never ran, so no hooks fire for
// them. Hooks run in registration order; every hook error is returned
// for recording.
func (d *Dispatcher) Dispatch(stageID string, hooks graph.Hooks, status graph.Status, env *envctx.Context) []string {
	if status == graph.StatusSkipped {
		return nil
	}

	selected := append([]graph.HookAction{}, hooks.Always...)
	switch {
	case status == graph.StatusSucceeded:
		selected = append(selected, hooks.OnSuccess...)
	case status.Failure():
		selected = append(selected, hooks.OnFailure...)
	}

	var failures []string
	for _, h := range selected {
		if err := d.runHook(stageID, h, env); err != nil {
			d.logf("hook failed for stage %s: %v", stageID, err)
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// runHook executes a single archive or notify action.
func (d *Dispatcher) runHook(stageID string, h graph.HookAction, env *envctx.Context) error {
	switch {
	case h.Archive != nil:
		return d.runArchive(stageID, h.Archive, env)
	case h.Notify != "":
		return d.runNotify(stageID, h.Notify, env)
	}
	return nil
}

// runArchive registers matching files as build artifacts.
func (d *Dispatcher) runArchive(stageID string, a *graph.ArchiveAction, env *envctx.Context) error {
	sourceDir := d.workDir
	if a.Source != "" {
		sourceDir = filepath.Join(d.workDir, env.Expand(a.Source))
	}

	archived, err := d.registry.Archive(d.destDir, stageID, env.Expand(a.Pattern), sourceDir, a.AllowEmpty)
	if err != nil {
		return fmt.Errorf("archive %q: %w", a.Pattern, err)
	}
	d.logf("archived %d file(s) for stage %s (%s)", len(archived), stageID, a.Pattern)
	return nil
}

// runNotify runs a notification command. Hooks run after terminal
// status, so they get their own deadline instead of the build context:
// always hooks must still run when the build itself timed out.
func (d *Dispatcher) runNotify(stageID, line string, env *envctx.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	result, err := d.invoker.Execute(ctx, d.workDir, env.Environ(), env.Expand(line))
	if err != nil {
		return fmt.Errorf("notify %q: %w", line, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("notify %q: exit code %d", line, result.ExitCode)
	}
	d.logf("notified for stage %s (%s)", stageID, line)
	return nil
}
