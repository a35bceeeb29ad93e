package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasnoah/conveyor/internal/artifact"
	"github.com/lucasnoah/conveyor/internal/command"
	"github.com/lucasnoah/conveyor/internal/envctx"
	"github.com/lucasnoah/conveyor/internal/graph"
)

// mockRunner records every command line it runs and fails lines listed in
// failing.
type mockRunner struct {
	lines   []string
	failing map[string]int // line -> exit code
	err     error
}

func (m *mockRunner) Run(ctx context.Context, dir string, env []string, line string) (string, string, int, error) {
	m.lines = append(m.lines, line)
	if m.err != nil {
		return "", "", -1, m.err
	}
	if code, ok := m.failing[line]; ok {
		return "", "", code, nil
	}
	return "", "", 0, nil
}

func newDispatcher(t *testing.T, runner command.Runner) (*Dispatcher, string) {
	t.Helper()
	workDir := t.TempDir()
	d := NewDispatcher(command.NewInvoker(runner), artifact.NewRegistry(), t.TempDir(), workDir)
	return d, workDir
}

func notify(line string) graph.HookAction {
	return graph.HookAction{Notify: line}
}

func TestDispatch_ScopeSelection(t *testing.T) {
	hookSet := graph.Hooks{
		Always:    []graph.HookAction{notify("always-hook")},
		OnSuccess: []graph.HookAction{notify("success-hook")},
		OnFailure: []graph.HookAction{notify("failure-hook")},
	}

	tests := []struct {
		status graph.Status
		want   []string
	}{
		{graph.StatusSucceeded, []string{"always-hook", "success-hook"}},
		{graph.StatusFailed, []string{"always-hook", "failure-hook"}},
		{graph.StatusAborted, []string{"always-hook", "failure-hook"}},
		{graph.StatusSkipped, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			runner := &mockRunner{}
			d, _ := newDispatcher(t, runner)
			failures := d.Dispatch("stage", hookSet, tt.status, envctx.New(nil))
			if len(failures) != 0 {
				t.Errorf("unexpected hook failures: %v", failures)
			}
			if len(runner.lines) != len(tt.want) {
				t.Fatalf("ran %v, want %v", runner.lines, tt.want)
			}
			for i, line := range tt.want {
				if runner.lines[i] != line {
					t.Errorf("hook[%d] = %q, want %q", i, runner.lines[i], line)
				}
			}
		})
	}
}

func TestDispatch_RegistrationOrder(t *testing.T) {
	runner := &mockRunner{}
	d, _ := newDispatcher(t, runner)

	hookSet := graph.Hooks{
		Always:    []graph.HookAction{notify("first"), notify("second")},
		OnSuccess: []graph.HookAction{notify("third")},
	}
	d.Dispatch("stage", hookSet, graph.StatusSucceeded, envctx.New(nil))

	want := []string{"first", "second", "third"}
	for i, line := range want {
		if runner.lines[i] != line {
			t.Errorf("hook[%d] = %q, want %q", i, runner.lines[i], line)
		}
	}
}

func TestDispatch_FailuresCollectedNotFatal(t *testing.T) {
	runner := &mockRunner{failing: map[string]int{"broken": 7}}
	d, _ := newDispatcher(t, runner)

	hookSet := graph.Hooks{
		Always: []graph.HookAction{notify("broken"), notify("still-runs")},
	}
	failures := d.Dispatch("stage", hookSet, graph.StatusSucceeded, envctx.New(nil))

	if len(failures) != 1 || !strings.Contains(failures[0], "exit code 7") {
		t.Errorf("failures = %v, want one exit-code-7 entry", failures)
	}
	if len(runner.lines) != 2 {
		t.Errorf("later hooks must still run after a failure: %v", runner.lines)
	}
}

func TestDispatch_NotifyInfrastructureError(t *testing.T) {
	runner := &mockRunner{err: errors.New("exec: sh not found")}
	d, _ := newDispatcher(t, runner)

	failures := d.Dispatch("stage", graph.Hooks{Always: []graph.HookAction{notify("x")}},
		graph.StatusSucceeded, envctx.New(nil))
	if len(failures) != 1 || !strings.Contains(failures[0], "sh not found") {
		t.Errorf("failures = %v", failures)
	}
}

func TestDispatch_NotifyExpandsEnv(t *testing.T) {
	runner := &mockRunner{}
	d, _ := newDispatcher(t, runner)

	env := envctx.New(map[string]string{"CHANNEL": "#builds"})
	d.Dispatch("stage", graph.Hooks{Always: []graph.HookAction{notify("post $CHANNEL")}},
		graph.StatusSucceeded, env)

	if len(runner.lines) != 1 || runner.lines[0] != "post #builds" {
		t.Errorf("lines = %v, want expanded command", runner.lines)
	}
}

func TestDispatch_Archive(t *testing.T) {
	runner := &mockRunner{}
	registry := artifact.NewRegistry()
	workDir := t.TempDir()
	destDir := t.TempDir()
	d := NewDispatcher(command.NewInvoker(runner), registry, destDir, workDir)

	if err := os.MkdirAll(filepath.Join(workDir, "target"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "target", "app.jar"), []byte("jar"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	hookSet := graph.Hooks{
		Always: []graph.HookAction{{Archive: &graph.ArchiveAction{Pattern: "$OUT/*.jar"}}},
	}
	env := envctx.New(map[string]string{"OUT": "target"})
	failures := d.Dispatch("build", hookSet, graph.StatusSucceeded, env)
	if len(failures) != 0 {
		t.Fatalf("archive failed: %v", failures)
	}

	artifacts := registry.List()
	if len(artifacts) != 1 || artifacts[0].Name != "app.jar" || artifacts[0].Stage != "build" {
		t.Errorf("artifacts = %+v", artifacts)
	}
}

func TestDispatch_ArchiveEmptyPattern(t *testing.T) {
	runner := &mockRunner{}
	d, _ := newDispatcher(t, runner)

	strict := graph.Hooks{
		OnSuccess: []graph.HookAction{{Archive: &graph.ArchiveAction{Pattern: "*.jar"}}},
	}
	failures := d.Dispatch("build", strict, graph.StatusSucceeded, envctx.New(nil))
	if len(failures) != 1 {
		t.Errorf("empty match without allow_empty should fail the hook: %v", failures)
	}

	tolerant := graph.Hooks{
		OnSuccess: []graph.HookAction{{Archive: &graph.ArchiveAction{Pattern: "*.jar", AllowEmpty: true}}},
	}
	failures = d.Dispatch("build", tolerant, graph.StatusSucceeded, envctx.New(nil))
	if len(failures) != 0 {
		t.Errorf("allow_empty archive should not fail: %v", failures)
	}
}
