package command

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the structured output of one command invocation. Output is
// captured in full even on failure; truncation only happens when an
// explicit output limit is configured.
type Result struct {
	Command    string        `json:"command"`
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"stdout,omitempty"`
	Stderr     string        `json:"stderr,omitempty"`
	Duration   time.Duration `json:"duration"`
	TimedOut   bool          `json:"timed_out,omitempty"`
	Truncated  bool          `json:"truncated,omitempty"`
}

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements Runner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, env []string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Invoker wraps a Runner with duration measurement and the configured
// output retention limit.
type Invoker struct {
	cmd         Runner
	outputLimit int // bytes kept per stream; 0 = unlimited
}

// NewInvoker creates an Invoker with no output limit.
func NewInvoker(cmd Runner) *Invoker {
	return &Invoker{cmd: cmd}
}

// SetOutputLimit caps the captured bytes kept per stream. The head of the
// output is kept; downstream reporting relies on captured output, so this
// is never applied implicitly.
func (i *Invoker) SetOutputLimit(n int) {
	i.outputLimit = n
}

// Execute runs one command line in dir with the given environment.
// A non-zero exit code is not an error here: failure policy is applied by
// the executor. The returned error is reserved for infrastructure
// failures (command could not be started at all).
func (i *Invoker) Execute(ctx context.Context, dir string, env []string, line string) (*Result, error) {
	start := time.Now()
	stdout, stderr, exitCode, err := i.cmd.Run(ctx, dir, env, line)
	duration := time.Since(start)

	result := &Result{
		Command:  line,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: duration,
	}
	i.applyLimit(result)

	if err != nil {
		// Deadline or cancellation means the build timeout fired and the
		// process was signalled; report it as a timed-out result rather
		// than an infrastructure error so output stays available.
		if ctx.Err() != nil {
			result.TimedOut = true
			result.ExitCode = -1
			return result, nil
		}
		return result, fmt.Errorf("run command %q: %w", line, err)
	}

	if ctx.Err() != nil {
		result.TimedOut = true
	}
	return result, nil
}

// applyLimit truncates captured output to the configured limit.
func (i *Invoker) applyLimit(r *Result) {
	if i.outputLimit <= 0 {
		return
	}
	if len(r.Stdout) > i.outputLimit {
		r.Stdout = r.Stdout[:i.outputLimit]
		r.Truncated = true
	}
	if len(r.Stderr) > i.outputLimit {
		r.Stderr = r.Stderr[:i.outputLimit]
		r.Truncated = true
	}
}
