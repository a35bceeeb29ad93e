package config

// File is the top-level structure parsed from pipeline YAML.
type File struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline defines the full pipeline: metadata, options, environment,
// pipeline-level hooks, and the stage tree.
type Pipeline struct {
	Name    string            `yaml:"name"`
	Options Options           `yaml:"options"`
	Env     map[string]string `yaml:"env"`
	Hooks   HookSet           `yaml:"hooks"`
	Stages  []Stage           `yaml:"stages"`
}

// Options holds global build options.
type Options struct {
	BuildTimeout string `yaml:"build_timeout"` // wall-clock limit, e.g. "2h"; empty = unbounded
	DiscardCount int    `yaml:"discard_count"` // build records kept; 0 = use default
	OutputLimit  int    `yaml:"output_limit"`  // captured bytes per stream; 0 = unlimited
}

// Stage defines one node of the stage tree. Exactly one of Run, Gate,
// Parallel, or Stages must be set.
type Stage struct {
	ID         string            `yaml:"id"`
	Run        string            `yaml:"run"`
	BestEffort bool              `yaml:"best_effort"`
	Workdir    string            `yaml:"workdir"`
	Gate       *GateSpec         `yaml:"gate"`
	Parallel   []Stage           `yaml:"parallel"`
	Stages     []Stage           `yaml:"stages"`
	Env        map[string]string `yaml:"env"`
	Hooks      HookSet           `yaml:"hooks"`
}

// GateSpec defines a human-approval gate.
type GateSpec struct {
	Prompt       string `yaml:"prompt"`
	Timeout      string `yaml:"timeout"` // empty = wait until the build timeout
	ApproverRole string `yaml:"approver_role"`
}

// HookSet groups post-actions by the outcome class that triggers them.
type HookSet struct {
	Always    []Hook `yaml:"always"`
	OnSuccess []Hook `yaml:"on_success"`
	OnFailure []Hook `yaml:"on_failure"`
}

// Hook is a single post-action. Exactly one of Archive or Notify must be set.
type Hook struct {
	Archive *ArchiveSpec `yaml:"archive"`
	Notify  string       `yaml:"notify"`
}

// ArchiveSpec declares files to retain as build artifacts.
type ArchiveSpec struct {
	Pattern    string `yaml:"pattern"`
	Source     string `yaml:"source"` // directory the pattern is relative to; empty = build workdir
	AllowEmpty bool   `yaml:"allow_empty"`
}
