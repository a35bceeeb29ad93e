package graph

import (
	"fmt"
	"time"

	"github.com/lucasnoah/conveyor/internal/config"
)

// Build converts a validated pipeline definition into an immutable stage
// tree. The root is a Sequence named after the pipeline carrying the
// pipeline-level hooks. Build fails fast on structural errors (duplicate
// sibling ids, ambiguous stage variants) so nothing executes against a
// malformed graph; the tree is built from nested blocks, so cycles cannot
// occur by construction.
func Build(p *config.Pipeline) (*Node, error) {
	children, err := buildStages(p.Stages, "pipeline.stages")
	if err != nil {
		return nil, err
	}

	return &Node{
		ID:       p.Name,
		Kind:     KindSequence,
		Children: children,
		Hooks:    buildHooks(p.Hooks),
	}, nil
}

// buildStages converts one level of siblings, rejecting duplicate ids.
func buildStages(stages []config.Stage, path string) ([]*Node, error) {
	seen := make(map[string]bool)
	nodes := make([]*Node, 0, len(stages))
	for i, s := range stages {
		if s.ID == "" {
			return nil, fmt.Errorf("%s[%d]: stage id is required", path, i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%s[%d]: duplicate sibling stage id %q", path, i, s.ID)
		}
		seen[s.ID] = true

		node, err := buildStage(s, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// buildStage converts a single stage into its node variant.
func buildStage(s config.Stage, path string) (*Node, error) {
	node := &Node{
		ID:    s.ID,
		Env:   s.Env,
		Hooks: buildHooks(s.Hooks),
	}

	switch {
	case s.Run != "":
		if s.Gate != nil || len(s.Parallel) > 0 || len(s.Stages) > 0 {
			return nil, fmt.Errorf("%s: run, gate, parallel and stages are mutually exclusive", path)
		}
		policy := PolicyStrict
		if s.BestEffort {
			policy = PolicyBestEffort
		}
		node.Kind = KindLeaf
		node.Command = &CommandAction{Line: s.Run, Dir: s.Workdir, Policy: policy}

	case s.Gate != nil:
		if len(s.Parallel) > 0 || len(s.Stages) > 0 {
			return nil, fmt.Errorf("%s: run, gate, parallel and stages are mutually exclusive", path)
		}
		var timeout time.Duration
		if s.Gate.Timeout != "" {
			d, err := time.ParseDuration(s.Gate.Timeout)
			if err != nil {
				return nil, fmt.Errorf("%s.gate.timeout: invalid duration %q", path, s.Gate.Timeout)
			}
			timeout = d
		}
		node.Kind = KindLeaf
		node.Gate = &GateAction{
			Prompt:       s.Gate.Prompt,
			Timeout:      timeout,
			ApproverRole: s.Gate.ApproverRole,
		}

	case len(s.Parallel) > 0:
		if len(s.Stages) > 0 {
			return nil, fmt.Errorf("%s: run, gate, parallel and stages are mutually exclusive", path)
		}
		children, err := buildStages(s.Parallel, path+".parallel")
		if err != nil {
			return nil, err
		}
		node.Kind = KindParallel
		node.Children = children

	case len(s.Stages) > 0:
		children, err := buildStages(s.Stages, path+".stages")
		if err != nil {
			return nil, err
		}
		node.Kind = KindSequence
		node.Children = children

	default:
		return nil, fmt.Errorf("%s: stage must set one of run, gate, parallel, stages", path)
	}

	return node, nil
}

// buildHooks converts config hook lists, preserving registration order.
func buildHooks(h config.HookSet) Hooks {
	return Hooks{
		Always:    buildHookList(h.Always),
		OnSuccess: buildHookList(h.OnSuccess),
		OnFailure: buildHookList(h.OnFailure),
	}
}

func buildHookList(hooks []config.Hook) []HookAction {
	if len(hooks) == 0 {
		return nil
	}
	out := make([]HookAction, 0, len(hooks))
	for _, h := range hooks {
		action := HookAction{Notify: h.Notify}
		if h.Archive != nil {
			action.Archive = &ArchiveAction{
				Pattern:    h.Archive.Pattern,
				Source:     h.Archive.Source,
				AllowEmpty: h.Archive.AllowEmpty,
			}
		}
		out = append(out, action)
	}
	return out
}
