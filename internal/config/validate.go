package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a pipeline
// definition. All validation errors are configuration errors: they are
// reported before any execution starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a pipeline definition for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *File) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if p.Name == "" {
		errs = append(errs, ValidationError{Field: "pipeline.name", Message: "is required"})
	}
	if len(p.Stages) == 0 {
		errs = append(errs, ValidationError{Field: "pipeline.stages", Message: "at least one stage is required"})
	}

	if p.Options.BuildTimeout != "" {
		if _, err := time.ParseDuration(p.Options.BuildTimeout); err != nil {
			errs = append(errs, ValidationError{
				Field:   "pipeline.options.build_timeout",
				Message: fmt.Sprintf("invalid duration %q", p.Options.BuildTimeout),
			})
		}
	}
	if p.Options.OutputLimit < 0 {
		errs = append(errs, ValidationError{Field: "pipeline.options.output_limit", Message: "must not be negative"})
	}

	validateHookSet(p.Hooks, "pipeline.hooks", &errs)
	validateStages(p.Stages, "pipeline.stages", &errs)

	return errs
}

// validateStages checks one level of siblings and recurses into children.
func validateStages(stages []Stage, prefix string, errs *[]ValidationError) {
	seen := make(map[string]bool)
	for i, s := range stages {
		field := fmt.Sprintf("%s[%d]", prefix, i)

		if s.ID == "" {
			*errs = append(*errs, ValidationError{Field: field + ".id", Message: "is required"})
		} else if seen[s.ID] {
			*errs = append(*errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate sibling stage ID %q", s.ID),
			})
		}
		seen[s.ID] = true

		validateStage(s, field, errs)
	}
}

// validateStage checks a single stage and recurses into nested stages.
func validateStage(s Stage, field string, errs *[]ValidationError) {
	variants := 0
	if s.Run != "" {
		variants++
	}
	if s.Gate != nil {
		variants++
	}
	if len(s.Parallel) > 0 {
		variants++
	}
	if len(s.Stages) > 0 {
		variants++
	}
	if variants == 0 {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: "stage must set one of run, gate, parallel, stages",
		})
	}
	if variants > 1 {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: "run, gate, parallel and stages are mutually exclusive",
		})
	}

	if s.BestEffort && s.Run == "" {
		*errs = append(*errs, ValidationError{
			Field:   field + ".best_effort",
			Message: "only valid on command stages",
		})
	}

	if s.Gate != nil {
		if s.Gate.Prompt == "" {
			*errs = append(*errs, ValidationError{Field: field + ".gate.prompt", Message: "is required"})
		}
		if s.Gate.Timeout != "" {
			if _, err := time.ParseDuration(s.Gate.Timeout); err != nil {
				*errs = append(*errs, ValidationError{
					Field:   field + ".gate.timeout",
					Message: fmt.Sprintf("invalid duration %q", s.Gate.Timeout),
				})
			}
		}
	}

	validateHookSet(s.Hooks, field+".hooks", errs)

	if len(s.Parallel) > 0 {
		validateStages(s.Parallel, field+".parallel", errs)
	}
	if len(s.Stages) > 0 {
		validateStages(s.Stages, field+".stages", errs)
	}
}

// validateHookSet checks every hook in a hook set.
func validateHookSet(h HookSet, prefix string, errs *[]ValidationError) {
	for scope, hooks := range map[string][]Hook{
		"always":     h.Always,
		"on_success": h.OnSuccess,
		"on_failure": h.OnFailure,
	} {
		for i, hook := range hooks {
			field := fmt.Sprintf("%s.%s[%d]", prefix, scope, i)
			switch {
			case hook.Archive != nil && hook.Notify != "":
				*errs = append(*errs, ValidationError{Field: field, Message: "archive and notify are mutually exclusive"})
			case hook.Archive == nil && hook.Notify == "":
				*errs = append(*errs, ValidationError{Field: field, Message: "hook must set archive or notify"})
			case hook.Archive != nil && hook.Archive.Pattern == "":
				*errs = append(*errs, ValidationError{Field: field + ".archive.pattern", Message: "is required"})
			}
		}
	}
}
