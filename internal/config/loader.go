package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultDiscardCount is the number of build records kept when
// options.discard_count is not set.
const DefaultDiscardCount = 10

// Load reads and parses a pipeline definition from the given YAML file path.
// After parsing, it applies defaults for unset options.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing pipeline YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a pipeline definition in standard locations and
// loads the first one found. Search order: ./conveyor.yaml, ./pipeline.yaml,
// ~/.conveyor/pipeline.yaml
func LoadDefault() (*File, error) {
	candidates := []string{"conveyor.yaml", "pipeline.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".conveyor", "pipeline.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no pipeline definition found (searched: %v)", candidates)
}

// applyDefaults fills in unset global options.
func applyDefaults(cfg *File) {
	if cfg.Pipeline.Options.DiscardCount <= 0 {
		cfg.Pipeline.Options.DiscardCount = DefaultDiscardCount
	}
}
