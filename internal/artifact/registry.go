// Package artifact records the files a build retains for reporting.
// Archiving copies matched files into the build's artifact directory;
// the registry itself is safe for concurrent append from parallel
// branches.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Artifact is one archived file, keyed by the stage that archived it.
type Artifact struct {
	Stage  string `json:"stage"`
	Name   string `json:"name"`   // base name within the artifact directory
	Source string `json:"source"` // original path the file was copied from
	Path   string `json:"path"`   // stored path under the build directory
	Size   int64  `json:"size"`
}

// Registry accumulates artifacts for one build.
type Registry struct {
	mu        sync.Mutex
	artifacts []Artifact
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Archive matches pattern relative to sourceDir and copies every match
// into destDir/<stageID>/. With zero matches it succeeds when allowEmpty
// is true and fails otherwise; the error fails the calling hook, never
// the stage.
func (r *Registry) Archive(destDir, stageID, pattern, sourceDir string, allowEmpty bool) ([]Artifact, error) {
	matches, err := filepath.Glob(filepath.Join(sourceDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad artifact pattern %q: %w", pattern, err)
	}

	if len(matches) == 0 {
		if allowEmpty {
			return nil, nil
		}
		return nil, fmt.Errorf("no files match artifact pattern %q", pattern)
	}

	stageDir := filepath.Join(destDir, stageID)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", stageDir, err)
	}

	var archived []Artifact
	for _, src := range matches {
		info, err := os.Stat(src)
		if err != nil {
			return archived, fmt.Errorf("stat %s: %w", src, err)
		}
		if info.IsDir() {
			continue
		}

		dest := filepath.Join(stageDir, filepath.Base(src))
		size, err := copyFile(dest, src)
		if err != nil {
			return archived, fmt.Errorf("archive %s: %w", src, err)
		}

		archived = append(archived, Artifact{
			Stage:  stageID,
			Name:   filepath.Base(src),
			Source: src,
			Path:   dest,
			Size:   size,
		})
	}

	r.mu.Lock()
	r.artifacts = append(r.artifacts, archived...)
	r.mu.Unlock()
	return archived, nil
}

// List returns a copy of all registered artifacts.
func (r *Registry) List() []Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Artifact, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

// ByStage returns registered artifacts grouped by archiving stage id.
func (r *Registry) ByStage() map[string][]Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]Artifact)
	for _, a := range r.artifacts {
		out[a.Stage] = append(out[a.Stage], a)
	}
	return out
}

// copyFile copies src to dest and returns the number of bytes written.
func copyFile(dest, src string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}
