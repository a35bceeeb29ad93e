// Package record persists build records on disk. Each build lives in its
// own numbered directory holding record.json and the archived artifacts;
// retention keeps the newest N builds and evicts older ones together
// with their artifacts.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Store manages build records rooted at a base directory.
type Store struct {
	baseDir string // defaults to ~/.conveyor/builds
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.conveyor/builds, creating the
// directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".conveyor", "builds")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// BuildDir returns the directory for a build number.
func (s *Store) BuildDir(number int) string {
	return filepath.Join(s.baseDir, strconv.Itoa(number))
}

// ArtifactsDir returns the artifact directory for a build number.
func (s *Store) ArtifactsDir(number int) string {
	return filepath.Join(s.BuildDir(number), "artifacts")
}

func (s *Store) recordPath(number int) string {
	return filepath.Join(s.BuildDir(number), "record.json")
}

// NextNumber returns the next build number: one past the highest
// existing build directory, starting at 1.
func (s *Store) NextNumber() (int, error) {
	numbers, err := s.numbers()
	if err != nil {
		return 0, err
	}
	if len(numbers) == 0 {
		return 1, nil
	}
	return numbers[len(numbers)-1] + 1, nil
}

// Create initialises the directory structure for a build and writes the
// initial record.
func (s *Store) Create(rec *BuildRecord) error {
	dir := s.BuildDir(rec.Number)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("build %d already exists", rec.Number)
	}
	if err := os.MkdirAll(s.ArtifactsDir(rec.Number), 0o755); err != nil {
		return fmt.Errorf("mkdir artifacts dir: %w", err)
	}
	return s.Save(rec)
}

// Save writes a build record atomically.
func (s *Store) Save(rec *BuildRecord) error {
	return writeJSON(s.recordPath(rec.Number), rec)
}

// Get reads the record for a build number.
func (s *Store) Get(number int) (*BuildRecord, error) {
	var rec BuildRecord
	if err := readJSON(s.recordPath(number), &rec); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("build %d not found", number)
		}
		return nil, err
	}
	return &rec, nil
}

// List returns all build records, oldest first. Broken entries are
// skipped so one corrupt record cannot hide the rest.
func (s *Store) List() ([]BuildRecord, error) {
	numbers, err := s.numbers()
	if err != nil {
		return nil, err
	}

	var records []BuildRecord
	for _, n := range numbers {
		rec, err := s.Get(n)
		if err != nil {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Delete removes a build's record and artifacts.
func (s *Store) Delete(number int) error {
	dir := s.BuildDir(number)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("build %d not found", number)
	}
	return os.RemoveAll(dir)
}

// ApplyRetention evicts the oldest builds beyond keep, returning the
// evicted build numbers. Eviction removes the whole build directory,
// artifacts included.
func (s *Store) ApplyRetention(keep int) ([]int, error) {
	if keep <= 0 {
		return nil, nil
	}
	numbers, err := s.numbers()
	if err != nil {
		return nil, err
	}
	if len(numbers) <= keep {
		return nil, nil
	}

	evict := numbers[:len(numbers)-keep]
	for _, n := range evict {
		if err := os.RemoveAll(s.BuildDir(n)); err != nil {
			return nil, fmt.Errorf("evict build %d: %w", n, err)
		}
	}
	return evict, nil
}

// numbers returns existing build numbers in ascending order.
func (s *Store) numbers() ([]int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var numbers []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue // skip non-numeric directories
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// writeJSON writes v as pretty-printed JSON atomically: temp file in the
// same directory, then rename.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return nil
}

// readJSON reads a JSON file at path into v.
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}
