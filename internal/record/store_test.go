package record

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lucasnoah/conveyor/internal/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func sampleRecord(number int) *BuildRecord {
	return &BuildRecord{
		Number:    number,
		Pipeline:  "java-services",
		Status:    graph.StatusRunning,
		StartedAt: "2026-08-25T10:00:00Z",
		Root: &StageResult{
			ID:         "java-services",
			Kind:       graph.KindSequence,
			Status:     graph.StatusRunning,
			Propagated: graph.StatusRunning,
		},
	}
}

func TestNextNumber(t *testing.T) {
	s := newTestStore(t)

	n, err := s.NextNumber()
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	if n != 1 {
		t.Errorf("first build number = %d, want 1", n)
	}

	for _, number := range []int{1, 2, 5} {
		if err := s.Create(sampleRecord(number)); err != nil {
			t.Fatalf("create %d: %v", number, err)
		}
	}

	n, err = s.NextNumber()
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	if n != 6 {
		t.Errorf("next number = %d, want 6 (one past the highest)", n)
	}
}

func TestCreateGetSave(t *testing.T) {
	s := newTestStore(t)

	rec := sampleRecord(1)
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Artifact directory is part of the build layout.
	if _, err := os.Stat(s.ArtifactsDir(1)); err != nil {
		t.Errorf("artifacts dir missing: %v", err)
	}

	// Creating the same build twice is an error.
	if err := s.Create(sampleRecord(1)); err == nil {
		t.Error("expected error creating duplicate build")
	}

	got, err := s.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Pipeline != "java-services" || got.Status != graph.StatusRunning {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Finalize and save over the initial record.
	rec.Status = graph.StatusSucceeded
	rec.FinishedAt = "2026-08-25T10:05:00Z"
	rec.Root.Status = graph.StatusSucceeded
	rec.Root.Propagated = graph.StatusSucceeded
	if err := s.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = s.Get(1)
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if got.Status != graph.StatusSucceeded || got.FinishedAt == "" {
		t.Errorf("finalized record not persisted: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(42); err == nil {
		t.Fatal("expected error for unknown build")
	}
}

func TestList_OldestFirstSkippingBroken(t *testing.T) {
	s := newTestStore(t)
	for _, n := range []int{3, 1, 2} {
		if err := s.Create(sampleRecord(n)); err != nil {
			t.Fatalf("create %d: %v", n, err)
		}
	}

	// Corrupt build 2's record; List must skip it.
	if err := os.WriteFile(filepath.Join(s.BuildDir(2), "record.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("corrupt record: %v", err)
	}
	// Stray non-numeric directory is ignored.
	if err := os.MkdirAll(filepath.Join(s.BaseDir(), "lost+found"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var numbers []int
	for _, rec := range records {
		numbers = append(numbers, rec.Number)
	}
	if !reflect.DeepEqual(numbers, []int{1, 3}) {
		t.Errorf("listed = %v, want [1 3]", numbers)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create(sampleRecord(1)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(s.BuildDir(1)); !os.IsNotExist(err) {
		t.Error("build dir should be gone")
	}
	if err := s.Delete(1); err == nil {
		t.Error("expected error deleting missing build")
	}
}

func TestApplyRetention(t *testing.T) {
	s := newTestStore(t)
	for n := 1; n <= 5; n++ {
		if err := s.Create(sampleRecord(n)); err != nil {
			t.Fatalf("create %d: %v", n, err)
		}
		// Give each build an artifact so eviction provably removes them.
		path := filepath.Join(s.ArtifactsDir(n), "app.jar")
		if err := os.WriteFile(path, []byte("jar"), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}

	evicted, err := s.ApplyRetention(2)
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	if !reflect.DeepEqual(evicted, []int{1, 2, 3}) {
		t.Errorf("evicted = %v, want [1 2 3]", evicted)
	}

	for _, n := range evicted {
		if _, err := os.Stat(s.BuildDir(n)); !os.IsNotExist(err) {
			t.Errorf("build %d should be fully removed", n)
		}
	}
	for _, n := range []int{4, 5} {
		if _, err := os.Stat(filepath.Join(s.ArtifactsDir(n), "app.jar")); err != nil {
			t.Errorf("build %d artifacts should survive: %v", n, err)
		}
	}

	// Under the limit: nothing to do.
	evicted, err = s.ApplyRetention(10)
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	if len(evicted) != 0 {
		t.Errorf("evicted = %v, want none", evicted)
	}

	// Zero disables retention entirely.
	evicted, err = s.ApplyRetention(0)
	if err != nil || len(evicted) != 0 {
		t.Errorf("keep=0 must be a no-op, got %v, %v", evicted, err)
	}
}

func TestStageResult_FindAndWalk(t *testing.T) {
	root := &StageResult{
		ID: "root", Kind: graph.KindSequence,
		Children: []*StageResult{
			{ID: "build", Kind: graph.KindLeaf},
			{ID: "scans", Kind: graph.KindParallel, Children: []*StageResult{
				{ID: "secret-scan", Kind: graph.KindLeaf},
			}},
		},
	}

	if got := root.Find("secret-scan"); got == nil || got.ID != "secret-scan" {
		t.Errorf("Find(secret-scan) = %+v", got)
	}
	if got := root.Find("missing"); got != nil {
		t.Errorf("Find(missing) = %+v, want nil", got)
	}

	var visited []string
	root.Walk(func(r *StageResult) { visited = append(visited, r.ID) })
	want := []string{"root", "build", "scans", "secret-scan"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("Walk order = %v, want %v", visited, want)
	}
}
