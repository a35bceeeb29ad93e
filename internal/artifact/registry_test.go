package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestArchive_CopiesMatches(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeFile(t, src, "target/app.jar", "jar-bytes")
	writeFile(t, src, "target/app-sources.jar", "src-bytes")
	writeFile(t, src, "target/notes.txt", "not a jar")

	r := NewRegistry()
	archived, err := r.Archive(dest, "build", "target/*.jar", src, false)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("archived = %d, want 2", len(archived))
	}

	for _, a := range archived {
		if a.Stage != "build" {
			t.Errorf("stage = %q, want build", a.Stage)
		}
		data, err := os.ReadFile(a.Path)
		if err != nil {
			t.Fatalf("read stored artifact: %v", err)
		}
		if int64(len(data)) != a.Size {
			t.Errorf("%s: size = %d, file has %d bytes", a.Name, a.Size, len(data))
		}
		if filepath.Dir(a.Path) != filepath.Join(dest, "build") {
			t.Errorf("%s stored outside the stage directory: %s", a.Name, a.Path)
		}
	}
}

func TestArchive_NoMatches(t *testing.T) {
	src := t.TempDir()
	r := NewRegistry()

	// allow_empty tolerates zero matches.
	archived, err := r.Archive(t.TempDir(), "build", "*.jar", src, true)
	if err != nil {
		t.Fatalf("allow_empty archive: %v", err)
	}
	if len(archived) != 0 || len(r.List()) != 0 {
		t.Errorf("nothing should be registered, got %v", r.List())
	}

	// Without allow_empty the hook fails.
	if _, err := r.Archive(t.TempDir(), "build", "*.jar", src, false); err == nil {
		t.Fatal("expected error for zero matches without allow_empty")
	}
}

func TestArchive_SkipsDirectories(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "out/report.html", "<html>")
	if err := os.MkdirAll(filepath.Join(src, "out", "assets"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	r := NewRegistry()
	archived, err := r.Archive(t.TempDir(), "report", "out/*", src, false)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(archived) != 1 || archived[0].Name != "report.html" {
		t.Errorf("archived = %+v, want only report.html", archived)
	}
}

func TestByStage(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeFile(t, src, "a.jar", "a")
	writeFile(t, src, "b.txt", "b")

	r := NewRegistry()
	if _, err := r.Archive(dest, "build", "*.jar", src, false); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := r.Archive(dest, "report", "*.txt", src, false); err != nil {
		t.Fatalf("archive: %v", err)
	}

	grouped := r.ByStage()
	if len(grouped["build"]) != 1 || len(grouped["report"]) != 1 {
		t.Errorf("grouping = %v", grouped)
	}
	if len(r.List()) != 2 {
		t.Errorf("list = %d, want 2", len(r.List()))
	}
}

func TestArchive_ConcurrentStages(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	for i := 0; i < 8; i++ {
		writeFile(t, src, fmt.Sprintf("f%d.log", i), "log")
	}

	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stage := fmt.Sprintf("stage-%d", i)
			if _, err := r.Archive(dest, stage, fmt.Sprintf("f%d.log", i), src, false); err != nil {
				t.Errorf("%s: %v", stage, err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(r.List()); got != 8 {
		t.Errorf("registered = %d, want 8", got)
	}
	if got := len(r.ByStage()); got != 8 {
		t.Errorf("stages = %d, want 8", got)
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.jar", "a")

	r := NewRegistry()
	if _, err := r.Archive(t.TempDir(), "build", "*.jar", src, false); err != nil {
		t.Fatalf("archive: %v", err)
	}

	list := r.List()
	list[0].Stage = "tampered"
	if r.List()[0].Stage != "build" {
		t.Error("List must return a copy, not the backing slice")
	}
}
