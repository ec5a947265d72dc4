package sourcecache

import (
	"os"
	"path/filepath"
	"testing"
)

func reset(t *testing.T) {
	t.Helper()
	Flush()
	EnableInvalidation()
	t.Cleanup(func() {
		Flush()
		EnableInvalidation()
	})
}

func writeFile(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.go")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLineLoadsFromDisk(t *testing.T) {
	reset(t)
	path := writeFile(t, "one\ntwo\nthree\n")

	if got := Line(path, 2); got != "two" {
		t.Errorf("Line 2 = %q", got)
	}
	if got := Line(path, 0); got != "" {
		t.Errorf("Line 0 should be empty, got %q", got)
	}
	if got := Line(path, 4); got != "" {
		t.Errorf("Line past EOF should be empty, got %q", got)
	}
	if got := Line(filepath.Join(t.TempDir(), "absent.go"), 1); got != "" {
		t.Errorf("Missing file should yield empty line, got %q", got)
	}
}

func TestInstalledArchiveWinsOverDisk(t *testing.T) {
	reset(t)
	path := writeFile(t, "on disk\n")

	Install(map[string]string{path: "archived text\n"})
	if got := Line(path, 1); got != "archived text" {
		t.Errorf("Archive entry not served, got %q", got)
	}

	// Re-install replaces, not merges.
	other := "/captured/elsewhere.go"
	Install(map[string]string{other: "other\n"})
	if got := Line(other, 1); got != "other" {
		t.Errorf("New archive entry missing, got %q", got)
	}
	if got := Line(path, 1); got != "on disk" {
		t.Errorf("Old archive entry should be gone, got %q", got)
	}
}

func TestDisabledInvalidationPinsEntries(t *testing.T) {
	reset(t)
	path := writeFile(t, "original\n")
	if got := Line(path, 1); got != "original" {
		t.Fatalf("Priming read failed: %q", got)
	}

	DisableInvalidation()
	if err := os.WriteFile(path, []byte("edited after capture\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := Line(path, 1); got != "original" {
		t.Errorf("Pinned entry re-validated, got %q", got)
	}

	EnableInvalidation()
	if got := Line(path, 1); got != "edited after capture" {
		t.Errorf("Re-validation did not pick up the edit, got %q", got)
	}
}

func TestStaleEntrySurvivesFileRemoval(t *testing.T) {
	reset(t)
	path := writeFile(t, "kept\n")
	if got := Line(path, 1); got != "kept" {
		t.Fatalf("Priming read failed: %q", got)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if got := Line(path, 1); got != "kept" {
		t.Errorf("Cached lines should outlive the file, got %q", got)
	}
}

func TestFlushDropsEverything(t *testing.T) {
	reset(t)
	Install(map[string]string{"/captured/a.go": "a\n"})
	Flush()
	if got := Line("/captured/a.go", 1); got != "" {
		t.Errorf("Flushed entry still served: %q", got)
	}
}

func TestSplitLines(t *testing.T) {
	if got := splitLines("a\nb\n"); len(got) != 2 || got[1] != "b" {
		t.Errorf("splitLines trailing newline: %v", got)
	}
	if got := splitLines("a\nb"); len(got) != 2 {
		t.Errorf("splitLines no trailing newline: %v", got)
	}
	if got := splitLines(""); len(got) != 0 {
		t.Errorf("splitLines empty: %v", got)
	}
}
