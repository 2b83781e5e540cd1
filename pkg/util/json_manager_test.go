package util

import (
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONManagerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	m := NewJSONManager(path)

	var s sample
	found, err := m.Load(&s)
	if err != nil || found {
		t.Fatalf("expected missing file to be reported as not found, got %v %v", found, err)
	}

	if err := m.Save(sample{Name: "x", Count: 3}); err != nil {
		t.Fatalf("save: %v", err)
	}
	found, err = m.Load(&s)
	if err != nil || !found || s.Name != "x" || s.Count != 3 {
		t.Fatalf("unexpected load: %+v %v %v", s, found, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestJSONManagerCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var s sample
	found, err := NewJSONManager(path).Load(&s)
	if !found || err == nil {
		t.Fatalf("expected parse error for corrupt file, got %v %v", found, err)
	}
}

func TestJSONManagerProjectRoot(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "escape.json")
	if err := NewJSONManager(outside).WithProjectRoot(root).Save(sample{}); err == nil {
		_ = os.Remove(outside)
		t.Fatalf("expected save outside project root to fail")
	}
	inside := filepath.Join(root, "data", "ok.json")
	if err := NewJSONManager(inside).WithProjectRoot(root).Save(sample{}); err != nil {
		t.Fatalf("save inside root: %v", err)
	}
}
