package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReaperCleanupRemovesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "denied")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReaper(false)
	r.Register(file, false)
	r.Cleanup()

	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed, stat err = %v", file, err)
	}
}

func TestReaperCleanupSkipsNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "denied")
	if err := os.WriteFile(file, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReaper(false)
	r.Register(file, false)
	r.Cleanup()

	if _, err := os.Stat(file); err != nil {
		t.Errorf("expected non-empty file to survive cleanup, got err = %v", err)
	}
}

func TestReaperCleanupRemovesEmptyDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "denied")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	r := NewReaper(false)
	r.Register(sub, true)
	r.Cleanup()

	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed, stat err = %v", sub, err)
	}
}

func TestReaperCleanupSkipsNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "denied")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "child"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReaper(false)
	r.Register(sub, true)
	r.Cleanup()

	if _, err := os.Stat(sub); err != nil {
		t.Errorf("expected non-empty dir to survive cleanup, got err = %v", err)
	}
}

func TestReaperCleanupIsIdempotent(t *testing.T) {
	r := NewReaper(false)
	r.Register("/nonexistent/path", false)
	r.Cleanup()
	r.Cleanup()

	if len(r.Artifacts()) != 0 {
		t.Errorf("expected artifact registry to be empty after Cleanup, got %v", r.Artifacts())
	}
}
