package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func mkTree(t *testing.T, root string, paths []string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScannerWalkSkipsNodeModules(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, []string{
		"a.txt",
		"node_modules/pkg/index.js",
		"sub/b.txt",
	})

	s := New(root, 0)
	var found []string
	err := s.Walk(context.Background(), func(rel string, d fs.DirEntry) error {
		if !d.IsDir() {
			found = append(found, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(found)
	want := []string{"a.txt", "sub/b.txt"}
	if len(found) != len(want) {
		t.Fatalf("found = %v, want %v", found, want)
	}
	for i := range want {
		if found[i] != want[i] {
			t.Errorf("found[%d] = %q, want %q", i, found[i], want[i])
		}
	}
}

func TestScannerWalkBoundedDepth(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, []string{
		"top.txt",
		"one/deep.txt",
		"one/two/deeper.txt",
	})

	s := New(root, 1)
	var found []string
	err := s.Walk(context.Background(), func(rel string, d fs.DirEntry) error {
		if !d.IsDir() {
			found = append(found, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(found)
	want := []string{"one/deep.txt", "top.txt"}
	if len(found) != len(want) {
		t.Fatalf("found = %v, want %v", found, want)
	}
}

func TestScannerWalkCancellation(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, []string{"a.txt", "b.txt", "c.txt"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(root, 0)
	err := s.Walk(ctx, func(rel string, d fs.DirEntry) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, []string{
		"secrets/.env",
		"src/main.go",
	})

	s := New(root, 0)
	matches, err := s.Find(context.Background(), []string{"**/.env"})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0] != filepath.Join(root, "secrets/.env") {
		t.Errorf("Find = %v, want [%s]", matches, filepath.Join(root, "secrets/.env"))
	}
}

func TestExpandGlobPatterns(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, []string{
		"logs/a.log",
		"logs/b.log",
		"keep.txt",
	})

	patterns := []string{
		filepath.Join(root, "logs/*.log"),
		filepath.Join(root, "keep.txt"),
	}
	got := ExpandGlobPatterns(patterns, root)

	if len(got) != 3 {
		t.Fatalf("ExpandGlobPatterns = %v, want 3 entries", got)
	}
	foundKeep := false
	for _, p := range got {
		if p == filepath.Join(root, "keep.txt") {
			foundKeep = true
		}
	}
	if !foundKeep {
		t.Errorf("ExpandGlobPatterns did not pass through non-glob entry: %v", got)
	}
}

func TestExpandGlobPatternsDedups(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, []string{"a.txt"})

	patterns := []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "a.txt"),
	}
	got := ExpandGlobPatterns(patterns, root)
	if len(got) != 1 {
		t.Errorf("ExpandGlobPatterns dedup = %v, want 1 entry", got)
	}
}
