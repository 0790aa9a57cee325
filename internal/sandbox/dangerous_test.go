package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestGetDefaultWritePaths(t *testing.T) {
	paths := GetDefaultWritePaths()

	if len(paths) == 0 {
		t.Error("GetDefaultWritePaths() returned empty slice")
	}

	essentialPaths := []string{"/dev/stdout", "/dev/stderr", "/dev/null"}
	for _, essential := range essentialPaths {
		if !slices.Contains(paths, essential) {
			t.Errorf("GetDefaultWritePaths() missing essential path %q", essential)
		}
	}
}

func TestMandatoryDeniesFixedEntries(t *testing.T) {
	dir := t.TempDir()

	denies := MandatoryDenies(context.Background(), dir, false, 3)

	for _, f := range DangerousFiles {
		want := filepath.Join(dir, f)
		if !slices.Contains(denies, want) {
			t.Errorf("MandatoryDenies() missing cwd-relative dangerous file %q", want)
		}
	}
	for _, d := range DangerousDirectories {
		want := filepath.Join(dir, d)
		if !slices.Contains(denies, want) {
			t.Errorf("MandatoryDenies() missing cwd-relative dangerous directory %q", want)
		}
	}
}

func TestMandatoryDeniesGitDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	deniedDefault := MandatoryDenies(context.Background(), dir, false, 3)
	if !slices.Contains(deniedDefault, filepath.Join(dir, ".git", "hooks")) {
		t.Error("MandatoryDenies() missing .git/hooks when .git is a directory")
	}
	if !slices.Contains(deniedDefault, filepath.Join(dir, ".git", "config")) {
		t.Error("MandatoryDenies() missing .git/config when allowGitConfig=false")
	}

	deniedAllowed := MandatoryDenies(context.Background(), dir, true, 3)
	if slices.Contains(deniedAllowed, filepath.Join(dir, ".git", "config")) {
		t.Error("MandatoryDenies() should not include .git/config when allowGitConfig=true")
	}
	if !slices.Contains(deniedAllowed, filepath.Join(dir, ".git", "hooks")) {
		t.Error("MandatoryDenies() should always include .git/hooks regardless of allowGitConfig")
	}
}

func TestMandatoryDeniesGitWorktreeFile(t *testing.T) {
	dir := t.TempDir()
	gitFile := filepath.Join(dir, ".git")
	if err := os.WriteFile(gitFile, []byte("gitdir: /elsewhere/.git/worktrees/x"), 0o644); err != nil {
		t.Fatal(err)
	}

	denies := MandatoryDenies(context.Background(), dir, false, 3)
	if slices.Contains(denies, filepath.Join(dir, ".git", "hooks")) {
		t.Error("MandatoryDenies() must not add .git/hooks when .git is a worktree file, not a directory")
	}
	if slices.Contains(denies, filepath.Join(dir, ".git", "config")) {
		t.Error("MandatoryDenies() must not add .git/config when .git is a worktree file, not a directory")
	}
}

func TestMandatoryDeniesMissingGit(t *testing.T) {
	dir := t.TempDir()

	denies := MandatoryDenies(context.Background(), dir, false, 3)
	if slices.Contains(denies, filepath.Join(dir, ".git", "hooks")) {
		t.Error("MandatoryDenies() must not add git denies when .git does not exist")
	}
}

func TestMandatoryDeniesNestedScan(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub", "pkg")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, ".bashrc"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	denies := MandatoryDenies(context.Background(), dir, false, 3)
	if !slices.Contains(denies, filepath.Join(nested, ".bashrc")) {
		t.Errorf("MandatoryDenies() missed nested dangerous file, got %v", denies)
	}
}

func TestMandatoryDeniesCancellation(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	denies := MandatoryDenies(ctx, dir, false, 3)
	for _, f := range DangerousFiles {
		if !slices.Contains(denies, filepath.Join(dir, f)) {
			t.Errorf("MandatoryDenies() with cancelled ctx should still contain fixed cwd entries, missing %q", f)
		}
	}
}
