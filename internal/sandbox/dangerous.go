package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ebendler/sandbox-runtime/internal/scanner"
)

// DangerousFiles are filenames that must never be writable, wherever in the
// tree they are found: shell rc files, git's own config files, and
// agent/tool config that can smuggle code execution into a later command.
var DangerousFiles = []string{
	".gitconfig",
	".gitmodules",
	".bashrc",
	".bash_profile",
	".zshrc",
	".zprofile",
	".profile",
	".ripgreprc",
	".mcp.json",
}

// DangerousDirectories are directory names that must never be writable.
// .git itself is excluded: it needs to stay writable for ordinary git
// operations, and is instead handled component-wise below.
var DangerousDirectories = []string{
	".vscode",
	".idea",
	".claude/commands",
	".claude/agents",
}

const defaultMandatoryDenySearchDepth = 3

// MandatoryDenies produces the built-in deny-write set for a working
// directory (§4.2): the fixed dotfiles/directories at cwd, every nested copy
// discovered by a bounded scan, and git-hooks/config entries added only
// where the version-control layout actually matches (.git present and a
// directory).
//
// Cancelling ctx yields a best-effort partial list; the cwd-local fixed
// entries are always present regardless of cancellation.
func MandatoryDenies(ctx context.Context, cwd string, allowGitConfig bool, searchDepth int) []string {
	if searchDepth <= 0 {
		searchDepth = defaultMandatoryDenySearchDepth
	}

	seen := make(map[string]bool)
	var denies []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			denies = append(denies, p)
		}
	}

	for _, f := range DangerousFiles {
		add(filepath.Join(cwd, f))
	}
	for _, d := range DangerousDirectories {
		add(filepath.Join(cwd, d))
	}
	addGitDenies(cwd, allowGitConfig, add)

	select {
	case <-ctx.Done():
		return denies
	default:
	}

	var patterns []string
	for _, f := range DangerousFiles {
		patterns = append(patterns, "**/"+f)
	}
	for _, d := range DangerousDirectories {
		patterns = append(patterns, "**/"+d)
	}
	patterns = append(patterns, "**/.git")

	s := scanner.New(cwd, searchDepth)
	matches, err := s.Find(ctx, patterns)
	if err != nil {
		return denies
	}

	for _, m := range matches {
		if strings.HasSuffix(m, string(filepath.Separator)+".git") {
			addGitDenies(filepath.Dir(m), allowGitConfig, add)
			continue
		}
		add(m)
	}

	return denies
}

// addGitDenies adds .git/hooks (always) and .git/config (unless
// allowGitConfig) for dir, but only when dir/.git exists and is a
// directory: a .git file (worktree) or a missing .git contributes nothing,
// since a mount point can't be created under a file and a missing .git
// would block git's own directory creation (§4.2 invariant 3).
func addGitDenies(dir string, allowGitConfig bool, add func(string)) {
	gitPath := filepath.Join(dir, ".git")
	info, err := os.Lstat(gitPath)
	if err != nil || !info.IsDir() {
		return
	}

	add(filepath.Join(gitPath, "hooks"))
	if !allowGitConfig {
		add(filepath.Join(gitPath, "config"))
	}
}

// GetDefaultWritePaths returns host paths that are conventionally writable
// regardless of policy, so that common tooling (shells, npm, debug logging)
// keeps working inside the sandbox.
func GetDefaultWritePaths() []string {
	home, _ := os.UserHomeDir()

	paths := []string{
		"/dev/stdout",
		"/dev/stderr",
		"/dev/null",
		"/dev/tty",
	}

	if home != "" {
		paths = append(paths,
			filepath.Join(home, ".npm/_logs"),
			filepath.Join(home, ".sandbox-runtime/debug"),
		)
	}

	return paths
}
