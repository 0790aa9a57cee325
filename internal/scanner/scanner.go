// Package scanner implements the bounded-depth file-index scan used by the
// mandatory-deny enumerator to expand glob patterns and walk a working tree
// looking for well-known sensitive files, without following symlinks out of
// the scanned root.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnore is always excluded from a walk, regardless of caller-supplied
// ignore patterns: it is large, rarely relevant to a policy decision, and
// walking into it dominates scan time on any real JS-ecosystem checkout.
const DefaultIgnore = "**/node_modules/**"

// Scanner walks a single root directory to a bounded depth.
type Scanner struct {
	Root     string
	MaxDepth int
	Ignore   []string
}

// New returns a Scanner rooted at root, bounded to entries nested at most
// maxDepth directories below root. maxDepth <= 0 means unbounded.
func New(root string, maxDepth int) *Scanner {
	return &Scanner{
		Root:     root,
		MaxDepth: maxDepth,
		Ignore:   []string{DefaultIgnore},
	}
}

// depth returns the number of path separators in rel, i.e. how many
// directories rel is nested below the scan root.
func depth(rel string) int {
	if rel == "." || rel == "" {
		return 0
	}
	return strings.Count(rel, "/")
}

func (s *Scanner) ignored(rel string) bool {
	for _, pat := range s.Ignore {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// Walk invokes fn for every regular file and directory under the root, in
// lexical order, skipping anything matched by Ignore and anything deeper
// than MaxDepth. It stops and returns ctx.Err() as soon as ctx is done,
// making the scan cooperatively cancellable mid-walk.
func (s *Scanner) Walk(ctx context.Context, fn func(rel string, d fs.DirEntry) error) error {
	fsys := os.DirFS(s.Root)

	return doublestar.GlobWalk(fsys, "**", func(rel string, d fs.DirEntry) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if rel == "." {
			return nil
		}
		if s.MaxDepth > 0 && depth(rel) > s.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if s.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(rel, d)
	})
}

// Find returns the absolute paths of every entry under the root whose
// root-relative path matches any of patterns (doublestar syntax), bounded by
// MaxDepth and filtered through Ignore.
func (s *Scanner) Find(ctx context.Context, patterns []string) ([]string, error) {
	var matches []string
	err := s.Walk(ctx, func(rel string, d fs.DirEntry) error {
		for _, pat := range patterns {
			if ok, _ := doublestar.Match(pat, rel); ok {
				matches = append(matches, filepath.Join(s.Root, rel))
				return nil
			}
		}
		return nil
	})
	return matches, err
}

// ExpandGlobPatterns resolves every glob pattern in patterns against cwd
// into the set of concrete matching paths, using doublestar.Glob (which
// supports "**"). Non-glob entries pass through unchanged. Duplicates are
// removed, order is not guaranteed stable beyond doublestar's own walk
// order.
func ExpandGlobPatterns(patterns []string, cwd string) []string {
	seen := make(map[string]bool)
	var expanded []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			expanded = append(expanded, p)
		}
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[") {
			add(pattern)
			continue
		}

		abs := pattern
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(cwd, abs)
		}

		root := globRootDir(abs)
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(root), filepath.ToSlash(rel))
		if err != nil {
			continue
		}
		for _, m := range matches {
			add(filepath.Join(root, filepath.FromSlash(m)))
		}
	}
	return expanded
}

// globRootDir returns the longest directory prefix of a glob pattern that
// contains no metacharacter, so doublestar.Glob can be rooted at a real
// directory instead of the filesystem root.
func globRootDir(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[")
	if idx < 0 {
		return filepath.Dir(pattern)
	}
	prefix := pattern[:idx]
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		prefix = prefix[:i]
	} else {
		prefix = "/"
	}
	if prefix == "" {
		prefix = "/"
	}
	return prefix
}
