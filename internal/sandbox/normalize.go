package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// aliasPairs are host-specific path aliases that must be treated as
// equivalent when judging whether a symlink widens scope (§3).
var aliasPairs = [][2]string{
	{"/tmp", "/private/tmp"},
	{"/var", "/private/var"},
}

// ContainsGlobChars reports whether p contains an unescaped glob
// metacharacter ('*', '?', or a bracket class).
func ContainsGlobChars(p string) bool {
	escaped := false
	for _, r := range p {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// GlobBase returns the directory part of p that precedes its first glob
// metacharacter: everything before the last "/" ahead of that character
// ("" when that "/" is the leading one). A p without metacharacters is
// returned unchanged.
func GlobBase(p string) string {
	idx := strings.IndexAny(p, "*?[")
	if idx < 0 {
		return p
	}
	base := p[:idx]
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[:i]
	} else {
		base = ""
	}
	return base
}

// NormalizePath makes p absolute against cwd (or os.Getwd when cwd is
// empty), expands a leading "~", collapses "." / ".." components, and
// strips a trailing slash. Glob patterns are returned unchanged apart from
// the absolute-ization of their base, since wildcard components cannot be
// cleaned with filepath.Clean.
func NormalizePath(p string, cwd string) string {
	if p == "" {
		return p
	}

	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if p == "~" {
				p = home
			} else {
				p = filepath.Join(home, p[2:])
			}
		}
	}

	if !filepath.IsAbs(p) {
		base := cwd
		if base == "" {
			base, _ = os.Getwd()
		}
		p = filepath.Join(base, p)
	}

	if ContainsGlobChars(p) {
		return p
	}

	p = filepath.Clean(p)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Classify examines the leaf of p without following a trailing symlink.
func Classify(p string) PathKind {
	info, err := os.Lstat(p)
	if err != nil {
		return KindNonexistent
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return KindSymlink
	case info.IsDir():
		return KindDir
	default:
		return KindFile
	}
}

// resolveCanonical resolves p's symlink components and strips any trailing
// slash, returning the canonical absolute path. If resolution fails (e.g. a
// dangling symlink), ok is false.
func resolveCanonical(p string) (canonical string, ok bool) {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", false
	}
	return strings.TrimSuffix(resolved, "/"), true
}

// aliasEquivalent reports whether a and b are the same path modulo one of
// the well-known host aliases (/tmp<->/private/tmp, /var<->/private/var).
func aliasEquivalent(a, b string) bool {
	if a == b {
		return true
	}
	for _, pair := range aliasPairs {
		if (strings.HasPrefix(a, pair[0]) && strings.HasPrefix(b, pair[1]) &&
			strings.TrimPrefix(a, pair[0]) == strings.TrimPrefix(b, pair[1])) ||
			(strings.HasPrefix(a, pair[1]) && strings.HasPrefix(b, pair[0]) &&
				strings.TrimPrefix(a, pair[1]) == strings.TrimPrefix(b, pair[0])) {
			return true
		}
	}
	return false
}

// SymlinkWidens reports whether following a symlink at input, whose target
// resolves to canonical, would admit more to the sandbox than the caller's
// literal path implies (§3, §4.1).
//
// True iff any of:
//
//	(a) canonical == "/"
//	(b) canonical is an ancestor of input
//	(c) len(canonical) <= 4
//	(d) canonical is neither input itself nor a path below input
//
// ...and none of the well-known host-alias pairs make input and canonical
// equivalent. Clause (c) is a known-coarse heuristic inherited as-is (it can
// reject legitimate resolutions into short subtrees like /usr or /opt).
func SymlinkWidens(input, canonical string) bool {
	input = strings.TrimSuffix(input, "/")
	canonical = strings.TrimSuffix(canonical, "/")

	if aliasEquivalent(input, canonical) {
		return false
	}

	if canonical == "/" {
		return true
	}

	if canonical == input {
		return false
	}

	if strings.HasPrefix(input, canonical+"/") {
		// canonical is an ancestor of input.
		return true
	}

	if len(canonical) <= 4 {
		return true
	}

	if !strings.HasPrefix(canonical, input+"/") {
		// canonical is neither input itself nor anywhere below it.
		return true
	}

	return false
}

// FindSymlinkInPath walks target component-by-component under each allowed
// write root and returns the first component that is itself a symlink and
// lies inside an allowed write root. Returns "" if none is found.
func FindSymlinkInPath(target string, allowedWritePaths []string) string {
	target = filepath.Clean(target)

	for _, root := range allowedWritePaths {
		root = filepath.Clean(root)
		if !strings.HasPrefix(target, root+"/") && target != root {
			continue
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(target, root), "/")
		if rel == "" {
			continue
		}

		parts := strings.Split(rel, "/")
		cur := root
		for _, part := range parts {
			cur = filepath.Join(cur, part)
			if Classify(cur) == KindSymlink {
				return cur
			}
		}
	}
	return ""
}

// HasFileAncestor reports whether any existing prefix of target is a
// regular file rather than a directory, which makes target unreachable by
// any mkdir sequence (the git-worktree case, where .git is a file).
func HasFileAncestor(target string) bool {
	cur := filepath.Dir(filepath.Clean(target))
	for {
		info, err := os.Lstat(cur)
		if err == nil {
			if !info.IsDir() {
				return true
			}
			return false
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return false
		}
		cur = parent
	}
}

// FirstNonexistent returns the shortest prefix of target whose path does
// not exist. The result is undefined (empty) if target exists in full.
func FirstNonexistent(target string) string {
	target = filepath.Clean(target)
	if _, err := os.Lstat(target); err == nil {
		return ""
	}

	components := strings.Split(strings.TrimPrefix(target, "/"), "/")
	cur := ""
	for _, c := range components {
		cur += "/" + c
		if _, err := os.Lstat(cur); err != nil {
			return cur
		}
	}
	return ""
}

// NearestExistingAncestor returns the closest existing directory that is a
// prefix of target (which may itself not exist).
func NearestExistingAncestor(target string) string {
	cur := filepath.Dir(filepath.Clean(target))
	for {
		if _, err := os.Lstat(cur); err == nil {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return cur
		}
		cur = parent
	}
}
