// Package sandbox compiles a declarative filesystem/network/unix-socket
// policy into the host sandbox directives that enforce it: bubblewrap mount
// arguments on Linux, a sandbox-profile S-expression on macOS.
package sandbox

import "context"

// Policy is the caller-supplied sandboxing intent for one wrapped command.
//
// A Policy with no Read/Write restriction, an unrestricted Network, and
// UnixSockets.AllowAll set restricts nothing on any axis: Wrap returns the
// command unchanged without compiling a sandbox at all. A zero-value Policy
// is not quite this case, since UnixSockets.AllowAll defaults to false.
type Policy struct {
	Read        *ReadPolicy
	Write       *WritePolicy
	Network     NetworkPolicy
	UnixSockets UnixSocketPolicy

	// AllowGitConfig, if false (the default), adds cwd/.git/config to the
	// mandatory write-deny list whenever .git is a directory.
	AllowGitConfig bool

	// AllowPty is macOS-only: it adds pseudo-tty allowances to the compiled
	// sandbox profile. Ignored on Linux.
	AllowPty bool

	// AllowLocalBinding is macOS-only: when the network is restricted, it
	// allows binding to and accepting inbound connections on localhost
	// (needed by servers under test). Ignored on Linux.
	AllowLocalBinding bool

	// EnableWeakerNestedSandbox is Linux-only: when true, the compiler skips
	// mounting a fresh /proc, trading PID isolation fidelity for compatibility
	// with environments that cannot create a new proc mount (e.g. already
	// namespaced containers). Ignored on macOS.
	EnableWeakerNestedSandbox bool

	// RipgrepConfig is passed through to the sandboxed environment as
	// RIPGREP_CONFIG_PATH when non-empty, by the Linux compiler only; the
	// macOS compiler does not set it. The core never reads the file.
	RipgrepConfig string

	// MandatoryDenySearchDepth bounds the nested dangerous-file scan (§4.2).
	// Zero means "use the default of 3".
	MandatoryDenySearchDepth int

	// BinShell is the shell invoked inside the sandbox (looked up on the
	// host's PATH). Empty means "bash".
	BinShell string
}

// ReadPolicy restricts what the sandboxed command may read.
type ReadPolicy struct {
	// DenyOnly lists literal paths or globs that must not be readable.
	// Absent/empty means no read restrictions at all.
	DenyOnly []string
}

// WritePolicy restricts what the sandboxed command may write.
type WritePolicy struct {
	// AllowOnly lists the only paths writable inside the sandbox. An empty,
	// non-nil slice means "nothing is writable" (read-only root).
	AllowOnly []string

	// DenyWithinAllow lists literal paths or globs that must remain
	// read-only even though they fall inside an AllowOnly subtree.
	DenyWithinAllow []string
}

// NetworkPolicy controls network namespace isolation.
type NetworkPolicy struct {
	// Restricted, when true, isolates the sandboxed command's network
	// namespace. With Bridge nil, this is a total network block.
	Restricted bool

	// Bridge, when set, punches a narrow hole through the isolated
	// namespace for traffic forwarded to/from an external network-bridge
	// supervisor (internal/bridge, or any compatible process).
	Bridge *BridgeEndpoints
}

// BridgeEndpoints are the Unix-socket/port pair a network-bridge supervisor
// exposes for outbound HTTP and SOCKS traffic. The core only reads these
// values; it never starts, stops, or health-checks the supervisor (§6).
type BridgeEndpoints struct {
	HTTPSocketPath  string
	SOCKSSocketPath string
	HTTPPort        int
	SOCKSPort       int
}

// UnixSocketPolicy controls Unix-domain-socket creation by the sandboxed
// command, independent of NetworkPolicy.
type UnixSocketPolicy struct {
	// AllowAll permits creating and using Unix sockets anywhere.
	AllowAll bool

	// AllowPaths restricts Unix-socket bind/connect to these paths. Honored
	// only by the macOS compiler (§3); the Linux compiler has no path-scoped
	// socket primitive and falls back to AllowAll-or-nothing.
	AllowPaths []string
}

// PathKind classifies a user-supplied or enumerated path.
type PathKind int

const (
	KindNonexistent PathKind = iota
	KindFile
	KindDir
	KindSymlink
	KindGlob
)

func (k PathKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindGlob:
		return "glob"
	default:
		return "nonexistent"
	}
}

// Resolved is a normalized path together with its symlink-resolved form.
type Resolved struct {
	Input     string
	Canonical string
}

// compileOptions carries the cancellation input that is not part of the
// declarative Policy record.
type compileOptions struct {
	ctx context.Context
}
