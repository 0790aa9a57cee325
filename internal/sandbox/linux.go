//go:build linux

package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ebendler/sandbox-runtime/internal/scanner"
)

// implicitReadDenies are read-deny paths the compiler adds regardless of
// policy (§4.3 stage 4).
var implicitReadDenies = []string{"/etc/ssh/ssh_config.d"}

// inSandboxHTTPPort and inSandboxSOCKSPort are the TCP ports the in-sandbox
// socat listeners bind to; the user command reaches them via the proxy
// environment variables, and they forward over the bound Unix sockets to
// whatever the bridge supervisor has on the other end.
const (
	inSandboxHTTPPort  = 3128
	inSandboxSOCKSPort = 1080
)

// CompileLinux turns p into a single host shell command that, when run,
// executes command under a bubblewrap sandbox enforcing p (§4.3).
func CompileLinux(ctx context.Context, p Policy, command, cwd string, reaper *Reaper, debug bool) (string, error) {
	if _, err := exec.LookPath("bwrap"); err != nil {
		return "", fmt.Errorf("bubblewrap (bwrap) is required on Linux but not found: %w", err)
	}

	shellName := p.BinShell
	if shellName == "" {
		shellName = "bash"
	}
	shellPath, err := exec.LookPath(shellName)
	if err != nil {
		return "", fmt.Errorf("shell %q not found: %w", shellName, err)
	}

	args := []string{"bwrap", "--new-session", "--die-with-parent"}

	// (1) Root.
	if p.Write != nil {
		args = append(args, "--ro-bind", "/", "/")
	} else {
		args = append(args, "--bind", "/", "/")
	}

	// (2) Write allows.
	var allowedRoots []string
	var replayBinds []string
	addWriteAllow := func(raw string) {
		norm := NormalizePath(raw, cwd)
		if strings.HasPrefix(norm, "/dev/") || norm == "/dev" {
			return
		}
		if Classify(norm) == KindNonexistent {
			if debug {
				fmt.Fprintf(os.Stderr, "[sandbox-runtime:linux] skip missing write-allow %s\n", norm)
			}
			return
		}
		canonical, ok := resolveCanonical(norm)
		if !ok {
			if debug {
				fmt.Fprintf(os.Stderr, "[sandbox-runtime:linux] skip unresolvable write-allow %s\n", norm)
			}
			return
		}
		if SymlinkWidens(norm, canonical) {
			if debug {
				fmt.Fprintf(os.Stderr, "[sandbox-runtime:linux] skip scope-widening write-allow %s -> %s\n", norm, canonical)
			}
			return
		}
		args = append(args, "--bind", norm, norm)
		allowedRoots = append(allowedRoots, norm)
		replayBinds = append(replayBinds, norm)
	}

	for _, dp := range GetDefaultWritePaths() {
		if strings.HasPrefix(dp, "/dev/") || strings.HasPrefix(dp, "/tmp/") {
			continue
		}
		addWriteAllow(dp)
	}
	if p.Write != nil {
		for _, raw := range expandPolicyPaths(p.Write.AllowOnly, cwd) {
			addWriteAllow(raw)
		}
	}

	// (3) Deny paths.
	var denyCandidates []string
	denyCandidates = append(denyCandidates, MandatoryDenies(ctx, cwd, p.AllowGitConfig, p.MandatoryDenySearchDepth)...)
	if p.Write != nil {
		denyCandidates = append(denyCandidates, expandPolicyPaths(p.Write.DenyWithinAllow, cwd)...)
	}

	seenDeny := make(map[string]bool)
	for _, raw := range denyCandidates {
		path := NormalizePath(raw, cwd)
		if seenDeny[path] {
			continue
		}
		seenDeny[path] = true

		if strings.HasPrefix(path, "/dev/") || path == "/dev" {
			continue
		}

		if sym := FindSymlinkInPath(path, allowedRoots); sym != "" {
			args = append(args, "--ro-bind", "/dev/null", sym)
			continue
		}

		if Classify(path) == KindNonexistent {
			if HasFileAncestor(path) {
				continue
			}
			ancestor := NearestExistingAncestor(path)
			if !underAnyRoot(ancestor, allowedRoots) {
				continue
			}
			first := FirstNonexistent(path)
			if first == "" {
				continue
			}
			if first == path {
				args = append(args, "--ro-bind", "/dev/null", path)
				reaper.Register(path, false)
			} else {
				tmp, err := os.MkdirTemp("", "sandbox-runtime-deny-")
				if err != nil {
					if debug {
						fmt.Fprintf(os.Stderr, "[sandbox-runtime:linux] skip deny %s: %v\n", path, err)
					}
					continue
				}
				args = append(args, "--ro-bind", tmp, first)
				reaper.Register(tmp, true)
				reaper.Register(first, true)
			}
			continue
		}

		if underAnyRoot(path, allowedRoots) {
			args = append(args, "--ro-bind", path, path)
		}
	}

	// (4) Read denies.
	var readDenies []string
	readDenies = append(readDenies, implicitReadDenies...)
	if p.Read != nil {
		readDenies = append(readDenies, expandPolicyPaths(p.Read.DenyOnly, cwd)...)
	}
	for _, raw := range readDenies {
		path := NormalizePath(raw, cwd)
		switch Classify(path) {
		case KindDir:
			args = append(args, "--tmpfs", path)
		case KindFile, KindSymlink:
			args = append(args, "--ro-bind", "/dev/null", path)
		}
	}

	// (5) Dev + PID isolation.
	args = append(args, "--dev", "/dev", "--unshare-pid")
	if !p.EnableWeakerNestedSandbox {
		args = append(args, "--proc", "/proc")
	}

	// (6) Network.
	if p.Network.Restricted {
		args = append(args, "--unshare-net")
	}
	if b := p.Network.Bridge; b != nil {
		if b.HTTPSocketPath != "" {
			if _, err := os.Stat(b.HTTPSocketPath); err != nil {
				return "", fmt.Errorf("network bridge HTTP socket missing: %w", err)
			}
			args = append(args, "--bind", b.HTTPSocketPath, b.HTTPSocketPath)
		}
		if b.SOCKSSocketPath != "" {
			if _, err := os.Stat(b.SOCKSSocketPath); err != nil {
				return "", fmt.Errorf("network bridge SOCKS socket missing: %w", err)
			}
			args = append(args, "--bind", b.SOCKSSocketPath, b.SOCKSSocketPath)
		}

		httpPort, socksPort := 0, 0
		if b.HTTPSocketPath != "" {
			httpPort = inSandboxHTTPPort
		}
		if b.SOCKSSocketPath != "" {
			socksPort = inSandboxSOCKSPort
		}
		for _, kv := range GenerateProxyEnvVars(httpPort, socksPort) {
			k, v, _ := strings.Cut(kv, "=")
			args = append(args, "--setenv", k, v)
		}
		if b.HTTPPort > 0 {
			args = append(args, "--setenv", "SANDBOX_RUNTIME_BRIDGE_HTTP_PORT", fmt.Sprintf("%d", b.HTTPPort))
		}
		if b.SOCKSPort > 0 {
			args = append(args, "--setenv", "SANDBOX_RUNTIME_BRIDGE_SOCKS_PORT", fmt.Sprintf("%d", b.SOCKSPort))
		}
	}
	if p.RipgrepConfig != "" {
		args = append(args, "--setenv", "RIPGREP_CONFIG_PATH", p.RipgrepConfig)
	}

	// (7) Shell and payload.
	wantsFilter := !p.UnixSockets.AllowAll
	hasBridge := p.Network.Bridge != nil

	switch {
	case wantsFilter && hasBridge:
		return compileNestedPayload(args, shellPath, command, p.Network.Bridge, replayBinds, debug)
	case wantsFilter:
		return compileFilteredPayload(args, shellPath, command, debug)
	default:
		args = append(args, "--", shellPath, "-c", command)
		return ShellQuote(args), nil
	}
}

// compileFilteredPayload applies the syscall filter directly to the shell,
// with no nested stage, for the case where no bridge needs an unfiltered
// helper process.
func compileFilteredPayload(args []string, shellPath, command string, debug bool) (string, error) {
	filter := NewSeccompFilter(debug)
	filterPath, err := filter.GenerateBPFFilter()
	if err != nil {
		return "", fmt.Errorf("generating syscall filter: %w", err)
	}

	args = append(args, "--seccomp", "3", "--", shellPath, "-c", command)
	bwrapCmd := ShellQuote(args)
	return fmt.Sprintf("exec 3<%s; %s; rm -f %s", ShellQuoteSingle(filterPath), bwrapCmd, ShellQuoteSingle(filterPath)), nil
}

// compileNestedPayload builds the two-stage invocation described in §4.3
// stage (7): an outer, unfiltered bwrap starts the socat forwarders the
// bridge depends on, then execs an inner bwrap that reapplies PID/mount
// isolation, keeps the outer's already-isolated network namespace, and
// applies the syscall filter to the user command alone.
func compileNestedPayload(args []string, shellPath, command string, bridge *BridgeEndpoints, replayBinds []string, debug bool) (string, error) {
	filter := NewSeccompFilter(debug)
	filterPath, err := filter.GenerateBPFFilter()
	if err != nil {
		return "", fmt.Errorf("generating syscall filter: %w", err)
	}

	inner := []string{"bwrap", "--new-session", "--die-with-parent", "--unshare-all", "--share-net", "--ro-bind", "/", "/", "--dev", "/dev", "--proc", "/proc"}
	for _, rp := range replayBinds {
		inner = append(inner, "--bind", rp, rp)
	}
	if bridge.HTTPSocketPath != "" {
		inner = append(inner, "--bind", bridge.HTTPSocketPath, bridge.HTTPSocketPath)
	}
	if bridge.SOCKSSocketPath != "" {
		inner = append(inner, "--bind", bridge.SOCKSSocketPath, bridge.SOCKSSocketPath)
	}
	httpPort, socksPort := 0, 0
	if bridge.HTTPSocketPath != "" {
		httpPort = inSandboxHTTPPort
	}
	if bridge.SOCKSSocketPath != "" {
		socksPort = inSandboxSOCKSPort
	}
	for _, kv := range GenerateProxyEnvVars(httpPort, socksPort) {
		k, v, _ := strings.Cut(kv, "=")
		inner = append(inner, "--setenv", k, v)
	}
	inner = append(inner, "--seccomp", "3", "--", shellPath, "-c", command)

	var script strings.Builder
	if bridge.HTTPSocketPath != "" {
		fmt.Fprintf(&script, "socat TCP-LISTEN:%d,fork,reuseaddr UNIX-CONNECT:%s >/dev/null 2>&1 &\n",
			inSandboxHTTPPort, ShellQuoteSingle(bridge.HTTPSocketPath))
	}
	if bridge.SOCKSSocketPath != "" {
		fmt.Fprintf(&script, "socat TCP-LISTEN:%d,fork,reuseaddr UNIX-CONNECT:%s >/dev/null 2>&1 &\n",
			inSandboxSOCKSPort, ShellQuoteSingle(bridge.SOCKSSocketPath))
	}
	script.WriteString("trap 'jobs -p | xargs -r kill 2>/dev/null' EXIT\n")
	script.WriteString("sleep 0.1\n")
	fmt.Fprintf(&script, "exec 3<%s\n", ShellQuoteSingle(filterPath))
	fmt.Fprintf(&script, "exec %s\n", ShellQuote(inner))

	args = append(args, "--", shellPath, "-c", script.String())
	outerCmd := ShellQuote(args)
	return fmt.Sprintf("%s; rm -f %s", outerCmd, ShellQuoteSingle(filterPath)), nil
}

// expandPolicyPaths normalizes each pattern against cwd and expands any glob
// patterns into concrete existing paths; literal entries pass through.
func expandPolicyPaths(patterns []string, cwd string) []string {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		normalized = append(normalized, NormalizePath(p, cwd))
	}
	return scanner.ExpandGlobPatterns(normalized, cwd)
}

func underAnyRoot(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}
