package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ebendler/sandbox-runtime/internal/scanner"
)

// sessionSuffix identifies this process's compiled profiles in the log tag,
// so concurrent sandboxed commands don't share a denial-message namespace.
var sessionSuffix = generateSessionSuffix()

func generateSessionSuffix() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		panic("failed to generate session suffix: " + err.Error())
	}
	return "_" + hex.EncodeToString(bytes)[:9] + "_SBX"
}

// GlobToRegex converts a glob pattern (*, **, ?) into the regex syntax a
// sandbox-profile (regex ...) clause expects.
func GlobToRegex(glob string) string {
	result := "^"
	escaped := regexp.QuoteMeta(glob)
	escaped = strings.ReplaceAll(escaped, `\*\*/`, "(.*/)?")
	escaped = strings.ReplaceAll(escaped, `\*\*`, ".*")
	escaped = strings.ReplaceAll(escaped, `\*`, "[^/]*")
	escaped = strings.ReplaceAll(escaped, `\?`, "[^/]")
	result += escaped + "$"
	return result
}

func escapePath(path string) string {
	return fmt.Sprintf("%q", path)
}

// getAncestorDirectories returns every directory strictly above pathStr, up
// to but excluding "/".
func getAncestorDirectories(pathStr string) []string {
	var ancestors []string
	current := filepath.Dir(pathStr)
	for current != "/" && current != "." {
		ancestors = append(ancestors, current)
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return ancestors
}

// getTmpdirParent returns the macOS per-process TMPDIR's parent (the
// /var/folders/XX/YYY directory), in both its /var and /private/var forms,
// so temp-file libraries keep working under a default-deny write profile.
func getTmpdirParent() []string {
	tmpdir := os.Getenv("TMPDIR")
	if tmpdir == "" {
		return nil
	}
	pattern := regexp.MustCompile(`^/(private/)?var/folders/[^/]{2}/[^/]+/T/?$`)
	if !pattern.MatchString(tmpdir) {
		return nil
	}
	parent := strings.TrimSuffix(strings.TrimSuffix(tmpdir, "/"), "/T")
	if strings.HasPrefix(parent, "/private/var/") {
		return []string{parent, strings.Replace(parent, "/private", "", 1)}
	}
	if strings.HasPrefix(parent, "/var/") {
		return []string{parent, "/private" + parent}
	}
	return []string{parent}
}

// resolveMacPath applies the symlink-boundary check from §4.1/§4.4: if the
// path resolves through a symlink into a wider scope, the literal (input)
// path is emitted instead of the resolved one, so the profile rule cannot be
// widened by a symlink trick. Otherwise the resolved, canonical path is used.
func resolveMacPath(normalized string) string {
	if ContainsGlobChars(normalized) {
		return normalized
	}
	canonical, ok := resolveCanonical(normalized)
	if !ok || SymlinkWidens(normalized, canonical) {
		return normalized
	}
	return canonical
}

func pathRule(verb, normalized, logTag string) []string {
	if ContainsGlobChars(normalized) {
		regex := GlobToRegex(normalized)
		return []string{
			fmt.Sprintf("(%s", verb),
			fmt.Sprintf("  (regex %s)", escapePath(regex)),
			fmt.Sprintf("  (with message %q))", logTag),
		}
	}
	return []string{
		fmt.Sprintf("(%s", verb),
		fmt.Sprintf("  (subpath %s)", escapePath(normalized)),
		fmt.Sprintf("  (with message %q))", logTag),
	}
}

// generateMoveBlockingRules defends against the rename-exfiltration family
// (§4.4): a file-write-unlink deny on the path itself and on every ancestor
// directory up to "/", since rename's write-check walks the ancestor chain
// of the source.
func generateMoveBlockingRules(normalizedPaths []string, logTag string) []string {
	var rules []string
	for _, normalized := range normalizedPaths {
		rules = append(rules, pathRule("deny file-write-unlink", normalized, logTag)...)

		base := normalized
		if ContainsGlobChars(base) {
			base = GlobBase(base)
			if base == "" {
				continue
			}
		}
		for _, ancestor := range getAncestorDirectories(base) {
			rules = append(rules,
				"(deny file-write-unlink",
				fmt.Sprintf("  (literal %s)", escapePath(ancestor)),
				fmt.Sprintf("  (with message %q))", logTag),
			)
		}
	}
	return rules
}

func generateReadRules(denyPaths []string, logTag string) []string {
	rules := []string{"(allow file-read*)"}
	for _, p := range denyPaths {
		rules = append(rules, pathRule("deny file-read*", p, logTag)...)
	}
	rules = append(rules, generateMoveBlockingRules(denyPaths, logTag)...)
	return rules
}

// generateUnixSocketRules implements §4.4's Unix-socket rule family,
// independently of network policy: allowAll or allowPaths both need
// socket(AF_UNIX) creation allowed via a domain predicate (sandbox-exec has
// no way to scope socket creation itself to a path), plus bind/outbound
// rules scoped by path (wildcard subpath for allowAll, per-path subpath for
// allowPaths).
func generateUnixSocketRules(allowAll bool, allowPaths []string) []string {
	if !allowAll && len(allowPaths) == 0 {
		return nil
	}

	rules := []string{"(allow system-socket (socket-domain AF_UNIX))"}
	if allowAll {
		rules = append(rules, `(allow network-bind (unix-socket (subpath "/")))`,
			`(allow network-outbound (unix-socket (subpath "/")))`)
		return rules
	}
	for _, socketPath := range allowPaths {
		rules = append(rules,
			fmt.Sprintf("(allow network-bind (unix-socket (subpath %s)))", escapePath(socketPath)),
			fmt.Sprintf("(allow network-outbound (unix-socket (subpath %s)))", escapePath(socketPath)),
		)
	}
	return rules
}

func generateWriteRules(allowPaths, denyPaths []string, logTag string) []string {
	var rules []string

	for _, tmpdirParent := range getTmpdirParent() {
		rules = append(rules, pathRule("allow file-write*", tmpdirParent, logTag)...)
	}

	for _, p := range allowPaths {
		rules = append(rules, pathRule("allow file-write*", p, logTag)...)
	}
	for _, p := range denyPaths {
		rules = append(rules, pathRule("deny file-write*", p, logTag)...)
	}
	rules = append(rules, generateMoveBlockingRules(denyPaths, logTag)...)

	return rules
}

// macProfileParams is the normalized, ready-to-render form of a Policy for
// the macOS compiler; every path in it has already been resolved through
// NormalizePath/resolveMacPath against a cwd.
type macProfileParams struct {
	command           string
	networkRestricted bool
	allowLocalBinding bool
	httpPort          int
	socksPort         int
	allowAllSockets   bool
	allowSocketPaths  []string
	readDenyPaths     []string
	writeAllowPaths   []string
	writeDenyPaths    []string
	allowPty          bool
}

// GenerateSandboxProfile renders params into a complete sandbox-exec profile
// text (§4.4).
func GenerateSandboxProfile(params macProfileParams) string {
	logTag := "CMD64_" + EncodeSandboxedCommand(params.command) + "_END" + sessionSuffix

	var profile strings.Builder
	profile.WriteString("(version 1)\n")
	fmt.Fprintf(&profile, "(deny default (with message %q))\n\n", logTag)
	fmt.Fprintf(&profile, "; LogTag: %s\n\n", logTag)
	profile.WriteString(macOSBasePreamble)

	profile.WriteString("; Network\n")
	if !params.networkRestricted {
		profile.WriteString("(allow network*)\n")
	} else {
		if params.allowLocalBinding {
			profile.WriteString(`(allow network-bind (local ip "localhost:*"))
(allow network-bind (local ip6 "localhost:*"))
(allow network-inbound (local ip "localhost:*"))
(allow network-inbound (local ip6 "localhost:*"))
(allow network-bind (local ip "::ffff:127.0.0.1:*"))
(allow network-inbound (local ip "::ffff:127.0.0.1:*"))
`)
		}
		if params.httpPort > 0 {
			fmt.Fprintf(&profile, `(allow network-bind (local ip "localhost:%d"))
(allow network-inbound (local ip "localhost:%d"))
(allow network-outbound (remote ip "localhost:%d"))
`, params.httpPort, params.httpPort, params.httpPort)
		}
		if params.socksPort > 0 {
			fmt.Fprintf(&profile, `(allow network-bind (local ip "localhost:%d"))
(allow network-inbound (local ip "localhost:%d"))
(allow network-outbound (remote ip "localhost:%d"))
`, params.socksPort, params.socksPort, params.socksPort)
		}
	}

	if rules := generateUnixSocketRules(params.allowAllSockets, params.allowSocketPaths); len(rules) > 0 {
		profile.WriteString("\n; Unix domain sockets\n")
		for _, rule := range rules {
			profile.WriteString(rule + "\n")
		}
	}

	profile.WriteString("\n; File read\n")
	for _, rule := range generateReadRules(params.readDenyPaths, logTag) {
		profile.WriteString(rule + "\n")
	}
	profile.WriteString("\n; File write\n")
	for _, rule := range generateWriteRules(params.writeAllowPaths, params.writeDenyPaths, logTag) {
		profile.WriteString(rule + "\n")
	}

	if params.allowPty {
		profile.WriteString(`
; Pseudo-terminal (pty) support
(allow pseudo-tty)
(allow file-ioctl
  (literal "/dev/ptmx")
  (regex #"^/dev/ttys")
)
(allow file-read* file-write*
  (literal "/dev/ptmx")
  (regex #"^/dev/ttys")
)
`)
	}

	return profile.String()
}

// CompileMacOS turns p into a single host shell command that, when run,
// executes command under sandbox-exec enforcing p (§4.4).
func CompileMacOS(ctx context.Context, p Policy, command, cwd string, debug bool) (string, error) {
	shellName := p.BinShell
	if shellName == "" {
		shellName = "bash"
	}
	shellPath, err := exec.LookPath(shellName)
	if err != nil {
		return "", fmt.Errorf("shell %q not found: %w", shellName, err)
	}

	params := macProfileParams{
		command:  command,
		allowPty: p.AllowPty,
	}

	if p.Network.Restricted {
		params.networkRestricted = true
		params.allowLocalBinding = p.AllowLocalBinding
		if b := p.Network.Bridge; b != nil {
			params.httpPort = b.HTTPPort
			params.socksPort = b.SOCKSPort
		}
	}

	params.allowAllSockets = p.UnixSockets.AllowAll
	for _, raw := range expandPolicyPathsMac(p.UnixSockets.AllowPaths, cwd) {
		params.allowSocketPaths = append(params.allowSocketPaths, resolveMacPath(NormalizePath(raw, cwd)))
	}

	if p.Read != nil {
		for _, raw := range expandPolicyPathsMac(p.Read.DenyOnly, cwd) {
			params.readDenyPaths = append(params.readDenyPaths, resolveMacPath(NormalizePath(raw, cwd)))
		}
	}

	var writeAllow []string
	for _, dp := range GetDefaultWritePaths() {
		writeAllow = append(writeAllow, resolveMacPath(NormalizePath(dp, cwd)))
	}
	if p.Write != nil {
		for _, raw := range expandPolicyPathsMac(p.Write.AllowOnly, cwd) {
			writeAllow = append(writeAllow, resolveMacPath(NormalizePath(raw, cwd)))
		}
	}
	params.writeAllowPaths = writeAllow

	var writeDeny []string
	writeDeny = append(writeDeny, MandatoryDenies(ctx, cwd, p.AllowGitConfig, p.MandatoryDenySearchDepth)...)
	if p.Write != nil {
		writeDeny = append(writeDeny, expandPolicyPathsMac(p.Write.DenyWithinAllow, cwd)...)
	}
	for i, raw := range writeDeny {
		writeDeny[i] = resolveMacPath(NormalizePath(raw, cwd))
	}
	params.writeDenyPaths = writeDeny

	profile := GenerateSandboxProfile(params)

	var parts []string
	parts = append(parts, "env")
	httpPort, socksPort := 0, 0
	if p.Network.Bridge != nil {
		httpPort = p.Network.Bridge.HTTPPort
		socksPort = p.Network.Bridge.SOCKSPort
	}
	parts = append(parts, GenerateProxyEnvVars(httpPort, socksPort)...)
	parts = append(parts, "sandbox-exec", "-p", profile, shellPath, "-c", command)

	return ShellQuote(parts), nil
}

func expandPolicyPathsMac(patterns []string, cwd string) []string {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		normalized = append(normalized, NormalizePath(p, cwd))
	}
	return scanner.ExpandGlobPatterns(normalized, cwd)
}

// macOSBasePreamble is the fixed set of process/IPC/sysctl allowances every
// sandboxed command needs regardless of policy, modeled on Chrome's own
// macOS sandbox policy.
const macOSBasePreamble = `; Essential permissions - based on Chrome sandbox policy
; Process permissions
(allow process-exec)
(allow process-fork)
(allow process-info* (target same-sandbox))
(allow signal (target same-sandbox))
(allow mach-priv-task-port (target same-sandbox))

; User preferences
(allow user-preference-read)

; Mach IPC - specific services only
(allow mach-lookup
  (global-name "com.apple.audio.systemsoundserver")
  (global-name "com.apple.distributed_notifications@Uv3")
  (global-name "com.apple.FontObjectsServer")
  (global-name "com.apple.fonts")
  (global-name "com.apple.logd")
  (global-name "com.apple.lsd.mapdb")
  (global-name "com.apple.PowerManagement.control")
  (global-name "com.apple.system.logger")
  (global-name "com.apple.system.notification_center")
  (global-name "com.apple.trustd.agent")
  (global-name "com.apple.system.opendirectoryd.libinfo")
  (global-name "com.apple.system.opendirectoryd.membership")
  (global-name "com.apple.bsd.dirhelper")
  (global-name "com.apple.securityd.xpc")
  (global-name "com.apple.coreservices.launchservicesd")
  (global-name "com.apple.FSEvents")
  (global-name "com.apple.fseventsd")
  (global-name "com.apple.SystemConfiguration.configd")
)

; POSIX IPC
(allow ipc-posix-shm)
(allow ipc-posix-sem)

; IOKit
(allow iokit-open
  (iokit-registry-entry-class "IOSurfaceRootUserClient")
  (iokit-registry-entry-class "RootDomainUserClient")
  (iokit-user-client-class "IOSurfaceSendRight")
)
(allow iokit-get-properties)

; System socket for network info
(allow system-socket (require-all (socket-domain AF_SYSTEM) (socket-protocol 2)))

; sysctl reads
(allow sysctl-read
  (sysctl-name "hw.activecpu")
  (sysctl-name "hw.busfrequency_compat")
  (sysctl-name "hw.byteorder")
  (sysctl-name "hw.cacheconfig")
  (sysctl-name "hw.cachelinesize_compat")
  (sysctl-name "hw.cpufamily")
  (sysctl-name "hw.cpufrequency")
  (sysctl-name "hw.cpufrequency_compat")
  (sysctl-name "hw.cputype")
  (sysctl-name "hw.l1dcachesize_compat")
  (sysctl-name "hw.l1icachesize_compat")
  (sysctl-name "hw.l2cachesize_compat")
  (sysctl-name "hw.l3cachesize_compat")
  (sysctl-name "hw.logicalcpu")
  (sysctl-name "hw.logicalcpu_max")
  (sysctl-name "hw.machine")
  (sysctl-name "hw.memsize")
  (sysctl-name "hw.ncpu")
  (sysctl-name "hw.nperflevels")
  (sysctl-name "hw.packages")
  (sysctl-name "hw.pagesize_compat")
  (sysctl-name "hw.pagesize")
  (sysctl-name "hw.physicalcpu")
  (sysctl-name "hw.physicalcpu_max")
  (sysctl-name "hw.tbfrequency_compat")
  (sysctl-name "hw.vectorunit")
  (sysctl-name "kern.argmax")
  (sysctl-name "kern.bootargs")
  (sysctl-name "kern.hostname")
  (sysctl-name "kern.maxfiles")
  (sysctl-name "kern.maxfilesperproc")
  (sysctl-name "kern.maxproc")
  (sysctl-name "kern.ngroups")
  (sysctl-name "kern.osproductversion")
  (sysctl-name "kern.osrelease")
  (sysctl-name "kern.ostype")
  (sysctl-name "kern.osvariant_status")
  (sysctl-name "kern.osversion")
  (sysctl-name "kern.secure_kernel")
  (sysctl-name "kern.tcsm_available")
  (sysctl-name "kern.tcsm_enable")
  (sysctl-name "kern.usrstack64")
  (sysctl-name "kern.version")
  (sysctl-name "kern.willshutdown")
  (sysctl-name "machdep.cpu.brand_string")
  (sysctl-name "machdep.ptrauth_enabled")
  (sysctl-name "security.mac.lockdown_mode_state")
  (sysctl-name "sysctl.proc_cputype")
  (sysctl-name "vm.loadavg")
  (sysctl-name-prefix "hw.optional.arm")
  (sysctl-name-prefix "hw.optional.arm.")
  (sysctl-name-prefix "hw.optional.armv8_")
  (sysctl-name-prefix "hw.perflevel")
  (sysctl-name-prefix "kern.proc.all")
  (sysctl-name-prefix "kern.proc.pgrp.")
  (sysctl-name-prefix "kern.proc.pid.")
  (sysctl-name-prefix "machdep.cpu.")
  (sysctl-name-prefix "net.routetable.")
)

; V8 thread calculations
(allow sysctl-write
  (sysctl-name "kern.tcsm_enable")
)

; Distributed notifications
(allow distributed-notification-post)

; Security server
(allow mach-lookup (global-name "com.apple.SecurityServer"))

; Device I/O
(allow file-ioctl (literal "/dev/null"))
(allow file-ioctl (literal "/dev/zero"))
(allow file-ioctl (literal "/dev/random"))
(allow file-ioctl (literal "/dev/urandom"))
(allow file-ioctl (literal "/dev/dtracehelper"))
(allow file-ioctl (literal "/dev/tty"))

(allow file-ioctl file-read-data file-write-data
  (require-all
    (literal "/dev/null")
    (vnode-type CHARACTER-DEVICE)
  )
)

`
