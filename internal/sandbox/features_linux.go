//go:build linux

package sandbox

import (
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// LinuxFeatures describes what the Linux compiler's stages can actually
// rely on in this environment (§4.3/§4.5/§6).
type LinuxFeatures struct {
	HasBwrap bool
	HasSocat bool

	HasSeccomp bool

	// CanUnshareNet reports whether bwrap --unshare-net actually works here.
	// Containerized environments (Docker, GitHub Actions) commonly lack
	// CAP_NET_ADMIN, which this namespace setup needs.
	CanUnshareNet bool

	KernelMajor int
	KernelMinor int
}

var (
	detectedFeatures *LinuxFeatures
	detectOnce       sync.Once
)

// DetectLinuxFeatures probes the host once and caches the result.
func DetectLinuxFeatures() *LinuxFeatures {
	detectOnce.Do(func() {
		detectedFeatures = &LinuxFeatures{}
		detectedFeatures.detect()
	})
	return detectedFeatures
}

func (f *LinuxFeatures) detect() {
	f.HasBwrap = commandExists("bwrap")
	f.HasSocat = commandExists("socat")
	f.parseKernelVersion()
	f.detectSeccomp()
	f.detectNetworkNamespace()
}

func (f *LinuxFeatures) parseKernelVersion() {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return
	}

	release := unix.ByteSliceToString(uname.Release[:])
	parts := strings.Split(release, ".")
	if len(parts) >= 2 {
		f.KernelMajor, _ = strconv.Atoi(parts[0])
		minorStr := strings.Split(parts[1], "-")[0]
		f.KernelMinor, _ = strconv.Atoi(minorStr)
	}
}

func (f *LinuxFeatures) detectSeccomp() {
	// PR_GET_SECCOMP returns 0 if disabled, 1/2 if enabled, EINVAL if
	// supported but not active for this process.
	_, _, err := unix.Syscall(unix.SYS_PRCTL, unix.PR_GET_SECCOMP, 0, 0)
	if err == 0 || err == unix.EINVAL {
		f.HasSeccomp = true
	}
}

// detectNetworkNamespace probes whether bwrap --unshare-net actually works
// by running a minimal sandbox with it enabled.
func (f *LinuxFeatures) detectNetworkNamespace() {
	if !f.HasBwrap {
		return
	}
	cmd := exec.Command("bwrap", "--unshare-net", "--ro-bind", "/", "/", "--", "/bin/true")
	f.CanUnshareNet = cmd.Run() == nil
}

// MinimumViable reports whether the tools the compiler hard-requires exist.
func (f *LinuxFeatures) MinimumViable() bool {
	return f.HasBwrap && f.HasSocat
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
