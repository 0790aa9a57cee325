//go:build !linux

package sandbox

import "errors"

// errSeccompUnsupported is returned by GenerateBPFFilter on platforms with
// no seccomp-BPF; the macOS compiler enforces its Unix-socket policy
// through the sandbox profile instead (§4.4 "Unix sockets").
var errSeccompUnsupported = errors.New("seccomp-bpf not supported on this platform")

// SeccompFilter is a stub on platforms without seccomp-BPF.
type SeccompFilter struct {
	debug bool
}

// NewSeccompFilter returns a stub filter generator.
func NewSeccompFilter(debug bool) *SeccompFilter {
	return &SeccompFilter{debug: debug}
}

// GenerateBPFFilter always fails on non-Linux platforms.
func (s *SeccompFilter) GenerateBPFFilter() (string, error) {
	return "", errSeccompUnsupported
}

// CleanupFilter is a no-op on non-Linux platforms.
func (s *SeccompFilter) CleanupFilter(path string) {}
