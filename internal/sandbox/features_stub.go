//go:build !linux

package sandbox

// LinuxFeatures is a stub on non-Linux platforms.
type LinuxFeatures struct {
	HasBwrap      bool
	HasSocat      bool
	HasSeccomp    bool
	CanUnshareNet bool
	KernelMajor   int
	KernelMinor   int
}

// DetectLinuxFeatures returns empty features on non-Linux platforms.
func DetectLinuxFeatures() *LinuxFeatures {
	return &LinuxFeatures{}
}

// MinimumViable always returns false on non-Linux platforms.
func (f *LinuxFeatures) MinimumViable() bool {
	return false
}
