//go:build linux

package sandbox

import "testing"

func TestDetectLinuxFeaturesCached(t *testing.T) {
	a := DetectLinuxFeatures()
	b := DetectLinuxFeatures()
	if a != b {
		t.Error("DetectLinuxFeatures() should return the same cached pointer across calls")
	}
}

func TestMinimumViable(t *testing.T) {
	f := &LinuxFeatures{HasBwrap: true, HasSocat: true}
	if !f.MinimumViable() {
		t.Error("MinimumViable() = false, want true when bwrap and socat are both present")
	}

	f2 := &LinuxFeatures{HasBwrap: true, HasSocat: false}
	if f2.MinimumViable() {
		t.Error("MinimumViable() = true, want false when socat is missing")
	}
}
