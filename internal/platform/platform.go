// Package platform detects the host OS family the sandbox runs on.
package platform

import "runtime"

// OS identifies a supported host platform.
type OS int

const (
	Unsupported OS = iota
	Linux
	MacOS
)

func (o OS) String() string {
	switch o {
	case Linux:
		return "linux"
	case MacOS:
		return "darwin"
	default:
		return "unsupported"
	}
}

// Detect returns the OS family of the current host.
func Detect() OS {
	switch runtime.GOOS {
	case "linux":
		return Linux
	case "darwin":
		return MacOS
	default:
		return Unsupported
	}
}

// IsSupported reports whether the current host has a sandbox backend.
func IsSupported() bool {
	return Detect() != Unsupported
}
