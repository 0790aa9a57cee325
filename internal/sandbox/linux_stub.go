//go:build !linux

package sandbox

import (
	"context"
	"fmt"
)

// CompileLinux is unavailable outside Linux.
func CompileLinux(ctx context.Context, p Policy, command, cwd string, reaper *Reaper, debug bool) (string, error) {
	return "", fmt.Errorf("the Linux policy compiler is not available on this platform")
}
