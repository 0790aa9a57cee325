//go:build !linux

package bridge

import "fmt"

// unixForwarder is unused outside Linux: the macOS compiler addresses the
// bridge by loopback port directly and has no bind-mount primitive to give a
// Unix socket meaning inside a sandbox profile.
type unixForwarder struct {
	httpSocketPath  string
	socksSocketPath string
}

func newUnixForwarder(httpPort, socksPort int, debug bool) (*unixForwarder, error) {
	return nil, fmt.Errorf("unix-socket bridge forwarding is Linux-only")
}

func (f *unixForwarder) cleanup() {}
