//go:build linux

package bridge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// unixForwarder spawns socat processes that forward Unix-domain sockets to
// the supervisor's loopback HTTP/SOCKS ports, so a sandboxed command whose
// network namespace has no route to the host can still reach them by a
// bind-mounted socket path.
type unixForwarder struct {
	httpSocketPath  string
	socksSocketPath string
	httpProcess     *exec.Cmd
	socksProcess    *exec.Cmd
	debug           bool
}

func newUnixForwarder(httpPort, socksPort int, debug bool) (*unixForwarder, error) {
	if _, err := exec.LookPath("socat"); err != nil {
		return nil, fmt.Errorf("socat is required to forward the bridge over a unix socket but not found: %w", err)
	}

	id := make([]byte, 8)
	if _, err := rand.Read(id); err != nil {
		return nil, fmt.Errorf("failed to generate socket id: %w", err)
	}
	socketID := hex.EncodeToString(id)

	tmpDir := os.TempDir()
	httpSocketPath := filepath.Join(tmpDir, fmt.Sprintf("sandbox-runtime-http-%s.sock", socketID))
	socksSocketPath := filepath.Join(tmpDir, fmt.Sprintf("sandbox-runtime-socks-%s.sock", socketID))

	fwd := &unixForwarder{
		httpSocketPath:  httpSocketPath,
		socksSocketPath: socksSocketPath,
		debug:           debug,
	}

	httpArgs := []string{
		fmt.Sprintf("UNIX-LISTEN:%s,fork,reuseaddr", httpSocketPath),
		fmt.Sprintf("TCP:localhost:%d", httpPort),
	}
	fwd.httpProcess = exec.Command("socat", httpArgs...) //nolint:gosec // args built from trusted local ports/paths
	if debug {
		fmt.Fprintf(os.Stderr, "[sandbox-runtime:bridge:linux] starting HTTP forwarder: socat %s\n", strings.Join(httpArgs, " "))
	}
	if err := fwd.httpProcess.Start(); err != nil {
		return nil, fmt.Errorf("failed to start HTTP forwarder: %w", err)
	}

	socksArgs := []string{
		fmt.Sprintf("UNIX-LISTEN:%s,fork,reuseaddr", socksSocketPath),
		fmt.Sprintf("TCP:localhost:%d", socksPort),
	}
	fwd.socksProcess = exec.Command("socat", socksArgs...) //nolint:gosec // args built from trusted local ports/paths
	if debug {
		fmt.Fprintf(os.Stderr, "[sandbox-runtime:bridge:linux] starting SOCKS forwarder: socat %s\n", strings.Join(socksArgs, " "))
	}
	if err := fwd.socksProcess.Start(); err != nil {
		fwd.cleanup()
		return nil, fmt.Errorf("failed to start SOCKS forwarder: %w", err)
	}

	for range 50 {
		if fileExists(httpSocketPath) && fileExists(socksSocketPath) {
			if debug {
				fmt.Fprintf(os.Stderr, "[sandbox-runtime:bridge:linux] forwarders ready (HTTP: %s, SOCKS: %s)\n", httpSocketPath, socksSocketPath)
			}
			return fwd, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fwd.cleanup()
	return nil, fmt.Errorf("timeout waiting for bridge sockets to be created")
}

func (f *unixForwarder) cleanup() {
	if f.httpProcess != nil && f.httpProcess.Process != nil {
		_ = f.httpProcess.Process.Kill()
		_ = f.httpProcess.Wait()
	}
	if f.socksProcess != nil && f.socksProcess.Process != nil {
		_ = f.socksProcess.Process.Kill()
		_ = f.socksProcess.Wait()
	}

	_ = os.Remove(f.httpSocketPath)
	_ = os.Remove(f.socksSocketPath)

	if f.debug {
		fmt.Fprintf(os.Stderr, "[sandbox-runtime:bridge:linux] forwarders cleaned up\n")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
