package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/ebendler/sandbox-runtime/internal/platform"
)

// CompileError is returned by the Orchestrator when policy compilation
// fails. It carries the platform the attempt was made on, so a caller
// logging the error doesn't need to re-detect it.
type CompileError struct {
	Platform platform.OS
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("sandbox compile failed on %s: %v", e.Platform, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Orchestrator composes a Policy into one outer command string for the host
// platform and owns the Mount-Point Reaper accumulated while doing so. It
// does not start or manage a network-bridge supervisor: Policy.Network.Bridge
// must already carry live endpoints by the time Wrap is called (§6).
type Orchestrator struct {
	reaper *Reaper
	debug  bool

	registerOnce sync.Once
}

// NewOrchestrator returns an Orchestrator with a fresh, empty Reaper.
func NewOrchestrator(debug bool) *Orchestrator {
	return &Orchestrator{
		reaper: NewReaper(debug),
		debug:  debug,
	}
}

// Wrap compiles p into a shell command string that enforces it around
// command, run from cwd. When p restricts nothing on any axis (no read/write
// restriction, network unrestricted, unix sockets unrestricted), Wrap
// short-circuits and returns command unchanged without invoking a platform
// compiler at all (§4.6). The compilers themselves always emit mandatory
// deny rules, so this is the only path that is a true pass-through.
func (o *Orchestrator) Wrap(ctx context.Context, p Policy, command, cwd string) (string, error) {
	if isUnrestricted(p) {
		return command, nil
	}

	plat := platform.Detect()
	if plat == platform.Unsupported {
		return "", &CompileError{Platform: plat, Err: fmt.Errorf("sandboxing is not supported on this platform")}
	}

	o.registerOnce.Do(func() {
		RegisterForExitCleanup(o.reaper)
	})

	var (
		cmd string
		err error
	)
	switch plat {
	case platform.MacOS:
		cmd, err = CompileMacOS(ctx, p, command, cwd, o.debug)
	case platform.Linux:
		cmd, err = CompileLinux(ctx, p, command, cwd, o.reaper, o.debug)
	}
	if err != nil {
		return "", &CompileError{Platform: plat, Err: err}
	}
	return cmd, nil
}

// isUnrestricted reports whether p places no restriction on any axis: no
// read/write policy, an unrestricted network, and unix sockets allowed
// everywhere. This is stricter than a zero-value Policy, whose
// UnixSockets.AllowAll defaults to false (meaning unix sockets are denied
// once actually compiled); only an explicit AllowAll qualifies as nothing
// left to restrict.
func isUnrestricted(p Policy) bool {
	return p.Read == nil &&
		p.Write == nil &&
		!p.Network.Restricted &&
		p.UnixSockets.AllowAll
}

// Cleanup removes any mount-point artifacts Wrap registered with the
// Reaper. Safe to call more than once.
func (o *Orchestrator) Cleanup() {
	o.reaper.Cleanup()
}

// Reaper exposes the Orchestrator's Mount-Point Reaper, mainly for tests
// that need to assert on registered artifacts without racing Cleanup.
func (o *Orchestrator) Reaper() *Reaper {
	return o.reaper
}
