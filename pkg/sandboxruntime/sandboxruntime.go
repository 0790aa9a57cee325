// Package sandboxruntime is the public API for embedding the sandbox core
// in another Go program, mirroring what cmd/sandbox-runtime does for the
// CLI: load or construct a Policy, run an Orchestrator, compile a command.
package sandboxruntime

import (
	"context"

	"github.com/ebendler/sandbox-runtime/internal/config"
	"github.com/ebendler/sandbox-runtime/internal/sandbox"
)

// Policy is the caller-supplied sandboxing intent for one wrapped command.
type Policy = sandbox.Policy

// ReadPolicy restricts what the sandboxed command may read.
type ReadPolicy = sandbox.ReadPolicy

// WritePolicy restricts what the sandboxed command may write.
type WritePolicy = sandbox.WritePolicy

// NetworkPolicy controls network namespace isolation.
type NetworkPolicy = sandbox.NetworkPolicy

// BridgeEndpoints are the Unix-socket/port pair a network-bridge supervisor
// exposes for outbound HTTP and SOCKS traffic.
type BridgeEndpoints = sandbox.BridgeEndpoints

// UnixSocketPolicy controls Unix-domain-socket creation by the sandboxed
// command, independent of NetworkPolicy.
type UnixSocketPolicy = sandbox.UnixSocketPolicy

// CompileError is returned when policy compilation fails on the host
// platform.
type CompileError = sandbox.CompileError

// Config is the on-disk configuration shape, for callers that want to load
// ~/.sandbox-runtime.json (or an equivalent file) instead of building a
// Policy by hand.
type Config = config.Config

// Orchestrator compiles a Policy into one outer command string for the host
// platform.
type Orchestrator = sandbox.Orchestrator

// NewOrchestrator returns an Orchestrator. If debug is true, the compiled
// commands and the Mount-Point Reaper log diagnostics to stderr.
func NewOrchestrator(debug bool) *Orchestrator {
	return sandbox.NewOrchestrator(debug)
}

// DefaultConfig returns the default configuration: no filesystem
// restrictions beyond the core's mandatory denies, with network restricted
// (deny-all) unless the caller sets AllowAllNetwork.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig loads configuration from a file. A missing or empty file
// returns (nil, nil): callers should fall back to DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfigPath returns the default config file path
// (~/.sandbox-runtime.json).
func DefaultConfigPath() string {
	return config.DefaultConfigPath()
}

// Wrap is a convenience wrapper: it loads cfg (if non-nil) into a Policy and
// compiles it around command via a fresh Orchestrator. Callers that need to
// reuse the Orchestrator across multiple commands (to share its Reaper)
// should call NewOrchestrator and Wrap directly instead.
func Wrap(ctx context.Context, cfg *Config, command, cwd string, debug bool) (string, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	orch := NewOrchestrator(debug)
	return orch.Wrap(ctx, cfg.ToPolicy(), command, cwd)
}
