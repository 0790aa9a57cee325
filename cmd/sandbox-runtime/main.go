// Package main implements the sandbox-runtime CLI, the ambient front-end
// around the internal/sandbox core: it loads a policy file, stands up the
// network-bridge supervisor, compiles and runs the wrapped command, and
// tears everything back down afterward.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ebendler/sandbox-runtime/internal/bridge"
	"github.com/ebendler/sandbox-runtime/internal/config"
	"github.com/ebendler/sandbox-runtime/internal/platform"
	"github.com/ebendler/sandbox-runtime/internal/sandbox"
)

// Build-time variables (set via -ldflags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	debug        bool
	monitor      bool
	settingsPath string
	cmdString    string
	controlFD    int
	exitCode     int
	showVersion  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sandbox-runtime [flags] -- [command...]",
		Short: "Run a command under a filesystem/network/unix-socket sandbox",
		Long: `sandbox-runtime runs a command under a host-OS sandbox that restricts
filesystem access, network access, and unix-domain-socket creation.

By default, all network access is blocked. Configure allowed domains in
~/.sandbox-runtime.json or pass a settings file with --settings.

Examples:
  sandbox-runtime -- curl -s https://example.com
  sandbox-runtime -c "echo hello && ls"
  sandbox-runtime --settings policy.json npm install
  sandbox-runtime --monitor -- npm test

Configuration file format (~/.sandbox-runtime.json):
{
  "network": {
    "allowedDomains": ["github.com", "*.npmjs.org"],
    "deniedDomains": []
  },
  "filesystem": {
    "denyRead": [],
    "allowWrite": ["."],
    "denyWrite": []
  }
}`,
		RunE:          runCommand,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
	}

	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.Flags().BoolVarP(&monitor, "monitor", "m", false, "Monitor and log sandbox violations")
	rootCmd.Flags().StringVarP(&settingsPath, "settings", "s", "", "Path to settings file (default: ~/.sandbox-runtime.json)")
	rootCmd.Flags().StringVarP(&cmdString, "c", "c", "", "Run command string directly (like sh -c)")
	rootCmd.Flags().IntVar(&controlFD, "control-fd", -1, "Inherited file descriptor carrying newline-delimited JSON policy updates")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")

	rootCmd.Flags().SetInterspersed(true)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}

func runCommand(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("sandbox-runtime - host-OS sandbox for running untrusted commands\n")
		fmt.Printf("  Version: %s\n", version)
		fmt.Printf("  Built:   %s\n", buildTime)
		fmt.Printf("  Commit:  %s\n", gitCommit)
		return nil
	}

	var command string
	switch {
	case cmdString != "":
		command = cmdString
	case len(args) > 0:
		command = strings.Join(args, " ")
	default:
		return fmt.Errorf("no command specified. Use -c <command> or provide command arguments")
	}

	if debug {
		fmt.Fprintf(os.Stderr, "[sandbox-runtime] command: %s\n", command)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	policy := cfg.ToPolicy()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	var supervisor *bridge.Supervisor
	if policy.Network.Restricted {
		supervisor, err = bridge.NewSupervisor(cfg.Network.AllowedDomains, cfg.Network.DeniedDomains, config.MatchesDomain, debug, monitor)
		if err != nil {
			return fmt.Errorf("failed to start network bridge: %w", err)
		}
		defer supervisor.Stop()

		if platform.Detect() == platform.Linux {
			if err := supervisor.EnableUnixForwarding(); err != nil {
				return fmt.Errorf("failed to start unix-socket bridge forwarding: %w", err)
			}
		}

		endpoints := supervisor.Endpoints()
		policy.Network.Bridge = &endpoints
	}

	var ctlCancel context.CancelFunc
	var ctl *controlChannel
	if controlFD >= 0 {
		ctl, ctlCancel, err = newControlChannel(controlFD, policy, debug)
		if err != nil {
			return fmt.Errorf("failed to start control channel: %w", err)
		}
		defer ctlCancel()
	}

	orch := sandbox.NewOrchestrator(debug)
	defer orch.Cleanup()

	currentPolicy := policy
	if ctl != nil {
		currentPolicy = ctl.Current()
	}

	sandboxedCommand, err := orch.Wrap(context.Background(), currentPolicy, command, cwd)
	if err != nil {
		return fmt.Errorf("failed to compile sandbox policy: %w", err)
	}

	if debug {
		fmt.Fprintf(os.Stderr, "[sandbox-runtime] compiled command: %s\n", sandboxedCommand)
	}

	var violationMonitor *sandbox.ViolationMonitor
	if monitor {
		violationMonitor = sandbox.NewViolationMonitor(sandbox.GetSessionSuffix())
		if violationMonitor != nil {
			if err := violationMonitor.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "[sandbox-runtime] warning: failed to start violation monitor: %v\n", err)
			} else {
				defer violationMonitor.Stop()
			}
		}
	}

	hardenedEnv := sandbox.GetHardenedEnv()
	if debug {
		if stripped := sandbox.GetStrippedEnvVars(os.Environ()); len(stripped) > 0 {
			fmt.Fprintf(os.Stderr, "[sandbox-runtime] stripped dangerous env vars: %v\n", stripped)
		}
	}

	execCmd := exec.Command("sh", "-c", sandboxedCommand) //nolint:gosec // sandboxedCommand is constructed from the compiler, not raw user input
	execCmd.Env = hardenedEnv
	execCmd.Stdin = os.Stdin
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := execCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	go func() {
		sigCount := 0
		for sig := range sigChan {
			sigCount++
			if execCmd.Process == nil {
				continue
			}
			if sigCount >= 2 {
				_ = execCmd.Process.Kill()
			} else {
				_ = execCmd.Process.Signal(sig)
			}
		}
	}()

	if err := execCmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			return nil
		}
		return fmt.Errorf("command failed: %w", err)
	}

	return nil
}

func loadConfig() (*config.Config, error) {
	if settingsPath != "" {
		cfg, err := config.Load(settingsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if cfg == nil {
			cfg = config.Default()
		}
		return cfg, nil
	}

	configPath := config.DefaultConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg == nil {
		if debug {
			fmt.Fprintf(os.Stderr, "[sandbox-runtime] no config found at %s, using default (block all network)\n", configPath)
		}
		cfg = config.Default()
	}
	return cfg, nil
}
