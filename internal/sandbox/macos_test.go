package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGlobToRegex(t *testing.T) {
	cases := map[string]string{
		"/foo/*.txt":  `^/foo/[^/]*\.txt$`,
		"/foo/**/bar": `^/foo/(.*/)?bar$`,
	}
	for glob, want := range cases {
		if got := GlobToRegex(glob); got != want {
			t.Errorf("GlobToRegex(%q) = %q, want %q", glob, got, want)
		}
	}
}

func TestGenerateSandboxProfileUnrestrictedNetwork(t *testing.T) {
	profile := GenerateSandboxProfile(macProfileParams{command: "echo hi"})
	if !strings.Contains(profile, "(allow network*)") {
		t.Error("expected unrestricted network profile to allow all network")
	}
}

func TestGenerateSandboxProfileRestrictedNetworkWithBridge(t *testing.T) {
	profile := GenerateSandboxProfile(macProfileParams{
		command:           "echo hi",
		networkRestricted: true,
		httpPort:          18080,
		socksPort:         18081,
	})
	if strings.Contains(profile, "(allow network*)\n") {
		t.Error("expected restricted network profile not to blanket-allow network")
	}
	if !strings.Contains(profile, `"localhost:18080"`) {
		t.Errorf("expected HTTP bridge port rule, got: %s", profile)
	}
	if !strings.Contains(profile, `"localhost:18081"`) {
		t.Errorf("expected SOCKS bridge port rule, got: %s", profile)
	}
}

func TestGenerateSandboxProfileAllowLocalBinding(t *testing.T) {
	profile := GenerateSandboxProfile(macProfileParams{
		command:           "echo hi",
		networkRestricted: true,
		allowLocalBinding: true,
	})
	if !strings.Contains(profile, "::ffff:127.0.0.1") {
		t.Errorf("expected IPv4-mapped-IPv6 loopback rule, got: %s", profile)
	}
}

func TestGenerateSandboxProfileUnixSocketAllowAll(t *testing.T) {
	profile := GenerateSandboxProfile(macProfileParams{
		command:         "echo hi",
		allowAllSockets: true,
	})
	if !strings.Contains(profile, "(allow system-socket (socket-domain AF_UNIX))") {
		t.Errorf("expected AF_UNIX socket-creation allow, got: %s", profile)
	}
	if !strings.Contains(profile, `(unix-socket (subpath "/"))`) {
		t.Errorf("expected wildcard unix-socket bind/outbound rule, got: %s", profile)
	}
}

func TestGenerateSandboxProfileUnixSocketAllowAllIndependentOfNetwork(t *testing.T) {
	profile := GenerateSandboxProfile(macProfileParams{
		command:           "echo hi",
		networkRestricted: false,
		allowAllSockets:   true,
	})
	if !strings.Contains(profile, "(allow system-socket (socket-domain AF_UNIX))") {
		t.Errorf("expected AF_UNIX allow even with network unrestricted, got: %s", profile)
	}
}

func TestGenerateSandboxProfileUnixSocketAllowPaths(t *testing.T) {
	profile := GenerateSandboxProfile(macProfileParams{
		command:           "echo hi",
		networkRestricted: true,
		allowSocketPaths:  []string{"/tmp/docker.sock"},
	})
	if !strings.Contains(profile, "(allow system-socket (socket-domain AF_UNIX))") {
		t.Errorf("expected AF_UNIX socket-creation allow, got: %s", profile)
	}
	if !strings.Contains(profile, `(unix-socket (subpath "/tmp/docker.sock"))`) {
		t.Errorf("expected scoped unix-socket rule for /tmp/docker.sock, got: %s", profile)
	}
}

func TestGenerateSandboxProfileNoUnixSocketRulesWhenNotAllowed(t *testing.T) {
	profile := GenerateSandboxProfile(macProfileParams{command: "echo hi"})
	if strings.Contains(profile, "socket-domain AF_UNIX") {
		t.Errorf("expected no AF_UNIX allow when no unix sockets are permitted, got: %s", profile)
	}
}

func TestGenerateMoveBlockingRulesWalksAncestors(t *testing.T) {
	rules := generateMoveBlockingRules([]string{"/a/b/c"}, "tag")
	joined := strings.Join(rules, "\n")
	for _, ancestor := range []string{"/a/b", "/a"} {
		if !strings.Contains(joined, escapePath(ancestor)) {
			t.Errorf("expected ancestor %s to be blocked, rules: %s", ancestor, joined)
		}
	}
}

func TestCompileMacOSUsesDenyDefault(t *testing.T) {
	dir := t.TempDir()
	cmd, err := CompileMacOS(context.Background(), Policy{}, "echo hi", dir, false)
	if err != nil {
		t.Fatalf("CompileMacOS() error = %v", err)
	}
	if !strings.Contains(cmd, "sandbox-exec") {
		t.Errorf("expected sandbox-exec invocation, got: %s", cmd)
	}
	if !strings.Contains(cmd, "deny default") {
		t.Errorf("expected deny-default preamble, got: %s", cmd)
	}
}

func TestCompileMacOSMandatoryDenyProtectsGitConfig(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := os.Mkdir(gitDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "config"), []byte("[core]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd, err := CompileMacOS(context.Background(), Policy{}, "true", dir, false)
	if err != nil {
		t.Fatalf("CompileMacOS() error = %v", err)
	}
	if !strings.Contains(cmd, filepath.Join(gitDir, "config")) {
		t.Errorf("expected .git/config in compiled profile, got: %s", cmd)
	}
}

func TestCompileMacOSMissingShellErrors(t *testing.T) {
	p := Policy{BinShell: "definitely-not-a-real-shell"}
	if _, err := CompileMacOS(context.Background(), p, "true", t.TempDir(), false); err == nil {
		t.Error("expected error for missing shell binary")
	}
}
