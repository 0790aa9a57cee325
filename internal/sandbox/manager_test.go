package sandbox

import (
	"context"
	"os/exec"
	"testing"

	"github.com/ebendler/sandbox-runtime/internal/platform"
)

func TestOrchestratorWrapNoRestrictions(t *testing.T) {
	if !platform.IsSupported() {
		t.Skip("unsupported platform")
	}
	if platform.Detect() == platform.Linux {
		if _, err := exec.LookPath("bwrap"); err != nil {
			t.Skip("bwrap not installed")
		}
	}

	o := NewOrchestrator(false)
	cmd, err := o.Wrap(context.Background(), Policy{}, "echo hi", t.TempDir())
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if cmd == "" {
		t.Error("expected a non-empty compiled command")
	}
	o.Cleanup()
}

func TestOrchestratorWrapUnrestrictedIsPassThrough(t *testing.T) {
	o := NewOrchestrator(false)
	p := Policy{UnixSockets: UnixSocketPolicy{AllowAll: true}}
	cmd, err := o.Wrap(context.Background(), p, "echo hi", t.TempDir())
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if cmd != "echo hi" {
		t.Errorf("Wrap() = %q, want unchanged command %q", cmd, "echo hi")
	}
}

func TestOrchestratorWrapZeroPolicyIsNotShortCircuited(t *testing.T) {
	if isUnrestricted(Policy{}) {
		t.Fatal("zero-value Policy should not be treated as unrestricted (UnixSockets.AllowAll defaults false)")
	}
}

func TestOrchestratorWrapMissingShellReturnsCompileError(t *testing.T) {
	if !platform.IsSupported() {
		t.Skip("unsupported platform")
	}

	o := NewOrchestrator(false)
	p := Policy{BinShell: "definitely-not-a-real-shell"}
	_, err := o.Wrap(context.Background(), p, "true", t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a missing shell binary")
	}

	var compileErr *CompileError
	if !asCompileError(err, &compileErr) {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
	if compileErr.Platform != platform.Detect() {
		t.Errorf("CompileError.Platform = %v, want %v", compileErr.Platform, platform.Detect())
	}
}

func TestOrchestratorCleanupIsIdempotent(t *testing.T) {
	o := NewOrchestrator(false)
	o.Cleanup()
	o.Cleanup()
}

func asCompileError(err error, target **CompileError) bool {
	ce, ok := err.(*CompileError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
