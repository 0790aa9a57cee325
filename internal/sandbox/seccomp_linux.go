//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// afUnix is the socket(2) domain argument value for AF_UNIX, the only
// domain this filter denies (GLOSSARY "Syscall filter").
const afUnix = 1

// seccompDataArgsOffset is offsetof(struct seccomp_data, args[0]); args are
// 64-bit but socket(2)'s domain argument fits the low 32 bits, which is
// what this offset reads on a little-endian kernel.
const seccompDataArgsOffset = 16

// SeccompFilter generates the BPF program that blocks AF_UNIX socket
// creation by the user command (§4.3 stage 7, §9 "Syscall filter vs helper
// processes"). Helper processes (socat bridges) run outside this filter's
// scope, in the outer unfiltered stage.
type SeccompFilter struct {
	debug bool
}

// NewSeccompFilter returns a filter generator. debug enables stderr tracing
// of the generated program's shape.
func NewSeccompFilter(debug bool) *SeccompFilter {
	return &SeccompFilter{debug: debug}
}

// GenerateBPFFilter writes the BPF program to a temporary file and returns
// its path. The caller opens this file on the fd bwrap's --seccomp expects.
func (s *SeccompFilter) GenerateBPFFilter() (string, error) {
	socketNum, ok := syscallNumber("socket")
	if !ok {
		return "", fmt.Errorf("socket syscall number unknown for this architecture")
	}

	tmpDir := filepath.Join(os.TempDir(), "sandbox-runtime-seccomp")
	if err := os.MkdirAll(tmpDir, 0o700); err != nil {
		return "", fmt.Errorf("create seccomp dir: %w", err)
	}

	filterPath := filepath.Join(tmpDir, fmt.Sprintf("filter-%d.bpf", os.Getpid()))
	if err := writeAFUnixDenyFilter(filterPath, socketNum); err != nil {
		return "", fmt.Errorf("write BPF program: %w", err)
	}

	if s.debug {
		fmt.Fprintf(os.Stderr, "[sandbox-runtime:seccomp] generated filter at %s (deny socket(AF_UNIX,...))\n", filterPath)
	}

	return filterPath, nil
}

// CleanupFilter removes a generated filter file.
func (s *SeccompFilter) CleanupFilter(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

// writeAFUnixDenyFilter assembles and writes a 6-instruction BPF program:
// allow every syscall except socket(2) calls whose domain argument is
// AF_UNIX, which return EPERM.
func writeAFUnixDenyFilter(path string, socketNum int) error {
	denyAction := uint32(SECCOMP_RET_ERRNO) | (uint32(unix.EPERM) & 0xFFFF)

	program := []bpfInstruction{
		{code: BPF_LD | BPF_W | BPF_ABS, k: 0},
		{code: BPF_JMP | BPF_JEQ | BPF_K, jt: 0, jf: 3, k: uint32(socketNum)}, //nolint:gosec
		{code: BPF_LD | BPF_W | BPF_ABS, k: seccompDataArgsOffset},
		{code: BPF_JMP | BPF_JEQ | BPF_K, jt: 0, jf: 1, k: afUnix},
		{code: BPF_RET | BPF_K, k: denyAction},
		{code: BPF_RET | BPF_K, k: SECCOMP_RET_ALLOW},
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for _, inst := range program {
		if err := inst.writeTo(f); err != nil {
			return err
		}
	}
	return nil
}

// BPF instruction codes (linux/filter.h).
const (
	BPF_LD  = 0x00
	BPF_JMP = 0x05
	BPF_RET = 0x06
	BPF_W   = 0x00
	BPF_ABS = 0x20
	BPF_JEQ = 0x10
	BPF_K   = 0x00
)

// Seccomp return actions (linux/seccomp.h).
const (
	SECCOMP_RET_ALLOW = 0x7fff0000
	SECCOMP_RET_ERRNO = 0x00050000
)

type bpfInstruction struct {
	code uint16
	jt   uint8
	jf   uint8
	k    uint32
}

func (i *bpfInstruction) writeTo(f *os.File) error {
	buf := make([]byte, 8)
	buf[0] = byte(i.code)
	buf[1] = byte(i.code >> 8)
	buf[2] = i.jt
	buf[3] = i.jf
	buf[4] = byte(i.k)
	buf[5] = byte(i.k >> 8)
	buf[6] = byte(i.k >> 16)
	buf[7] = byte(i.k >> 24)
	_, err := f.Write(buf)
	return err
}

// syscallNumber returns the syscall number for name on the current
// architecture. Only "socket" is needed by this filter.
func syscallNumber(name string) (int, bool) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err != nil {
		return 0, false
	}

	machine := string(utsname.Machine[:])
	for i, c := range machine {
		if c == 0 {
			machine = machine[:i]
			break
		}
	}

	switch machine {
	case "aarch64", "arm64":
		return map[string]int{"socket": 198}[name], name == "socket"
	default:
		return map[string]int{"socket": 41}[name], name == "socket"
	}
}
