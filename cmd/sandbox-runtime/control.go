package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ebendler/sandbox-runtime/internal/sandbox"
)

// controlChannel reads newline-delimited JSON sandbox.Policy replacements
// from an inherited file descriptor, letting a long-lived supervisor update
// the policy applied to the *next* wrapped command without restarting this
// process. It never touches a command already running: updates only take
// effect the next time Current is read before calling Wrap.
type controlChannel struct {
	mu      sync.Mutex
	current sandbox.Policy
	debug   bool
}

// newControlChannel starts reading fd in the background, starting from an
// initial policy. It returns immediately; updates apply asynchronously.
func newControlChannel(fd int, initial sandbox.Policy, debug bool) (*controlChannel, func(), error) {
	file := os.NewFile(uintptr(fd), "control-fd")
	if file == nil {
		return nil, nil, fmt.Errorf("invalid control file descriptor: %d", fd)
	}

	ctl := &controlChannel{current: initial, debug: debug}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var p sandbox.Policy
			if err := json.Unmarshal(line, &p); err != nil {
				if debug {
					fmt.Fprintf(os.Stderr, "[sandbox-runtime:control] ignoring malformed policy update: %v\n", err)
				}
				continue
			}
			ctl.mu.Lock()
			ctl.current = p
			ctl.mu.Unlock()
			if debug {
				fmt.Fprintf(os.Stderr, "[sandbox-runtime:control] applied policy update\n")
			}
		}
	}()

	cancel := func() {
		_ = file.Close()
		<-done
	}

	return ctl, cancel, nil
}

// Current returns the most recently received policy, or the initial one if
// no update has arrived yet.
func (c *controlChannel) Current() sandbox.Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
