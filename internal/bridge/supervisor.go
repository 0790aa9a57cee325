package bridge

import (
	"fmt"

	"github.com/ebendler/sandbox-runtime/internal/sandbox"
)

// Supervisor runs the HTTP and SOCKS5 proxies that back a sandbox.Policy's
// network bridge, and on Linux additionally forwards them through Unix
// sockets so a network-namespace-isolated sandbox can reach them without any
// TCP route to the host. It is a reference implementation of the "external
// network-bridge supervisor" the core only ever reads endpoints from.
type Supervisor struct {
	http  *HTTPProxy
	socks *SOCKSProxy
	sock  *unixForwarder // nil outside Linux, or when forwarding wasn't requested

	httpPort  int
	socksPort int
	debug     bool
}

// NewSupervisor starts an HTTP and SOCKS5 proxy pair filtering on the given
// domain allow/deny lists.
func NewSupervisor(allowedDomains, deniedDomains []string, matches func(hostname, pattern string) bool, debug, monitor bool) (*Supervisor, error) {
	filter := CreateDomainFilter(allowedDomains, deniedDomains, matches, debug)

	s := &Supervisor{
		http:  NewHTTPProxy(filter, debug, monitor),
		socks: NewSOCKSProxy(filter, debug, monitor),
		debug: debug,
	}

	httpPort, err := s.http.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start HTTP proxy: %w", err)
	}

	socksPort, err := s.socks.Start()
	if err != nil {
		s.http.Stop()
		return nil, fmt.Errorf("failed to start SOCKS proxy: %w", err)
	}

	s.httpPort = httpPort
	s.socksPort = socksPort
	return s, nil
}

// EnableUnixForwarding starts socat-based Unix-socket forwarders in front of
// the HTTP/SOCKS ports (Linux only: a network-namespace-isolated sandbox has
// no TCP route to the host's loopback, but a bind-mounted socket works).
// On non-Linux platforms it returns an error and starts nothing: the macOS
// compiler addresses the bridge by port directly.
func (s *Supervisor) EnableUnixForwarding() error {
	fwd, err := newUnixForwarder(s.httpPort, s.socksPort, s.debug)
	if err != nil {
		return err
	}
	s.sock = fwd
	return nil
}

// Endpoints returns the sandbox.BridgeEndpoints value describing this
// supervisor's running proxies, suitable for sandbox.Policy.Network.Bridge.
func (s *Supervisor) Endpoints() sandbox.BridgeEndpoints {
	ep := sandbox.BridgeEndpoints{
		HTTPPort:  s.httpPort,
		SOCKSPort: s.socksPort,
	}
	if s.sock != nil {
		ep.HTTPSocketPath = s.sock.httpSocketPath
		ep.SOCKSSocketPath = s.sock.socksSocketPath
	}
	return ep
}

// Stop tears down the proxies and any Unix-socket forwarders.
func (s *Supervisor) Stop() {
	if s.sock != nil {
		s.sock.cleanup()
	}
	s.socks.Stop()
	s.http.Stop()
}
