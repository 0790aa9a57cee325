// Package config loads the CLI's on-disk policy file and turns it into a
// sandbox.Policy. It is ambient front-end plumbing, not part of the core
// compiler: the core takes a Policy value directly and never reads a file
// itself.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/ebendler/sandbox-runtime/internal/sandbox"
)

// Config is the on-disk shape of ~/.sandbox-runtime.json. It has no
// inheritance (no "extends", no templates): one file, flattened, validated.
type Config struct {
	Network    NetworkConfig    `json:"network"`
	Filesystem FilesystemConfig `json:"filesystem"`

	AllowGitConfig bool `json:"allowGitConfig,omitempty"`
	AllowPty       bool `json:"allowPty,omitempty"`
}

// NetworkConfig defines network restrictions.
//
// AllowedDomains/DeniedDomains are not read by the core compiler (domain
// filtering is a Non-goal of the sandbox itself); they configure the
// internal/bridge proxy's domain filter instead.
type NetworkConfig struct {
	AllowedDomains      []string `json:"allowedDomains"`
	DeniedDomains       []string `json:"deniedDomains"`
	AllowAllNetwork     bool     `json:"allowAllNetwork,omitempty"`
	AllowUnixSockets    []string `json:"allowUnixSockets,omitempty"`
	AllowAllUnixSockets bool     `json:"allowAllUnixSockets,omitempty"`
	AllowLocalBinding   bool     `json:"allowLocalBinding,omitempty"`
	HTTPProxyPort       int      `json:"httpProxyPort,omitempty"`
	SOCKSProxyPort      int      `json:"socksProxyPort,omitempty"`
}

// FilesystemConfig defines filesystem restrictions.
type FilesystemConfig struct {
	DenyRead   []string `json:"denyRead"`
	AllowWrite []string `json:"allowWrite"`
	DenyWrite  []string `json:"denyWrite"`
}

// Default returns the default configuration: no filesystem restrictions
// beyond the core's mandatory denies, and no allowed domains. Its network is
// restricted, since AllowAllNetwork is false.
//
// Filesystem.AllowWrite is left nil (not an empty slice): ToPolicy treats a
// nil AllowWrite as "everything writable", while an empty-but-non-nil slice
// means "nothing writable" (sandbox.WritePolicy's read-only-root case).
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			AllowedDomains: []string{},
			DeniedDomains:  []string{},
		},
		Filesystem: FilesystemConfig{
			DenyRead:  []string{},
			DenyWrite: []string{},
		},
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sandbox-runtime.json"
	}
	return filepath.Join(home, ".sandbox-runtime.json")
}

// Load loads configuration from a file path. A missing or empty file is not
// an error: it returns (nil, nil), meaning "use defaults".
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path - intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON in config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, domain := range c.Network.AllowedDomains {
		if err := validateDomainPattern(domain); err != nil {
			return fmt.Errorf("invalid allowed domain %q: %w", domain, err)
		}
	}
	for _, domain := range c.Network.DeniedDomains {
		if err := validateDomainPattern(domain); err != nil {
			return fmt.Errorf("invalid denied domain %q: %w", domain, err)
		}
	}

	if slices.Contains(c.Filesystem.DenyRead, "") {
		return errors.New("filesystem.denyRead contains empty path")
	}
	if slices.Contains(c.Filesystem.AllowWrite, "") {
		return errors.New("filesystem.allowWrite contains empty path")
	}
	if slices.Contains(c.Filesystem.DenyWrite, "") {
		return errors.New("filesystem.denyWrite contains empty path")
	}

	return nil
}

// ToPolicy turns a validated Config into the sandbox.Policy the core
// compiler consumes. Domain filtering (AllowedDomains/DeniedDomains) is
// deliberately absent: it belongs to internal/bridge, not the Policy.
func (c *Config) ToPolicy() sandbox.Policy {
	p := sandbox.Policy{
		AllowGitConfig:    c.AllowGitConfig,
		AllowPty:          c.AllowPty,
		AllowLocalBinding: c.Network.AllowLocalBinding,
	}
	p.Network.Restricted = !c.Network.AllowAllNetwork

	if len(c.Filesystem.DenyRead) > 0 {
		p.Read = &sandbox.ReadPolicy{DenyOnly: c.Filesystem.DenyRead}
	}

	if c.Filesystem.AllowWrite != nil {
		p.Write = &sandbox.WritePolicy{
			AllowOnly:       c.Filesystem.AllowWrite,
			DenyWithinAllow: c.Filesystem.DenyWrite,
		}
	}

	p.UnixSockets = sandbox.UnixSocketPolicy{
		AllowAll:   c.Network.AllowAllUnixSockets,
		AllowPaths: c.Network.AllowUnixSockets,
	}

	return p
}

func validateDomainPattern(pattern string) error {
	if pattern == "localhost" {
		return nil
	}

	if strings.Contains(pattern, "://") || strings.Contains(pattern, "/") || strings.Contains(pattern, ":") {
		return errors.New("domain pattern cannot contain protocol, path, or port")
	}

	if strings.HasPrefix(pattern, "*.") {
		domain := pattern[2:]
		if !strings.Contains(domain, ".") {
			return errors.New("wildcard pattern too broad (e.g., *.com not allowed)")
		}
		if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
			return errors.New("invalid domain format")
		}
		parts := strings.Split(domain, ".")
		if len(parts) < 2 {
			return errors.New("wildcard pattern too broad")
		}
		if slices.Contains(parts, "") {
			return errors.New("invalid domain format")
		}
		return nil
	}

	if strings.Contains(pattern, "*") {
		return errors.New("only *.domain.com wildcard patterns are allowed")
	}

	if !strings.Contains(pattern, ".") || strings.HasPrefix(pattern, ".") || strings.HasSuffix(pattern, ".") {
		return errors.New("invalid domain format")
	}

	return nil
}

// MatchesDomain checks if a hostname matches a domain pattern. Used by
// internal/bridge's domain filter.
func MatchesDomain(hostname, pattern string) bool {
	hostname = strings.ToLower(hostname)
	pattern = strings.ToLower(pattern)

	if pattern == "*" {
		return true
	}

	if strings.HasPrefix(pattern, "*.") {
		baseDomain := pattern[2:]
		return strings.HasSuffix(hostname, "."+baseDomain)
	}

	return hostname == pattern
}
