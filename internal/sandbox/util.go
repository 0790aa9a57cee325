package sandbox

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// maxLogTagCommandLength bounds how much of the sandboxed command is
// embedded in a sandbox-profile log tag (§6 "tagged log channel"): long
// commands would otherwise bloat every denial message.
const maxLogTagCommandLength = 100

// RemoveTrailingGlobSuffix strips exactly one trailing "/**" from p, used to
// recover the literal directory a recursive-glob write-allow pattern refers
// to (e.g. for deriving its ancestor chain).
func RemoveTrailingGlobSuffix(p string) string {
	return strings.TrimSuffix(p, "/**")
}

// GenerateProxyEnvVars returns the "VAR=value" environment entries the
// sandboxed process sees when a network bridge forwards HTTP and/or SOCKS
// traffic on localhost. httpPort/socksPort of 0 disables the corresponding
// half.
func GenerateProxyEnvVars(httpPort, socksPort int) []string {
	envs := []string{
		"SANDBOX_RUNTIME=1",
		"TMPDIR=/tmp/sandbox-runtime",
	}

	if httpPort > 0 {
		httpURL := "http://localhost:" + strconv.Itoa(httpPort)
		envs = append(envs,
			"HTTP_PROXY="+httpURL,
			"HTTPS_PROXY="+httpURL,
			"http_proxy="+httpURL,
			"https_proxy="+httpURL,
		)
	}

	if socksPort > 0 {
		socksURL := "socks5h://localhost:" + strconv.Itoa(socksPort)
		envs = append(envs,
			"ALL_PROXY="+socksURL,
			"all_proxy="+socksURL,
			"FTP_PROXY="+socksURL,
			"GIT_SSH_COMMAND=ssh -o ProxyCommand='nc -X 5 -x localhost:"+strconv.Itoa(socksPort)+" %h %p'",
		)
	}

	if httpPort > 0 || socksPort > 0 {
		envs = append(envs, "NO_PROXY=localhost,127.0.0.1", "no_proxy=localhost,127.0.0.1")
	}

	return envs
}

// EncodeSandboxedCommand returns a URL-safe base64 encoding of the first
// maxLogTagCommandLength bytes of command, suitable for embedding in a
// sandbox-profile log tag or message string.
func EncodeSandboxedCommand(command string) string {
	if len(command) > maxLogTagCommandLength {
		command = command[:maxLogTagCommandLength]
	}
	return base64.RawURLEncoding.EncodeToString([]byte(command))
}

// DecodeSandboxedCommand reverses EncodeSandboxedCommand.
func DecodeSandboxedCommand(encoded string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
