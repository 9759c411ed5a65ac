package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yoanbernabeu/provisioner/internal/constants"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeySource says where host-key verification material comes from.
type hostKeySource int

const (
	hostKeyNone hostKeySource = iota
	hostKeyEnv
	hostKeyInsecure
	hostKeyFile
)

// resolveHostKeySource picks the verification material for target without
// touching the network. The path is set for hostKeyFile.
func resolveHostKeySource(target Target) (hostKeySource, string) {
	if os.Getenv(constants.EnvKnownHosts) != "" {
		return hostKeyEnv, ""
	}
	if target.InsecureIgnoreHostKey || os.Getenv(constants.EnvSkipHostKeyCheck) == "true" {
		return hostKeyInsecure, ""
	}
	path := knownHostsPath(target)
	if path == "" {
		return hostKeyNone, ""
	}
	if _, err := os.Stat(path); err != nil {
		return hostKeyNone, path
	}
	return hostKeyFile, path
}

// knownHostsPath returns the target's known_hosts file or ~/.ssh/known_hosts.
func knownHostsPath(target Target) string {
	if target.KnownHosts != "" {
		return expandHome(target.KnownHosts)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".ssh", "known_hosts")
}

// hostKeyCallback returns the host key callback for target.
// SECURITY: a known_hosts file is required by default.
// In CI/CD, set PROVISIONER_KNOWN_HOSTS with the content of known_hosts
// or PROVISIONER_SKIP_HOST_KEY_CHECK=true to skip verification (not recommended)
func hostKeyCallback(target Target) (ssh.HostKeyCallback, error) {
	source, path := resolveHostKeySource(target)
	switch source {
	case hostKeyEnv:
		// knownhosts.New only reads files
		tmpFile, err := os.CreateTemp("", "known_hosts")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp known_hosts: %w", err)
		}
		defer os.Remove(tmpFile.Name())

		if _, err := tmpFile.WriteString(os.Getenv(constants.EnvKnownHosts)); err != nil {
			tmpFile.Close()
			return nil, fmt.Errorf("failed to write temp known_hosts: %w", err)
		}
		tmpFile.Close()

		callback, err := knownhosts.New(tmpFile.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", constants.EnvKnownHosts, err)
		}
		return callback, nil

	case hostKeyInsecure:
		return ssh.InsecureIgnoreHostKey(), nil

	case hostKeyFile:
		callback, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read known_hosts: %w", err)
		}
		return callback, nil
	}

	return nil, fmt.Errorf("SSH known_hosts file not found at %s. "+
		"Please connect to the server manually first with: ssh %s@%s -p %d\n"+
		"For CI/CD, set %s or %s=true",
		path, target.User, target.Host, target.port(), constants.EnvKnownHosts, constants.EnvSkipHostKeyCheck)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
