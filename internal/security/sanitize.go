package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/yoanbernabeu/provisioner/internal/constants"
)

var (
	// hostnameRegex validates DNS hostnames (RFC 1123 labels)
	hostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

	// unixUserRegex validates Unix usernames
	// Standard POSIX username rules
	// Length: 1-32 characters
	unixUserRegex = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

	// envKeyRegex validates environment variable keys
	// Standard environment variable naming
	envKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// sensitiveLogPatterns used by SanitizeCommandForLog to mask secrets
	sensitiveLogPatterns = []string{
		"PASSWORD=",
		"PASSWD=",
		"SSHPASS=",
		"TOKEN=",
		"SECRET=",
		"DATABASE_URL=",
		"--password=",
		"--passwd=",
	}
)

// ValidateHost validates a remote host: an IP literal or a DNS hostname.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if len(host) > 253 {
		return fmt.Errorf("host too long (max 253 characters)")
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("host must be an IP address or a hostname")
	}
	return nil
}

// ValidatePort validates a TCP port number
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateUnixUser validates a Unix username
func ValidateUnixUser(user string) error {
	if user == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(user) > 32 {
		return fmt.Errorf("username too long (max 32 characters)")
	}
	if !unixUserRegex.MatchString(user) {
		return fmt.Errorf("username must start with a lowercase letter or underscore, followed by lowercase letters, numbers, underscores, or hyphens")
	}
	return nil
}

// ValidateEnvKey validates an environment variable key
func ValidateEnvKey(key string) error {
	if key == "" {
		return fmt.Errorf("environment variable key cannot be empty")
	}
	if len(key) > 256 {
		return fmt.Errorf("environment variable key too long (max 256 characters)")
	}
	if !envKeyRegex.MatchString(key) {
		return fmt.Errorf("environment variable key must start with a letter or underscore, followed by letters, numbers, or underscores")
	}
	return nil
}

// SanitizeCommandForLog masks sensitive values in commands before logging.
// This prevents secrets from leaking into verbose output or log files.
func SanitizeCommandForLog(cmd string) string {
	result := cmd

	// Mask sensitive assignments and --password= style flags
	for _, pattern := range sensitiveLogPatterns {
		searchFrom := 0
		for {
			idx := strings.Index(result[searchFrom:], pattern)
			if idx == -1 {
				break
			}
			absIdx := searchFrom + idx
			valueStart := absIdx + len(pattern)
			valueEnd := findValueEnd(result, valueStart)
			masked := constants.Mask
			result = result[:valueStart] + masked + result[valueEnd:]
			// Advance past the replacement to avoid infinite loop
			searchFrom = valueStart + len(masked)
		}
	}

	return result
}

// findValueEnd finds where a shell value ends (handles quoted and unquoted values)
func findValueEnd(s string, start int) int {
	if start >= len(s) {
		return start
	}

	if s[start] == '\'' {
		end := strings.Index(s[start+1:], "'")
		if end == -1 {
			return len(s)
		}
		return start + end + 2
	}

	if s[start] == '"' {
		end := strings.Index(s[start+1:], "\"")
		if end == -1 {
			return len(s)
		}
		return start + end + 2
	}

	for i := start; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' || s[i] == '\n' {
			return i
		}
	}
	return len(s)
}

// GenerateMarker returns prefix followed by 16 random hex characters. The
// result is unpredictable to remote output, so it can frame command output.
func GenerateMarker(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes for marker: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}
