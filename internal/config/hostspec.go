package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseHostSpec parses "host", "user@host", "host:port" or
// "user@host:port". IPv6 addresses with a port must be bracketed.
func ParseHostSpec(spec string) (HostSpec, error) {
	var hs HostSpec
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return hs, fmt.Errorf("empty host")
	}

	if at := strings.LastIndex(spec, "@"); at >= 0 {
		hs.User = spec[:at]
		spec = spec[at+1:]
		if hs.User == "" {
			return hs, fmt.Errorf("empty user in host %q", spec)
		}
	}

	host, port, err := net.SplitHostPort(spec)
	switch {
	case err == nil:
		p, convErr := strconv.Atoi(port)
		if convErr != nil || p < 1 || p > 65535 {
			return hs, fmt.Errorf("invalid port %q", port)
		}
		hs.Host = host
		hs.Port = p
	case strings.Count(spec, ":") > 1 && !strings.HasPrefix(spec, "["):
		// Bare IPv6 address without a port.
		hs.Host = spec
	case strings.HasPrefix(spec, "[") && strings.HasSuffix(spec, "]"):
		hs.Host = strings.Trim(spec, "[]")
	case strings.Contains(spec, ":"):
		return hs, fmt.Errorf("invalid host %q: %w", spec, err)
	default:
		hs.Host = spec
	}

	if hs.Host == "" {
		return hs, fmt.Errorf("empty host")
	}
	return hs, nil
}

// String formats the spec back to user@host:port, omitting empty parts.
func (h HostSpec) String() string {
	host := h.Host
	if h.Port != 0 {
		host = net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if h.User != "" {
		return h.User + "@" + host
	}
	return host
}
