package limit

import (
	"fmt"
	"net"
)

// RequestLimiter decides whether a client may open another session
type RequestLimiter interface {
	Allow(clientID string) bool
	Close() error
}

// IdentityMode selects how a ClientIdentity is derived from a remote address
type IdentityMode string

const (
	// IdentityEndpoint keys clients by host:port
	IdentityEndpoint IdentityMode = "endpoint"
	// IdentityIP keys clients by host only
	IdentityIP IdentityMode = "ip"
)

// ParseIdentityMode validates a mode name
func ParseIdentityMode(s string) (IdentityMode, error) {
	switch IdentityMode(s) {
	case IdentityEndpoint, IdentityIP:
		return IdentityMode(s), nil
	default:
		return "", fmt.Errorf("invalid identity mode: %q", s)
	}
}

// ClientIdentity extracts the rate-limit key from a remote address
func ClientIdentity(addr net.Addr, mode IdentityMode) string {
	if addr == nil {
		return "unknown"
	}
	if mode != IdentityIP {
		return addr.String()
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
