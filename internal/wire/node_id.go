package wire

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NodeID identifies a cluster member as "name@host:port". It is the
// identity carried in every Envelope.From and the key every membership
// table, gossip delta, and remote handle is indexed by.
type NodeID string

var nodeNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ErrInvalidNodeID is returned by ParseNodeID when the string does not
// match the "name@host:port" shape.
var ErrInvalidNodeID = fmt.Errorf("invalid node id")

// ParseNodeID validates s and returns it as a NodeID. The name component
// must match ^[A-Za-z][A-Za-z0-9_-]{0,63}$ and the port must be a valid
// TCP port in 1..65535.
func ParseNodeID(s string) (NodeID, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return "", fmt.Errorf("%w: %q missing '@'", ErrInvalidNodeID, s)
	}

	name, hostPort := s[:at], s[at+1:]
	if !nodeNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q has invalid name", ErrInvalidNodeID, s)
	}

	colon := strings.LastIndex(hostPort, ":")
	if colon < 0 {
		return "", fmt.Errorf("%w: %q missing port", ErrInvalidNodeID, s)
	}

	host, portStr := hostPort[:colon], hostPort[colon+1:]
	if host == "" {
		return "", fmt.Errorf("%w: %q missing host", ErrInvalidNodeID, s)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("%w: %q has invalid port", ErrInvalidNodeID, s)
	}

	return NodeID(s), nil
}

// Name returns the name component of the node id.
func (n NodeID) Name() string {
	if at := strings.LastIndex(string(n), "@"); at >= 0 {
		return string(n)[:at]
	}
	return string(n)
}

// Address returns the "host:port" component of the node id.
func (n NodeID) Address() string {
	if at := strings.LastIndex(string(n), "@"); at >= 0 {
		return string(n)[at+1:]
	}
	return ""
}

func (n NodeID) String() string { return string(n) }
