package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/roasbeef/holon/internal/wire"
)

// HandshakeTimeout bounds how long Dial's TCP connect may take before it
// is abandoned; the Hello exchange that follows is not covered by it.
const HandshakeTimeout = 5000 * time.Millisecond

// Backoff parameters for Dialer's reconnect loop, matching spec.md §4.4
// exactly: no jitter, unlike the ambient gossip reconnect elsewhere.
const (
	initialBackoff = 1 * time.Second
	backoffFactor  = 1.5
	maxBackoff     = 30 * time.Second
)

// IsInitiator reports whether self should be the one to dial peer, given
// both ends of a link independently decide this the same way: the
// lexicographically lower NodeID always dials.
func IsInitiator(self, peer wire.NodeID) bool {
	return strings.Compare(string(self), string(peer)) < 0
}

// Dialer establishes and maintains an outbound Conn to a single peer,
// reconnecting with exponential backoff whenever the link drops, until the
// context passed to Run is cancelled. It does not itself check IsInitiator.
type Dialer struct {
	Self      wire.NodeID
	NetDialer net.Dialer
	MaxFrame  int
}

// Dial performs a single connection attempt to addr, wrapping it as a
// Conn for peer. It does not retry; callers that want the reconnect loop
// use Run.
func (d *Dialer) Dial(ctx context.Context, peer wire.NodeID, addr string) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	nc, err := d.NetDialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	conn := NewConn(nc, peer, d.MaxFrame)
	conn.Start()

	return conn, nil
}

// Run dials peer at addr, invoking onConn for every successful
// connection, and reconnects with exponential backoff (1s, factor 1.5,
// cap 30s, no jitter) whenever the Conn reports it has closed. It
// returns only when ctx is cancelled.
func (d *Dialer) Run(ctx context.Context, peer wire.NodeID, addr string, onConn func(*Conn)) {
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := d.Dial(ctx, peer, addr)
		if err != nil {
			log.Debugf("transport: dial %s failed: %v, retrying in %s",
				peer, err, backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}

			backoff = nextBackoff(backoff)
			continue
		}

		backoff = initialBackoff
		onConn(conn)

		select {
		case <-conn.Done():
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * backoffFactor)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
