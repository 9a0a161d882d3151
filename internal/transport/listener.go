package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/roasbeef/holon/internal/wire"
)

// Listen opens a TCP listener on addr. The caller drives Accept in a
// loop, wrapping each accepted connection with Wrap.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Wrap adapts an accepted net.Conn into a started Conn. The peer's
// NodeID is not yet known at accept time; it is filled in once the
// handshake's Hello envelope arrives, via SetPeer.
func Wrap(nc net.Conn, maxFrameSize int) *Conn {
	conn := NewConn(nc, "", maxFrameSize)
	conn.Start()
	return conn
}

// SetPeer records the peer's identity once learned from its handshake.
func (c *Conn) SetPeer(peer wire.NodeID) { c.Peer = peer }

// Serve accepts connections on ln until ctx is cancelled, handing each
// one to onAccept.
func Serve(ctx context.Context, ln net.Listener, maxFrameSize int, onAccept func(*Conn)) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("transport: accept: %w", err)
			}
		}

		onAccept(Wrap(nc, maxFrameSize))
	}
}
