package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/transport"
	"github.com/roasbeef/holon/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestDialerConnectsToListener(t *testing.T) {
	ln, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accepted := make(chan *transport.Conn, 1)
	go transport.Serve(ctx, ln, 0, func(c *transport.Conn) {
		accepted <- c
	})

	bob, _ := wire.ParseNodeID("bob@127.0.0.1:4002")
	dialer := &transport.Dialer{}
	conn, err := dialer.Dial(ctx, bob, ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case server := <-accepted:
		defer server.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted the connection")
	}
}
