package transport_test

import (
	"net"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/transport"
	"github.com/roasbeef/holon/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestConnSendRecvRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	alice, err := wire.ParseNodeID("alice@127.0.0.1:4001")
	require.NoError(t, err)
	bob, err := wire.ParseNodeID("bob@127.0.0.1:4002")
	require.NoError(t, err)

	client := transport.NewConn(clientConn, bob, 0)
	server := transport.NewConn(serverConn, alice, 0)
	client.Start()
	server.Start()
	defer client.Close()
	defer server.Close()

	env := wire.Envelope{
		Version: 1, From: alice, TimestampMs: 42,
		Payload: wire.Payload{Kind: wire.KindHeartbeat, Heartbeat: &wire.Heartbeat{}},
	}
	require.NoError(t, client.Send(env))

	select {
	case got := <-server.Recv():
		require.Equal(t, alice, got.From)
		require.Equal(t, wire.KindHeartbeat, got.Payload.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestConnCloseClosesDone(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	alice, _ := wire.ParseNodeID("alice@127.0.0.1:4001")
	client := transport.NewConn(clientConn, alice, 0)
	server := transport.NewConn(serverConn, alice, 0)
	client.Start()
	server.Start()

	require.NoError(t, client.Close())

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("Done channel never closed")
	}

	server.Close()
}

func TestIsInitiatorPicksLowerNodeID(t *testing.T) {
	a, _ := wire.ParseNodeID("alice@127.0.0.1:4001")
	b, _ := wire.ParseNodeID("bob@127.0.0.1:4002")

	require.True(t, transport.IsInitiator(a, b))
	require.False(t, transport.IsInitiator(b, a))
}
