package commands

import (
	"context"
	"testing"

	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/wire"
	"github.com/stretchr/testify/require"
)

func mustNodeID(t *testing.T, s string) wire.NodeID {
	t.Helper()
	id, err := wire.ParseNodeID(s)
	require.NoError(t, err)
	return id
}

func TestAwaitPeerFindsConvergedMember(t *testing.T) {
	aAddr, bAddr := "127.0.0.1:19501", "127.0.0.1:19502"
	aID := mustNodeID(t, "a@"+aAddr)
	bID := mustNodeID(t, "b@"+bAddr)

	a, err := cluster.Join(context.Background(), cluster.Config{
		Self: aID, ListenAddr: aAddr, HeartbeatMs: 50,
	})
	require.NoError(t, err)
	defer a.Leave(context.Background())

	b, err := cluster.Join(context.Background(), cluster.Config{
		Self: bID, ListenAddr: bAddr, Seeds: []string{aAddr}, HeartbeatMs: 50,
	})
	require.NoError(t, err)
	defer b.Leave(context.Background())

	peer, err := awaitPeer(a, aID)
	require.NoError(t, err)
	require.Equal(t, bID, peer)
}

func TestAwaitPeerTimesOutAlone(t *testing.T) {
	addr := "127.0.0.1:19503"
	id := mustNodeID(t, "solo@"+addr)

	cl, err := cluster.Join(context.Background(), cluster.Config{
		Self: id, ListenAddr: addr, HeartbeatMs: 50,
	})
	require.NoError(t, err)
	defer cl.Leave(context.Background())

	_, err = awaitPeer(cl, id)
	require.Error(t, err)
}

func TestJSONToCBORDecodesArbitraryShapes(t *testing.T) {
	var out any
	require.NoError(t, jsonToCBOR(`{"n":1,"s":"x","a":[1,2,3]}`, &out))

	m, ok := out.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "x", m["s"])
}
