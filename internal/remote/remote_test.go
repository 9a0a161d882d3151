package remote_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/remote"
	"github.com/roasbeef/holon/internal/wire"
	"github.com/stretchr/testify/require"
)

type echoMsg struct {
	actor.BaseMessage
	Delta int
}

func (echoMsg) MessageType() string { return "echoMsg" }

type echoBehavior struct {
	mu    sync.Mutex
	total int
}

func (b *echoBehavior) HandleCall(_ context.Context, msg echoMsg) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += msg.Delta
	return b.total, nil
}

func (b *echoBehavior) HandleCast(_ context.Context, msg echoMsg) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += msg.Delta
	return nil
}

func mustNodeID(t *testing.T, s string) wire.NodeID {
	t.Helper()
	id, err := wire.ParseNodeID(s)
	require.NoError(t, err)
	return id
}

// joinedNode bundles a Cluster, ActorSystem, and remote.Node together, the
// unit every Call/Cast/Spawn/Monitor test below needs on each side.
type joinedNode struct {
	cl  *cluster.Cluster
	sys *actor.ActorSystem
	rn  *remote.Node
}

func joinNode(t *testing.T, addr string, id wire.NodeID, seeds []string) *joinedNode {
	t.Helper()

	ctx := context.Background()
	cl, err := cluster.Join(ctx, cluster.Config{
		Self: id, ListenAddr: addr, Seeds: seeds, HeartbeatMs: 50,
	})
	require.NoError(t, err)

	sys := actor.NewActorSystem()
	rn := remote.NewNode(sys, cl)

	// Registered per-Node, not in an init(): two joinedNodes in this same
	// test binary must not share one behavior table.
	remote.RegisterBehavior(rn, "echo", func(args any) actor.Behavior[echoMsg, int] {
		return &echoBehavior{}
	})

	t.Cleanup(func() {
		rn.Close()
		sys.Shutdown(context.Background())
		cl.Leave(context.Background())
	})

	return &joinedNode{cl: cl, sys: sys, rn: rn}
}

func waitConverged(t *testing.T, cl *cluster.Cluster, peer wire.NodeID) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, m := range cl.Members() {
			if m.NodeID == peer && m.Status == cluster.StatusConnected {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestCallLocalSpawn(t *testing.T) {
	a := joinNode(t, "127.0.0.1:19201", mustNodeID(t, "a@127.0.0.1:19201"), nil)

	ctx := context.Background()
	handle, err := a.rn.Spawn(ctx, "echo", "", nil, false)
	require.NoError(t, err)
	require.True(t, handle.IsLocal())

	result, err := a.rn.Call(ctx, handle, echoMsg{Delta: 5}, time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 5, result)

	result, err = a.rn.Call(ctx, handle, echoMsg{Delta: 2}, time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 7, result)
}

func TestCallUnknownLocalHandle(t *testing.T) {
	a := joinNode(t, "127.0.0.1:19202", mustNodeID(t, "a@127.0.0.1:19202"), nil)

	ctx := context.Background()
	_, err := a.rn.Call(ctx, actor.LocalHandle("does-not-exist"), echoMsg{Delta: 1}, time.Second)
	require.ErrorIs(t, err, remote.ErrServerNotRunning)
}

func TestRemoteSpawnCallAndCast(t *testing.T) {
	aAddr, bAddr := "127.0.0.1:19203", "127.0.0.1:19204"
	aID, bID := mustNodeID(t, "a@"+aAddr), mustNodeID(t, "b@"+bAddr)

	a := joinNode(t, aAddr, aID, nil)
	b := joinNode(t, bAddr, bID, []string{aAddr})

	waitConverged(t, a.cl, bID)
	waitConverged(t, b.cl, aID)

	ctx := context.Background()
	handle, err := a.rn.Spawn(ctx, "echo", bID, nil, false)
	require.NoError(t, err)
	require.False(t, handle.IsLocal())
	require.Equal(t, string(bID), handle.NodeID)

	require.NoError(t, a.rn.Cast(ctx, handle, echoMsg{Delta: 3}))

	require.Eventually(t, func() bool {
		result, err := a.rn.Call(ctx, handle, echoMsg{Delta: 0}, time.Second)
		return err == nil && result == uint64(3)
	}, 2*time.Second, 20*time.Millisecond)

	result, err := a.rn.Call(ctx, handle, echoMsg{Delta: 4}, time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 7, result)
}

func TestRemoteCallFailsWhenTargetMissing(t *testing.T) {
	aAddr, bAddr := "127.0.0.1:19205", "127.0.0.1:19206"
	aID, bID := mustNodeID(t, "a@"+aAddr), mustNodeID(t, "b@"+bAddr)

	a := joinNode(t, aAddr, aID, nil)
	b := joinNode(t, bAddr, bID, []string{aAddr})
	_ = b

	waitConverged(t, a.cl, bID)

	ctx := context.Background()
	ghost := actor.ActorHandle{ID: "ghost", NodeID: string(bID)}
	_, err := a.rn.Call(ctx, ghost, echoMsg{Delta: 1}, 500*time.Millisecond)
	require.ErrorIs(t, err, remote.ErrServerNotRunning)
}

func TestMonitorFiresNodeDownOnRemoteSpawnedActor(t *testing.T) {
	aAddr, bAddr := "127.0.0.1:19207", "127.0.0.1:19208"
	aID, bID := mustNodeID(t, "a@"+aAddr), mustNodeID(t, "b@"+bAddr)

	a := joinNode(t, aAddr, aID, nil)
	b := joinNode(t, bAddr, bID, []string{aAddr})

	waitConverged(t, a.cl, bID)
	waitConverged(t, b.cl, aID)

	ctx := context.Background()
	handle, err := a.rn.Spawn(ctx, "echo", bID, nil, true)
	require.NoError(t, err)

	notifyCh, cancel := a.rn.Monitor(ctx, handle)
	defer cancel()

	require.NoError(t, b.cl.Leave(context.Background()))

	select {
	case note := <-notifyCh:
		require.Equal(t, handle, note.Handle)
		require.Equal(t, "node_down", note.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for monitor notification")
	}
}
