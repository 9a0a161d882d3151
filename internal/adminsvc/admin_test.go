package adminsvc_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/adminsvc"
	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/remote"
	"github.com/roasbeef/holon/internal/wire"
	"github.com/stretchr/testify/require"
)

type echoMsg struct {
	actor.BaseMessage
	Text string
}

func (echoMsg) MessageType() string { return "adminsvcTestEchoMsg" }

type echoBehavior struct{}

func (echoBehavior) HandleCall(context.Context, echoMsg) (string, error) {
	return "echo", nil
}

func (echoBehavior) HandleCast(context.Context, echoMsg) error { return nil }

func mustNodeID(t *testing.T, s string) wire.NodeID {
	t.Helper()
	id, err := wire.ParseNodeID(s)
	require.NoError(t, err)
	return id
}

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

	// Registered per-Node, not in an init(): each joinedNode gets its own
	// behavior table.
	remote.RegisterBehavior(rn, "adminsvc-test-echo", func(any) actor.Behavior[echoMsg, string] {
		return echoBehavior{}
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

func TestAdminMembersListsBothNodes(t *testing.T) {
	aAddr, bAddr := "127.0.0.1:19401", "127.0.0.1:19402"
	aID, bID := mustNodeID(t, "a@"+aAddr), mustNodeID(t, "b@"+bAddr)

	a := joinNode(t, aAddr, aID, nil)
	b := joinNode(t, bAddr, bID, []string{aAddr})

	waitConverged(t, a.cl, bID)
	waitConverged(t, b.cl, aID)

	_, err := adminsvc.Register(a.cl, a.rn)
	require.NoError(t, err)

	handle := actor.ActorHandle{ID: adminsvc.ActorID, NodeID: string(aID)}
	result, err := b.rn.Call(context.Background(), handle, adminsvc.Msg{
		Op: adminsvc.OpMembers,
	}, time.Second)
	require.NoError(t, err)

	out, ok := result.(string)
	require.True(t, ok)
	require.Contains(t, out, string(aID))
	require.Contains(t, out, string(bID))
	require.Equal(t, 2, strings.Count(out, "\n"))
}

func TestAdminSpawnThenCallRoundTrips(t *testing.T) {
	aAddr, bAddr := "127.0.0.1:19403", "127.0.0.1:19404"
	aID, bID := mustNodeID(t, "a@"+aAddr), mustNodeID(t, "b@"+bAddr)

	a := joinNode(t, aAddr, aID, nil)
	b := joinNode(t, bAddr, bID, []string{aAddr})

	waitConverged(t, a.cl, bID)
	waitConverged(t, b.cl, aID)

	_, err := adminsvc.Register(a.cl, a.rn)
	require.NoError(t, err)

	admin := actor.ActorHandle{ID: adminsvc.ActorID, NodeID: string(aID)}

	spawnResult, err := b.rn.Call(context.Background(), admin, adminsvc.Msg{
		Op:           adminsvc.OpSpawn,
		BehaviorName: "adminsvc-test-echo",
		TargetNode:   string(aID),
	}, time.Second)
	require.NoError(t, err)

	handleStr, ok := spawnResult.(string)
	require.True(t, ok)
	require.NotEmpty(t, handleStr)

	spawned, err := actor.ParseHandle(handleStr)
	require.NoError(t, err)

	callResult, err := b.rn.Call(context.Background(), admin, adminsvc.Msg{
		Op:        adminsvc.OpCall,
		ActorID:   spawned.ID,
		ActorNode: spawned.NodeID,
	}, time.Second)
	require.NoError(t, err)
	require.Equal(t, "echo", callResult)

	stopResult, err := b.rn.Call(context.Background(), admin, adminsvc.Msg{
		Op:        adminsvc.OpStop,
		ActorID:   spawned.ID,
		ActorNode: spawned.NodeID,
	}, time.Second)
	require.NoError(t, err)
	require.Equal(t, "ok", stopResult)
}

func TestAdminStopRejectsThirdNode(t *testing.T) {
	aAddr, bAddr := "127.0.0.1:19405", "127.0.0.1:19406"
	aID, bID := mustNodeID(t, "a@"+aAddr), mustNodeID(t, "b@"+bAddr)

	a := joinNode(t, aAddr, aID, nil)
	b := joinNode(t, bAddr, bID, []string{aAddr})

	waitConverged(t, a.cl, bID)
	waitConverged(t, b.cl, aID)

	_, err := adminsvc.Register(a.cl, a.rn)
	require.NoError(t, err)

	admin := actor.ActorHandle{ID: adminsvc.ActorID, NodeID: string(aID)}

	_, err = b.rn.Call(context.Background(), admin, adminsvc.Msg{
		Op:        adminsvc.OpStop,
		ActorID:   "whatever",
		ActorNode: "someone-else@127.0.0.1:1",
	}, time.Second)
	require.Error(t, err)
}
