package cluster_test

import (
	"context"
	"testing"
	"time"

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

func waitForEvent(t *testing.T, events <-chan cluster.NodeEvent, match func(cluster.NodeEvent) bool) cluster.NodeEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for expected cluster event")
		}
	}
}

func TestJoinConvergesMembershipBetweenTwoNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aAddr := "127.0.0.1:18901"
	bAddr := "127.0.0.1:18902"

	a, err := cluster.Join(ctx, cluster.Config{
		Self: mustNodeID(t, "a@"+aAddr), ListenAddr: aAddr,
		HeartbeatMs: 50,
	})
	require.NoError(t, err)
	defer a.Leave(context.Background())

	aEvents := make(chan cluster.NodeEvent, 16)
	a.Subscribe(func(ev cluster.NodeEvent) { aEvents <- ev })

	b, err := cluster.Join(ctx, cluster.Config{
		Self: mustNodeID(t, "b@"+bAddr), ListenAddr: bAddr,
		Seeds: []string{aAddr}, HeartbeatMs: 50,
	})
	require.NoError(t, err)
	defer b.Leave(context.Background())

	bID := mustNodeID(t, "b@"+bAddr)
	waitForEvent(t, aEvents, func(ev cluster.NodeEvent) bool {
		_, ok := ev.(cluster.NodeUp)
		return ok && ev.Node() == bID
	})

	require.Eventually(t, func() bool {
		for _, m := range a.Members() {
			if m.NodeID == bID && m.Status == cluster.StatusConnected {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLeaveBroadcastsGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aAddr := "127.0.0.1:18903"
	bAddr := "127.0.0.1:18904"

	a, err := cluster.Join(ctx, cluster.Config{
		Self: mustNodeID(t, "a@"+aAddr), ListenAddr: aAddr,
		HeartbeatMs: 50,
	})
	require.NoError(t, err)
	defer a.Leave(context.Background())

	aEvents := make(chan cluster.NodeEvent, 16)
	a.Subscribe(func(ev cluster.NodeEvent) { aEvents <- ev })

	b, err := cluster.Join(ctx, cluster.Config{
		Self: mustNodeID(t, "b@"+bAddr), ListenAddr: bAddr,
		Seeds: []string{aAddr}, HeartbeatMs: 50,
	})
	require.NoError(t, err)

	bID := mustNodeID(t, "b@"+bAddr)
	waitForEvent(t, aEvents, func(ev cluster.NodeEvent) bool {
		_, ok := ev.(cluster.NodeUp)
		return ok && ev.Node() == bID
	})

	require.NoError(t, b.Leave(context.Background()))

	ev := waitForEvent(t, aEvents, func(ev cluster.NodeEvent) bool {
		down, ok := ev.(cluster.NodeDown)
		return ok && down.Node() == bID
	})
	require.Equal(t, cluster.ReasonGracefulShutdown, ev.(cluster.NodeDown).Reason)
}
