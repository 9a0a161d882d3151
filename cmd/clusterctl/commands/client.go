package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/adminsvc"
	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/remote"
	"github.com/roasbeef/holon/internal/wire"
)

// convergeTimeout bounds how long a client waits for its ephemeral join to
// see the daemon it seeded from show up in its own membership view.
const convergeTimeout = 3 * time.Second

// adminClient is a short-lived cluster member that exists only to place
// one admin.Msg Call against a running clusterd and then leave. Talking to
// the daemon this way, over the same framed-TCP/CBOR wire protocol every
// other remote call uses, means clusterctl needs no second transport or
// serialization format of its own.
type adminClient struct {
	cl     *cluster.Cluster
	sys    *actor.ActorSystem
	node   *remote.Node
	target wire.NodeID
}

func dial(ctx context.Context) (*adminClient, error) {
	selfID, err := wire.ParseNodeID(self)
	if err != nil {
		return nil, fmt.Errorf("invalid --self %q: %w", self, err)
	}

	cl, err := cluster.Join(ctx, cluster.Config{
		Self:       selfID,
		ListenAddr: listenAddr,
		Seeds:      []string{daemonAddr},
		Secret:     []byte(secret),
	})
	if err != nil {
		return nil, fmt.Errorf("joining cluster at %s: %w", daemonAddr, err)
	}

	target, err := awaitPeer(cl, selfID)
	if err != nil {
		cl.Leave(context.Background())
		return nil, err
	}

	if targetNode != "" {
		target, err = wire.ParseNodeID(targetNode)
		if err != nil {
			cl.Leave(context.Background())
			return nil, fmt.Errorf("invalid --target-node %q: %w", targetNode, err)
		}
	}

	sys := actor.NewActorSystem()
	node := remote.NewNode(sys, cl)

	return &adminClient{cl: cl, sys: sys, node: node, target: target}, nil
}

// awaitPeer waits for at least one member other than self to appear in cl's
// view, and returns its NodeID as the default admin target.
func awaitPeer(cl *cluster.Cluster, self wire.NodeID) (wire.NodeID, error) {
	deadline := time.Now().Add(convergeTimeout)
	for time.Now().Before(deadline) {
		for _, m := range cl.Members() {
			if m.NodeID != self && m.Status == cluster.StatusConnected {
				return m.NodeID, nil
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	return "", fmt.Errorf("timed out waiting to discover a peer via %s", daemonAddr)
}

func (c *adminClient) close() {
	c.node.Close()
	c.cl.Leave(context.Background())
	c.sys.Shutdown(context.Background())
}

func (c *adminClient) admin(ctx context.Context, msg adminsvc.Msg) (string, error) {
	handle := actor.ActorHandle{ID: adminsvc.ActorID, NodeID: string(c.target)}

	result, err := c.node.Call(ctx, handle, msg, 5*time.Second)
	if err != nil {
		return "", err
	}
	reply, _ := result.(string)
	return reply, nil
}
