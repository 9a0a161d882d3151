package remote

import (
	"sync"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/transport"
	"github.com/roasbeef/holon/internal/wire"
)

// MonitorNotification reports that a monitored actor has terminated, or
// that the node it lived on has gone down.
type MonitorNotification struct {
	Handle actor.ActorHandle
	Reason string
}

type callOutcome struct {
	result []byte
	err    error
}

type spawnOutcome struct {
	handle actor.ActorHandle
	err    error
}

// Node is the cross-node Call/Cast/Spawn/Monitor surface for one cluster
// member: it binds a local actor.ActorSystem (where remotely-requested
// actors actually run) to a cluster.Cluster (which owns the wire
// connections), and dispatches wire.KindCall/Cast/SpawnRequest/SpawnReply/
// MonitorNotify traffic the Cluster itself doesn't interpret.
type Node struct {
	sys *actor.ActorSystem
	cl  *cluster.Cluster

	behaviors *behaviorRegistry

	mu            sync.Mutex
	dispatchers   map[string]dispatcher
	pendingCalls  map[string]chan callOutcome
	pendingSpawns map[string]chan spawnOutcome

	monitorMu      sync.Mutex
	monitors       map[string][]monitorSub
	remoteMonitors map[string]wire.NodeID

	unsubscribe     func()
	unsubscribeLife func()
}

// NewNode wires sys and cl together and starts routing remote traffic.
// Call exactly once per Cluster.
func NewNode(sys *actor.ActorSystem, cl *cluster.Cluster) *Node {
	n := &Node{
		sys:            sys,
		cl:             cl,
		behaviors:      newBehaviorRegistry(),
		dispatchers:    make(map[string]dispatcher),
		pendingCalls:   make(map[string]chan callOutcome),
		pendingSpawns:  make(map[string]chan spawnOutcome),
		monitors:       make(map[string][]monitorSub),
		remoteMonitors: make(map[string]wire.NodeID),
	}

	cl.SetEnvelopeHandler(n.onEnvelope)
	n.unsubscribe = cl.Subscribe(n.onNodeEvent)
	n.unsubscribeLife = sys.Subscribe(n.onLifecycleEvent)

	return n
}

// Close stops routing remote traffic for this node. It does not stop the
// underlying ActorSystem or Cluster.
func (n *Node) Close() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
	if n.unsubscribeLife != nil {
		n.unsubscribeLife()
	}
}

func (n *Node) self() wire.NodeID { return n.cl.Self() }

// System returns the local ActorSystem backing this Node, so that
// higher-level callers (internal/distsup's force-stop of a locally-placed
// child) can reach capabilities Node itself doesn't expose, like
// StopAndRemoveActor.
func (n *Node) System() *actor.ActorSystem { return n.sys }

// Self returns this node's own cluster ID.
func (n *Node) Self() wire.NodeID { return n.cl.Self() }

func (n *Node) onEnvelope(conn *transport.Conn, env wire.Envelope) {
	switch env.Payload.Kind {
	case wire.KindCall:
		n.handleIncomingCall(env)
	case wire.KindCallReply:
		n.handleCallReply(env)
	case wire.KindCallError:
		n.handleCallError(env)
	case wire.KindCast:
		n.handleIncomingCast(env)
	case wire.KindSpawnRequest:
		n.handleSpawnRequest(env)
	case wire.KindSpawnReply:
		n.handleSpawnReply(env)
	case wire.KindMonitorNotify:
		n.handleMonitorNotify(env)
	}
}

func (n *Node) onNodeEvent(ev cluster.NodeEvent) {
	down, ok := ev.(cluster.NodeDown)
	if !ok {
		return
	}

	n.failPendingForNode(down.Node())
	n.notifyMonitorsForNode(down.Node())
}
