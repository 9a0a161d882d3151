package cluster

// NodeEvent is the sealed union Cluster.Subscribe delivers as membership
// changes. internal/distsup uses NodeDown to trigger child failover;
// internal/remote uses it to fail pending calls/monitors against the
// departed node.
type NodeEvent interface {
	nodeEventMarker()
	Node() NodeID
}

type baseNodeEvent struct{ nodeID NodeID }

func (e baseNodeEvent) nodeEventMarker() {}
func (e baseNodeEvent) Node() NodeID     { return e.nodeID }

// NodeUp is emitted each time a member transitions to StatusConnected,
// including when a previously disconnected member reconnects.
type NodeUp struct {
	baseNodeEvent
}

// NodeDown is emitted when a member transitions to StatusDisconnected.
type NodeDown struct {
	baseNodeEvent
	Reason DownReason
}

func newNodeUp(id NodeID) NodeUp { return NodeUp{baseNodeEvent{id}} }

func newNodeDown(id NodeID, reason DownReason) NodeDown {
	return NodeDown{baseNodeEvent{id}, reason}
}
