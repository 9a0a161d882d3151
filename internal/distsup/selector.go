package distsup

import (
	prand "math/rand"
	"sync/atomic"

	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/wire"
)

// SelectContext is everything a NodeSelector needs to place one child
// instance: the cluster's membership table (eligible() keeps only connected,
// non-excluded members), the set of nodes to avoid (those the supervisor has
// seen go down), this node's own ID, and a callback reporting how many of
// the supervisor's other children a candidate node currently carries.
type SelectContext struct {
	Members []cluster.Member
	Exclude map[wire.NodeID]bool
	Self    wire.NodeID
	Load    func(wire.NodeID) int
}

func (c SelectContext) eligible() []cluster.Member {
	out := make([]cluster.Member, 0, len(c.Members))
	for _, m := range c.Members {
		if m.Status != cluster.StatusConnected {
			continue
		}
		if c.Exclude[m.NodeID] {
			continue
		}
		out = append(out, m)
	}
	return out
}

// NodeSelector picks the node a DistChildSpec instance should run on, given
// the current membership and the set of nodes to exclude. It returns false
// if no eligible node exists, which puts the child into Waiting until the
// next NodeUp.
type NodeSelector func(ctx SelectContext) (wire.NodeID, bool)

// LocalFirst prefers this node if it is itself eligible, falling back to
// RoundRobin otherwise. Good for singleton-ish children that should stay
// put unless their home node is down.
func LocalFirst() NodeSelector {
	fallback := RoundRobin()
	return func(ctx SelectContext) (wire.NodeID, bool) {
		for _, m := range ctx.eligible() {
			if m.NodeID == ctx.Self {
				return m.NodeID, true
			}
		}
		return fallback(ctx)
	}
}

// RoundRobin rotates across the eligible members in the order Members()
// returns them, using a lock-free counter so concurrent placements don't
// pile onto the same node. One RoundRobin value should be reused across
// every Spawn/restart for a given spec, not reconstructed per call.
func RoundRobin() NodeSelector {
	var next atomic.Uint64

	return func(ctx SelectContext) (wire.NodeID, bool) {
		members := ctx.eligible()
		if len(members) == 0 {
			return "", false
		}

		idx := next.Add(1) - 1
		return members[idx%uint64(len(members))].NodeID, true
	}
}

// LeastLoaded picks the eligible node currently carrying the fewest of the
// supervisor's other children, per ctx.Load. Ties break toward Members()'s
// iteration order.
func LeastLoaded() NodeSelector {
	return func(ctx SelectContext) (wire.NodeID, bool) {
		members := ctx.eligible()
		if len(members) == 0 {
			return "", false
		}

		best := members[0].NodeID
		bestLoad := ctx.Load(best)
		for _, m := range members[1:] {
			if l := ctx.Load(m.NodeID); l < bestLoad {
				best, bestLoad = m.NodeID, l
			}
		}

		return best, true
	}
}

// Random picks uniformly among the eligible members.
func Random() NodeSelector {
	return func(ctx SelectContext) (wire.NodeID, bool) {
		members := ctx.eligible()
		if len(members) == 0 {
			return "", false
		}

		return members[prand.Intn(len(members))].NodeID, true
	}
}

// FixedNode always places on id, so long as id is itself eligible (present,
// connected, and not excluded).
func FixedNode(id wire.NodeID) NodeSelector {
	return func(ctx SelectContext) (wire.NodeID, bool) {
		for _, m := range ctx.eligible() {
			if m.NodeID == id {
				return id, true
			}
		}
		return "", false
	}
}

// FromMemberFunc adapts a selector that only needs the raw membership list
// into a NodeSelector. This is the escape hatch for a caller-supplied
// CustomSelector that doesn't care about load or the Self/Exclude
// bookkeeping the built-in strategies use.
func FromMemberFunc(fn func([]cluster.Member) (wire.NodeID, bool)) NodeSelector {
	return func(ctx SelectContext) (wire.NodeID, bool) {
		return fn(ctx.eligible())
	}
}
