package remote

import (
	"context"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/wire"
)

// monitorSub pairs a subscriber's channel with the handle it was given, so
// that a node-down sweep can tell which subscriptions named an actor on the
// node that just went away. Keyed only by ID (not "id@node") since Spawn
// hands out globally unique uuids as IDs regardless of which node they run
// on.
type monitorSub struct {
	ch     chan MonitorNotification
	handle actor.ActorHandle
}

// Monitor subscribes to a handle's termination. For a local handle this
// observes the precise actor.Terminated/actor.Crashed lifecycle events; for
// a remote handle it can only ever be as precise as the wire protocol
// allows: a handle obtained via this Node's own Spawn(..., monitor=true)
// gets a genuine per-actor MonitorNotify when it terminates, while any other
// remote handle can only be watched coarsely, via the owning node's
// NodeDown. Monitoring an arbitrary pre-existing remote handle that this
// node did not spawn itself has no dedicated wire message to ask for, so
// callers in that position only ever see a notification if the whole node
// goes down, not if the individual actor stops.
//
// The returned channel receives at most one notification before being
// closed. Calling the returned cancel function unsubscribes and is safe to
// call more than once.
func (n *Node) Monitor(ctx context.Context, handle actor.ActorHandle) (<-chan MonitorNotification, func()) {
	ch := make(chan MonitorNotification, 1)
	sub := monitorSub{ch: ch, handle: handle}

	n.monitorMu.Lock()
	n.monitors[handle.ID] = append(n.monitors[handle.ID], sub)
	n.monitorMu.Unlock()

	cancel := func() {
		n.monitorMu.Lock()
		defer n.monitorMu.Unlock()

		subs := n.monitors[handle.ID]
		for i, s := range subs {
			if s.ch == ch {
				n.monitors[handle.ID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(n.monitors[handle.ID]) == 0 {
			delete(n.monitors, handle.ID)
		}
	}

	return ch, cancel
}

func (n *Node) onLifecycleEvent(ev actor.LifecycleEvent) {
	var reason string
	switch e := ev.(type) {
	case actor.Terminated:
		reason = "terminated"
		if e.Reason != nil {
			reason = e.Reason.Error()
		}
	case actor.Crashed:
		reason = "crashed: " + e.Error.Error()
	default:
		return
	}

	n.notifyLocal(ev.ActorID(), reason)
	n.notifyRemoteMonitor(ev.ActorID(), reason)
}

func (n *Node) notifyLocal(id, reason string) {
	n.monitorMu.Lock()
	subs := n.monitors[id]
	delete(n.monitors, id)
	n.monitorMu.Unlock()

	for _, sub := range subs {
		sub.ch <- MonitorNotification{Handle: sub.handle, Reason: reason}
		close(sub.ch)
	}
}

func (n *Node) notifyRemoteMonitor(id, reason string) {
	n.monitorMu.Lock()
	requester, ok := n.remoteMonitors[id]
	if ok {
		delete(n.remoteMonitors, id)
	}
	n.monitorMu.Unlock()

	if !ok {
		return
	}

	handle := actor.ActorHandle{ID: id, NodeID: string(n.self())}
	env := n.cl.NewEnvelope(wire.Payload{
		Kind: wire.KindMonitorNotify,
		MonitorNotify: &wire.MonitorNotify{
			Handle: handle.String(), Reason: reason,
		},
	})
	_ = n.cl.SendTo(requester, env)
}

func (n *Node) handleMonitorNotify(env wire.Envelope) {
	notify := env.Payload.MonitorNotify
	if notify == nil {
		return
	}

	handle, err := actor.ParseHandle(notify.Handle)
	if err != nil {
		log.Warnf("discarding malformed MonitorNotify handle %q: %v", notify.Handle, err)
		return
	}

	n.monitorMu.Lock()
	subs := n.monitors[handle.ID]
	delete(n.monitors, handle.ID)
	n.monitorMu.Unlock()

	for _, sub := range subs {
		sub.ch <- MonitorNotification{Handle: handle, Reason: notify.Reason}
		close(sub.ch)
	}
}

// notifyMonitorsForNode fires a synthetic node-down notification for every
// subscription whose handle lived on down. Remote monitors living on other
// nodes learn of down's demise through their own cluster membership view,
// not through this node relaying anything.
func (n *Node) notifyMonitorsForNode(down wire.NodeID) {
	n.monitorMu.Lock()
	var fire []monitorSub
	for id, subs := range n.monitors {
		var remaining []monitorSub
		for _, sub := range subs {
			if sub.handle.IsLocal() || sub.handle.NodeID != string(down) {
				remaining = append(remaining, sub)
				continue
			}
			fire = append(fire, sub)
		}
		if len(remaining) == 0 {
			delete(n.monitors, id)
		} else {
			n.monitors[id] = remaining
		}
	}
	n.monitorMu.Unlock()

	for _, sub := range fire {
		sub.ch <- MonitorNotification{Handle: sub.handle, Reason: "node_down"}
		close(sub.ch)
	}
}
