package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/wire"
)

// DefaultSpawnTimeout bounds how long a remote Spawn waits for a SpawnReply.
const DefaultSpawnTimeout = 5000 * time.Millisecond

// registrationMonitor is passed as Spawn's registration argument to have the
// spawning node notified of the new actor's termination via MonitorNotify,
// piggybacked on the SpawnRequest since the wire protocol has no standalone
// monitor-registration message.
const registrationMonitor = "monitor"

// Spawn starts a new actor instance of the named, registered behavior on
// nodeID (the local node's own ID spawns in-process). args is cbor-encoded
// and passed to the behavior's factory. The returned handle is
// location-transparent and usable with Call/Cast/Monitor regardless of
// where it actually runs.
func (n *Node) Spawn(ctx context.Context, behaviorName string, nodeID wire.NodeID, args any, monitor bool) (actor.ActorHandle, error) {
	if nodeID == "" || nodeID == n.self() {
		return n.spawnLocal(uuid.New().String(), behaviorName, args, monitor)
	}
	return n.spawnRemote(ctx, behaviorName, nodeID, args, monitor)
}

// SpawnNamed spawns behaviorName locally under a caller-chosen, fixed ID
// rather than a generated uuid. Intended for well-known, singleton local
// actors (internal/adminsvc's admin actor) that need a stable ID other
// code can address without having witnessed the Spawn call itself; a
// second SpawnNamed with the same id overwrites the first's dispatcher
// entry, so callers should only use this for actors started once at
// startup.
func (n *Node) SpawnNamed(id, behaviorName string, args any) (actor.ActorHandle, error) {
	return n.spawnLocal(id, behaviorName, args, false)
}

func (n *Node) spawnLocal(id, behaviorName string, args any, monitor bool) (actor.ActorHandle, error) {
	fn, ok := n.behaviors.lookup(behaviorName)
	if !ok {
		return actor.ActorHandle{}, ErrBehaviorNotFound
	}

	rawArgs, err := cbor.Marshal(args)
	if err != nil {
		return actor.ActorHandle{}, fmt.Errorf("%w: encoding spawn args: %v", ErrSerialization, err)
	}

	d, err := fn(n.sys, id, rawArgs)
	if err != nil {
		return actor.ActorHandle{}, err
	}

	n.mu.Lock()
	n.dispatchers[id] = d
	n.mu.Unlock()

	// monitor is unused here: a caller spawning locally already holds the
	// ActorSystem and can call Monitor directly once Spawn returns, so
	// there is no wire round-trip to piggyback a registration onto.
	_ = monitor

	return d.handle, nil
}

func (n *Node) spawnRemote(ctx context.Context, behaviorName string, nodeID wire.NodeID, args any, monitor bool) (actor.ActorHandle, error) {
	rawArgs, err := cbor.Marshal(args)
	if err != nil {
		return actor.ActorHandle{}, fmt.Errorf("%w: encoding spawn args: %v", ErrSerialization, err)
	}

	requestID := uuid.New().String()
	out := make(chan spawnOutcome, 1)

	n.mu.Lock()
	n.pendingSpawns[requestID] = out
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.pendingSpawns, requestID)
		n.mu.Unlock()
	}()

	registration := ""
	if monitor {
		registration = registrationMonitor
	}

	env := n.cl.NewEnvelope(wire.Payload{
		Kind: wire.KindSpawnRequest,
		SpawnRequest: &wire.SpawnRequest{
			RequestID: requestID, BehaviorName: behaviorName,
			Args: rawArgs, Registration: registration,
		},
	})

	if err := n.cl.SendTo(nodeID, env); err != nil {
		return actor.ActorHandle{}, ErrNodeNotReachable
	}

	timer := time.NewTimer(DefaultSpawnTimeout)
	defer timer.Stop()

	select {
	case outcome := <-out:
		return outcome.handle, outcome.err
	case <-timer.C:
		return actor.ActorHandle{}, ErrCallTimeout
	case <-ctx.Done():
		return actor.ActorHandle{}, ctx.Err()
	}
}

func (n *Node) handleSpawnRequest(env wire.Envelope) {
	req := env.Payload.SpawnRequest
	if req == nil {
		return
	}

	fn, ok := n.behaviors.lookup(req.BehaviorName)
	if !ok {
		n.replySpawnError(env.From, req.RequestID, ErrBehaviorNotFound)
		return
	}

	id := uuid.New().String()
	d, err := fn(n.sys, id, req.Args)
	if err != nil {
		n.replySpawnError(env.From, req.RequestID, err)
		return
	}

	n.mu.Lock()
	n.dispatchers[id] = d
	n.mu.Unlock()

	if req.Registration == registrationMonitor {
		n.monitorMu.Lock()
		n.remoteMonitors[id] = env.From
		n.monitorMu.Unlock()
	}

	handle := actor.ActorHandle{ID: id, NodeID: string(n.self())}
	reply := n.cl.NewEnvelope(wire.Payload{
		Kind: wire.KindSpawnReply,
		SpawnReply: &wire.SpawnReply{
			RequestID: req.RequestID, OK: true, Handle: handle.String(),
		},
	})
	_ = n.cl.SendTo(env.From, reply)
}

func (n *Node) replySpawnError(to wire.NodeID, requestID string, err error) {
	reply := n.cl.NewEnvelope(wire.Payload{
		Kind: wire.KindSpawnReply,
		SpawnReply: &wire.SpawnReply{
			RequestID: requestID, OK: false, ErrMsg: err.Error(),
		},
	})
	_ = n.cl.SendTo(to, reply)
}

func (n *Node) handleSpawnReply(env wire.Envelope) {
	reply := env.Payload.SpawnReply
	if reply == nil {
		return
	}

	n.mu.Lock()
	out, ok := n.pendingSpawns[reply.RequestID]
	n.mu.Unlock()
	if !ok {
		return
	}

	if !reply.OK {
		out <- spawnOutcome{err: fmt.Errorf("remote: %s", reply.ErrMsg)}
		return
	}

	handle, err := actor.ParseHandle(reply.Handle)
	if err != nil {
		out <- spawnOutcome{err: err}
		return
	}

	out <- spawnOutcome{handle: handle}
}
