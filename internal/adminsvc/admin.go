// Package adminsvc exposes a cluster node's own actor/remote machinery as
// a single well-known actor, so cmd/clusterctl can drive a running
// cmd/clusterd daemon over the same framed-TCP/CBOR wire protocol
// internal/remote already speaks, rather than a second, bespoke transport.
package adminsvc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/cluster"
	"github.com/roasbeef/holon/internal/remote"
	"github.com/roasbeef/holon/internal/wire"
)

// ActorID is the well-known, fixed actor ID every clusterd registers its
// admin behavior under.
const ActorID = "admin"

// BehaviorName is the name the admin behavior is registered under with
// internal/remote, so it can be placed with the same Spawn path as any
// other behavior.
const BehaviorName = "cluster.admin"

// Op names one admin operation. Kept as plain strings rather than an enum
// so the wire shape stays a trivial CBOR map, the same way every other
// spec.md-era message does.
type Op string

const (
	OpMembers Op = "members"
	OpSpawn   Op = "spawn"
	OpCall    Op = "call"
	OpCast    Op = "cast"
	OpStop    Op = "stop"
)

// Msg is the single request type the admin actor handles, dispatched via
// Call from cmd/clusterctl.
type Msg struct {
	actor.BaseMessage

	Op Op

	// Spawn
	BehaviorName string
	TargetNode   string
	Args         []byte

	// Call/Cast/Stop
	ActorID   string
	ActorNode string
	Payload   []byte
	TimeoutMs int64
}

func (Msg) MessageType() string { return "adminsvc.msg" }

// behavior implements the admin operations against a live cluster/node
// pair. Unexported: callers only ever reach it through Register.
type behavior struct {
	cl   *cluster.Cluster
	node *remote.Node
}

// Register makes cluster.admin spawnable and starts one instance under the
// fixed ActorID on node's own ActorSystem, so clusterctl (or any other
// node) can always reach it at ActorHandle{ID: adminsvc.ActorID,
// NodeID: <this node>} without first discovering a generated ID.
func Register(cl *cluster.Cluster, node *remote.Node) (actor.ActorHandle, error) {
	b := behavior{cl: cl, node: node}

	remote.RegisterBehavior(node, BehaviorName, func(any) actor.Behavior[Msg, string] {
		return b
	})

	return node.SpawnNamed(ActorID, BehaviorName, nil)
}

func (b behavior) HandleCall(ctx context.Context, msg Msg) (string, error) {
	switch msg.Op {
	case OpMembers:
		return b.members(), nil

	case OpSpawn:
		nodeID, err := b.resolveNode(msg.TargetNode)
		if err != nil {
			return "", err
		}

		var args any
		if len(msg.Args) > 0 {
			if err := cbor.Unmarshal(msg.Args, &args); err != nil {
				return "", fmt.Errorf("adminsvc: decoding spawn args: %w", err)
			}
		}

		handle, err := b.node.Spawn(ctx, msg.BehaviorName, nodeID, args, false)
		if err != nil {
			return "", err
		}
		return handle.String(), nil

	case OpCall:
		handle, err := b.resolveHandle(msg.ActorID, msg.ActorNode)
		if err != nil {
			return "", err
		}

		var payload any
		if len(msg.Payload) > 0 {
			if err := cbor.Unmarshal(msg.Payload, &payload); err != nil {
				return "", fmt.Errorf("adminsvc: decoding call payload: %w", err)
			}
		}

		timeout := durationFromMs(msg.TimeoutMs)
		result, err := b.node.Call(ctx, handle, payload, timeout)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v", result), nil

	case OpCast:
		handle, err := b.resolveHandle(msg.ActorID, msg.ActorNode)
		if err != nil {
			return "", err
		}

		var payload any
		if len(msg.Payload) > 0 {
			if err := cbor.Unmarshal(msg.Payload, &payload); err != nil {
				return "", fmt.Errorf("adminsvc: decoding cast payload: %w", err)
			}
		}

		if err := b.node.Cast(ctx, handle, payload); err != nil {
			return "", err
		}
		return "ok", nil

	case OpStop:
		if msg.ActorNode != "" && msg.ActorNode != string(b.cl.Self()) {
			return "", fmt.Errorf("adminsvc: stop only supports actors local to the target node")
		}
		if !b.node.System().StopAndRemoveActor(msg.ActorID) {
			return "", fmt.Errorf("adminsvc: no local actor %q", msg.ActorID)
		}
		return "ok", nil

	default:
		return "", fmt.Errorf("adminsvc: unknown op %q", msg.Op)
	}
}

func (behavior) HandleCast(context.Context, Msg) error { return nil }

func (b behavior) members() string {
	var sb strings.Builder
	for _, m := range b.cl.Members() {
		fmt.Fprintf(&sb, "%s\t%s\n", m.NodeID, m.Status)
	}
	return sb.String()
}

func (b behavior) resolveNode(s string) (wire.NodeID, error) {
	if s == "" {
		return b.cl.Self(), nil
	}
	return wire.ParseNodeID(s)
}

func (b behavior) resolveHandle(id, node string) (actor.ActorHandle, error) {
	if node == "" || node == string(b.cl.Self()) {
		return actor.LocalHandle(id), nil
	}
	return actor.ActorHandle{ID: id, NodeID: node}, nil
}

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
