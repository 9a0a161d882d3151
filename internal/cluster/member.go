package cluster

import (
	"time"

	"github.com/roasbeef/holon/internal/wire"
)

// NodeID identifies a cluster member; re-exported from internal/wire since
// every envelope already carries one in its From field.
type NodeID = wire.NodeID

// MemberStatus is a node's last-known liveness state.
type MemberStatus uint8

const (
	StatusConnecting MemberStatus = iota + 1
	StatusConnected
	StatusDisconnected
)

func (s MemberStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DownReason explains why a member transitioned to StatusDisconnected.
type DownReason string

const (
	ReasonHeartbeatTimeout DownReason = "heartbeat_timeout"
	ReasonConnectionClosed DownReason = "connection_closed"
	ReasonGracefulShutdown DownReason = "graceful_shutdown"
)

// Member is one row of the membership table.
type Member struct {
	NodeID          NodeID
	Status          MemberStatus
	LastHeartbeatAt time.Time

	// heartbeatMs is the logical clock gossip deltas are compared on:
	// the unix-ms timestamp of the heartbeat that produced this status,
	// used to break ties between concurrently received deltas for the
	// same NodeID (last-writer-wins).
	heartbeatMs int64
}

func (m Member) newerThan(other Member) bool {
	return m.heartbeatMs > other.heartbeatMs
}
