package cluster

import (
	"time"

	"github.com/roasbeef/holon/internal/transport"
	"github.com/roasbeef/holon/internal/wire"
)

func (c *Cluster) newEnvelope(payload wire.Payload) wire.Envelope {
	now := time.Now()
	env := wire.Envelope{
		Version: 1, From: c.cfg.Self, TimestampMs: now.UnixMilli(),
		Payload: payload,
	}

	if len(c.cfg.Secret) > 0 {
		raw, err := wire.Encode(wire.Envelope{Payload: payload})
		if err == nil {
			env.Signature = wire.Sign(raw, c.cfg.Secret, env.Version, env.From, env.TimestampMs)
		}
	}

	return env
}

func (c *Cluster) verify(env wire.Envelope) bool {
	if len(c.cfg.Secret) == 0 {
		return true
	}
	if len(env.Signature) == 0 {
		return false
	}

	raw, err := wire.Encode(wire.Envelope{Payload: env.Payload})
	if err != nil {
		return false
	}

	return wire.Verify(raw, c.cfg.Secret, env.Version, env.From, env.TimestampMs, env.Signature)
}

func (c *Cluster) sendHello(conn *transport.Conn) error {
	return conn.Send(c.newEnvelope(wire.Payload{
		Kind: wire.KindHello,
		Hello: &wire.Hello{
			NodeID:       c.cfg.Self,
			Capabilities: nil,
		},
	}))
}

// fullSnapshot returns the entire membership table as a Gossip delta,
// used for the handshake's full exchange.
func (c *Cluster) fullSnapshot() wire.Gossip {
	c.mu.Lock()
	defer c.mu.Unlock()

	add := make([]wire.GossipMember, 0, len(c.table))
	for _, m := range c.table {
		add = append(add, wire.GossipMember{
			NodeID: m.NodeID, Status: uint8(m.Status),
			LastHeartbeatMs: m.heartbeatMs,
		})
	}

	return wire.Gossip{Add: add}
}

func (c *Cluster) sendGossip(conn *transport.Conn, delta wire.Gossip) {
	_ = conn.Send(c.newEnvelope(wire.Payload{Kind: wire.KindGossip, Gossip: &delta}))
}

// broadcastDirty sends every member whose status has changed since the
// last tick to every connected peer, and clears the dirty set. This is
// the periodic delta gossip spec.md §4.5 calls for, as distinct from the
// full-table exchange done once at handshake time.
func (c *Cluster) broadcastDirty() {
	c.mu.Lock()
	if len(c.dirty) == 0 {
		c.mu.Unlock()
		return
	}

	var delta wire.Gossip
	for id := range c.dirty {
		if c.removed[id] {
			delta.Remove = append(delta.Remove, id)
			continue
		}
		if m, ok := c.table[id]; ok {
			delta.Add = append(delta.Add, wire.GossipMember{
				NodeID: m.NodeID, Status: uint8(m.Status),
				LastHeartbeatMs: m.heartbeatMs,
			})
		}
	}
	c.dirty = make(map[NodeID]bool)
	c.removed = make(map[NodeID]bool)

	conns := make([]*transport.Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		c.sendGossip(conn, delta)
	}
}

// applyGossip merges a received delta into the local table using
// last-writer-wins on (NodeID, heartbeatMs), making repeated or
// out-of-order delivery of the same delta idempotent.
func (c *Cluster) applyGossip(delta *wire.Gossip) {
	if delta == nil {
		return
	}

	for _, entry := range delta.Add {
		candidate := Member{
			NodeID: entry.NodeID, Status: MemberStatus(entry.Status),
			LastHeartbeatAt: time.UnixMilli(entry.LastHeartbeatMs),
			heartbeatMs:     entry.LastHeartbeatMs,
		}
		c.mergeMember(candidate)
	}

	for _, id := range delta.Remove {
		c.markDown(id, ReasonConnectionClosed)
	}
}

func (c *Cluster) mergeMember(candidate Member) {
	if candidate.NodeID == c.cfg.Self {
		return
	}

	c.mu.Lock()
	existing, ok := c.table[candidate.NodeID]
	if ok && !candidate.newerThan(existing) {
		c.mu.Unlock()
		return
	}

	wasConnected := ok && existing.Status == StatusConnected
	c.table[candidate.NodeID] = candidate
	c.dirty[candidate.NodeID] = true
	nowConnected := candidate.Status == StatusConnected
	nowDisconnected := candidate.Status == StatusDisconnected
	if nowDisconnected {
		c.removed[candidate.NodeID] = true
	}
	c.mu.Unlock()

	if nowConnected && !wasConnected {
		c.hub.publish(newNodeUp(candidate.NodeID))
	} else if nowDisconnected && wasConnected {
		c.hub.publish(newNodeDown(candidate.NodeID, ReasonConnectionClosed))
	}
}

func (c *Cluster) markUp(id NodeID, heartbeatMs int64) {
	if id == "" || id == c.cfg.Self {
		return
	}

	now := time.Now()

	c.mu.Lock()
	existing, ok := c.table[id]
	wasConnected := ok && existing.Status == StatusConnected
	c.table[id] = Member{
		NodeID: id, Status: StatusConnected,
		LastHeartbeatAt: now, heartbeatMs: heartbeatMs,
	}
	c.dirty[id] = true
	delete(c.removed, id)
	c.mu.Unlock()

	if !wasConnected {
		c.hub.publish(newNodeUp(id))
	}
}

func (c *Cluster) markDown(id NodeID, reason DownReason) {
	if id == "" || id == c.cfg.Self {
		return
	}

	c.mu.Lock()
	existing, ok := c.table[id]
	if !ok || existing.Status == StatusDisconnected {
		c.mu.Unlock()
		return
	}

	c.table[id] = Member{
		NodeID: id, Status: StatusDisconnected,
		LastHeartbeatAt: existing.LastHeartbeatAt,
		heartbeatMs:     time.Now().UnixMilli(),
	}
	c.dirty[id] = true
	c.removed[id] = true
	if conn, ok := c.conns[id]; ok {
		delete(c.conns, id)
		conn.Close()
	}
	c.mu.Unlock()

	c.hub.publish(newNodeDown(id, reason))
}
