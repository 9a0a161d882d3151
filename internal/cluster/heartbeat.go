package cluster

import (
	"time"

	"github.com/roasbeef/holon/internal/transport"
	"github.com/roasbeef/holon/internal/wire"
)

// heartbeatLoop sends a Heartbeat to every connected peer and flushes any
// pending gossip deltas, every HeartbeatMs.
func (c *Cluster) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.heartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sendHeartbeats()
			c.broadcastDirty()

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Cluster) sendHeartbeats() {
	c.mu.Lock()
	conns := make([]*transport.Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	env := c.newEnvelope(wire.Payload{Kind: wire.KindHeartbeat, Heartbeat: &wire.Heartbeat{}})
	for _, conn := range conns {
		_ = conn.Send(env)
	}
}

// reaperLoop declares a peer down once its last heartbeat is older than
// 3x the heartbeat interval.
func (c *Cluster) reaperLoop() {
	ticker := time.NewTicker(c.cfg.heartbeatInterval())
	defer ticker.Stop()

	timeout := c.cfg.heartbeatTimeout()

	for {
		select {
		case <-ticker.C:
			now := time.Now()

			c.mu.Lock()
			var stale []NodeID
			for id, m := range c.table {
				if id == c.cfg.Self || m.Status != StatusConnected {
					continue
				}
				if now.Sub(m.LastHeartbeatAt) > timeout {
					stale = append(stale, id)
				}
			}
			c.mu.Unlock()

			for _, id := range stale {
				c.markDown(id, ReasonHeartbeatTimeout)
			}

		case <-c.ctx.Done():
			return
		}
	}
}
