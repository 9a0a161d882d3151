package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/roasbeef/holon/internal/transport"
	"github.com/roasbeef/holon/internal/wire"
	"golang.org/x/sync/errgroup"
)

// ErrNotReachable is returned when an operation targets a node that is
// not in the connected set.
var ErrNotReachable = fmt.Errorf("cluster: node not reachable")

// Cluster manages one node's view of, and connections within, the
// cluster: its membership table, the gossip protocol that converges it,
// and the heartbeat loop that detects failed peers.
type Cluster struct {
	cfg Config
	ln  net.Listener

	mu        sync.Mutex
	table     map[NodeID]Member
	conns     map[NodeID]*transport.Conn
	dirty     map[NodeID]bool
	removed   map[NodeID]bool
	helloSent map[*transport.Conn]bool

	hub *eventHub

	// extHandler receives every envelope kind this package does not
	// itself interpret (Call, CallReply, CallError, Cast, SpawnRequest,
	// SpawnReply, MonitorNotify). internal/remote is the sole consumer.
	extHandler func(*transport.Conn, wire.Envelope)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Join opens the listener, dials every seed (partial seed availability is
// normal -- the first dial failure never aborts the others), exchanges
// membership tables with whoever answers, and starts the background
// heartbeat and gossip loops.
func Join(ctx context.Context, cfg Config) (*Cluster, error) {
	ln, err := transport.Listen(cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(context.Background())

	c := &Cluster{
		cfg:     cfg,
		ln:      ln,
		table:     make(map[NodeID]Member),
		conns:     make(map[NodeID]*transport.Conn),
		dirty:     make(map[NodeID]bool),
		removed:   make(map[NodeID]bool),
		helloSent: make(map[*transport.Conn]bool),
		hub:       newEventHub(),
		ctx:     cctx,
		cancel:  cancel,
	}

	now := time.Now()
	c.table[cfg.Self] = Member{
		NodeID: cfg.Self, Status: StatusConnected,
		LastHeartbeatAt: now, heartbeatMs: now.UnixMilli(),
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		transport.Serve(cctx, ln, cfg.MaxFrameSize, func(conn *transport.Conn) {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.handleConn(conn, false)
			}()
		})
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, seed := range cfg.Seeds {
		seed := seed
		g.Go(func() error {
			c.dialSeed(gctx, seed)
			return nil
		})
	}
	// A seed being unreachable is expected and not fatal to Join; errors
	// are only used to bound the fan-out's lifetime.
	_ = g.Wait()

	c.wg.Add(2)
	go func() { defer c.wg.Done(); c.heartbeatLoop() }()
	go func() { defer c.wg.Done(); c.reaperLoop() }()

	return c, nil
}

func (c *Cluster) dialSeed(ctx context.Context, addr string) {
	dialer := &transport.Dialer{Self: c.cfg.Self, MaxFrame: c.cfg.MaxFrameSize}

	conn, err := dialer.Dial(ctx, "", addr)
	if err != nil {
		log.Debugf("cluster: seed %s unreachable: %v", addr, err)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.handleConn(conn, true)
	}()
}

// handleConn drives one peer connection from handshake through steady
// state until it closes. initiator sends the first Hello; the accepting
// side waits for one.
func (c *Cluster) handleConn(conn *transport.Conn, initiator bool) {
	defer conn.Close()

	if initiator {
		if err := c.sendHello(conn); err != nil {
			return
		}
		c.mu.Lock()
		c.helloSent[conn] = true
		c.mu.Unlock()
	}

	defer func() {
		c.mu.Lock()
		delete(c.helloSent, conn)
		c.mu.Unlock()
	}()

	for {
		select {
		case env := <-conn.Recv():
			if !c.verify(env) {
				log.Warnf("cluster: dropping envelope from %s: bad signature", env.From)
				continue
			}
			c.dispatch(conn, env)

		case <-conn.Done():
			c.onConnClosed(conn, ReasonConnectionClosed)
			return

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Cluster) dispatch(conn *transport.Conn, env wire.Envelope) {
	switch env.Payload.Kind {
	case wire.KindHello:
		c.onHello(conn, env)
	case wire.KindGoodbye:
		c.markDown(env.Payload.Goodbye.NodeID, ReasonGracefulShutdown)
	case wire.KindHeartbeat:
		c.markUp(env.From, env.TimestampMs)
	case wire.KindGossip:
		c.applyGossip(env.Payload.Gossip)
	default:
		c.mu.Lock()
		handler := c.extHandler
		c.mu.Unlock()
		if handler != nil {
			handler(conn, env)
		}
	}
}

// SetEnvelopeHandler registers fn to receive every envelope kind this
// package does not itself interpret. internal/remote calls this once
// before traffic starts flowing.
func (c *Cluster) SetEnvelopeHandler(fn func(*transport.Conn, wire.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extHandler = fn
}

// SendTo delivers env to the connection currently open for id, or
// ErrNotReachable if there is none.
func (c *Cluster) SendTo(id NodeID, env wire.Envelope) error {
	c.mu.Lock()
	conn, ok := c.conns[id]
	c.mu.Unlock()

	if !ok {
		return ErrNotReachable
	}
	return conn.Send(env)
}

// NewEnvelope builds and, if a cluster secret is configured, signs an
// envelope the same way internal gossip traffic is, so
// internal/remote's Call/Cast/Spawn/Monitor traffic carries the same
// HMAC under the same secret.
func (c *Cluster) NewEnvelope(payload wire.Payload) wire.Envelope {
	return c.newEnvelope(payload)
}

func (c *Cluster) onHello(conn *transport.Conn, env wire.Envelope) {
	hello := env.Payload.Hello
	if hello == nil {
		return
	}

	if conn.Peer == "" {
		conn.SetPeer(hello.NodeID)
	}

	c.mu.Lock()
	c.conns[hello.NodeID] = conn
	alreadyReplied := c.helloSent[conn]
	c.helloSent[conn] = true
	c.mu.Unlock()

	c.markUp(hello.NodeID, env.TimestampMs)

	if !alreadyReplied {
		_ = c.sendHello(conn)
	}

	// Full membership exchange: answer every Hello with our whole table.
	c.sendGossip(conn, c.fullSnapshot())
}

func (c *Cluster) onConnClosed(conn *transport.Conn, reason DownReason) {
	if conn.Peer == "" {
		return
	}
	c.markDown(conn.Peer, reason)
}

// Leave broadcasts goodbye to every connected peer, waits out the
// configured grace period (or until ctx is done) so in-flight calls have
// time to complete, then closes every connection and the listener. It does
// not track in-flight calls: the full grace period elapses even when none
// are pending.
func (c *Cluster) Leave(ctx context.Context) error {
	env := c.newEnvelope(wire.Payload{
		Kind:    wire.KindGoodbye,
		Goodbye: &wire.Goodbye{NodeID: c.cfg.Self},
	})

	c.mu.Lock()
	conns := make([]*transport.Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Send(env)
	}

	select {
	case <-time.After(c.cfg.shutdownGrace()):
	case <-ctx.Done():
	}

	c.closeOnce.Do(func() {
		c.cancel()
		for _, conn := range conns {
			conn.Close()
		}
		c.ln.Close()
	})

	c.wg.Wait()

	return nil
}

// Subscribe registers fn for every NodeUp/NodeDown event published after
// this call returns.
func (c *Cluster) Subscribe(fn func(NodeEvent)) (unsubscribe func()) {
	return c.hub.subscribe(fn)
}

// Members returns a point-in-time snapshot of the membership table.
func (c *Cluster) Members() []Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Member, 0, len(c.table))
	for _, m := range c.table {
		out = append(out, m)
	}
	return out
}

// Self returns this node's own identity.
func (c *Cluster) Self() NodeID { return c.cfg.Self }
