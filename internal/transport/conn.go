package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/roasbeef/holon/internal/wire"
)

// sendQueueDepth bounds how many outbound envelopes a Conn buffers before
// Send blocks. A connection that cannot keep up is a sign the peer (or
// the network) is in trouble; backpressure belongs to the caller, not an
// unbounded queue here.
const sendQueueDepth = 256

// Conn wraps a net.Conn with a single background reader goroutine and a
// single background writer goroutine, so that callers never interleave
// writes on the socket and reads are delivered in arrival order.
type Conn struct {
	nc           net.Conn
	Peer         wire.NodeID
	maxFrameSize int

	sendCh chan []byte
	recvCh chan wire.Envelope
	errCh  chan error

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps nc for framed Envelope exchange with peer. maxFrameSize of
// 0 selects DefaultMaxFrameSize.
func NewConn(nc net.Conn, peer wire.NodeID, maxFrameSize int) *Conn {
	return &Conn{
		nc:           nc,
		Peer:         peer,
		maxFrameSize: maxFrameSize,
		sendCh:       make(chan []byte, sendQueueDepth),
		recvCh:       make(chan wire.Envelope, sendQueueDepth),
		errCh:        make(chan error, 1),
		done:         make(chan struct{}),
	}
}

// Start launches the reader and writer goroutines. Callers must call
// Close when done to release them.
func (c *Conn) Start() {
	go c.readLoop()
	go c.writeLoop()
}

func (c *Conn) readLoop() {
	for {
		payload, err := ReadFrame(c.nc, c.maxFrameSize)
		if err != nil {
			c.fail(fmt.Errorf("transport: read from %s: %w", c.Peer, err))
			return
		}

		env, err := wire.Decode(payload)
		if err != nil {
			c.fail(fmt.Errorf("transport: decode from %s: %w", c.Peer, err))
			return
		}

		select {
		case c.recvCh <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case payload := <-c.sendCh:
			if err := WriteFrame(c.nc, payload); err != nil {
				c.fail(fmt.Errorf("transport: write to %s: %w", c.Peer, err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
	c.Close()
}

// Send enqueues env for delivery. It blocks if the outbound queue is
// full, applying backpressure to the caller rather than buffering
// unboundedly.
func (c *Conn) Send(env wire.Envelope) error {
	payload, err := wire.Encode(env)
	if err != nil {
		return err
	}

	select {
	case c.sendCh <- payload:
		return nil
	case <-c.done:
		return fmt.Errorf("transport: connection to %s closed", c.Peer)
	}
}

// Recv delivers envelopes as they arrive, in order.
func (c *Conn) Recv() <-chan wire.Envelope { return c.recvCh }

// Errors delivers at most one fatal connection error.
func (c *Conn) Errors() <-chan error { return c.errCh }

// Done is closed once the connection has stopped reading and writing.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close tears down the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.nc.Close()
	})
	return err
}
