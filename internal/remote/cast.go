package remote

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/wire"
)

// Cast sends msg to handle without waiting for a reply. A remote cast is
// fire-and-forget at the wire level too: delivery failure is only
// observable indirectly, via a subsequent Monitor notification or NodeDown.
func (n *Node) Cast(ctx context.Context, handle actor.ActorHandle, msg any) error {
	msgBytes, err := cbor.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encoding cast message: %v", ErrSerialization, err)
	}

	if handle.IsLocal() {
		n.mu.Lock()
		d, ok := n.dispatchers[handle.ID]
		n.mu.Unlock()

		if !ok {
			return ErrServerNotRunning
		}
		return d.cast(ctx, msgBytes)
	}

	env := n.cl.NewEnvelope(wire.Payload{
		Kind: wire.KindCast,
		Cast: &wire.Cast{TargetHandle: handle.ID, Msg: msgBytes},
	})

	if err := n.cl.SendTo(wire.NodeID(handle.NodeID), env); err != nil {
		return ErrNodeNotReachable
	}

	return nil
}

func (n *Node) handleIncomingCast(env wire.Envelope) {
	cast := env.Payload.Cast
	if cast == nil {
		return
	}

	n.mu.Lock()
	d, ok := n.dispatchers[cast.TargetHandle]
	n.mu.Unlock()

	if !ok {
		log.Debugf("cast for unknown actor %q dropped", cast.TargetHandle)
		return
	}

	if err := d.cast(context.Background(), cast.Msg); err != nil {
		log.Warnf("delivering remote cast to %q failed: %v", cast.TargetHandle, err)
	}
}
