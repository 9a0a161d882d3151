package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/actor"
)

// dispatcher is the type-erased handle to one locally running actor that
// was spawned through this package: a byte-in/byte-out bridge over its
// concrete Behavior[M, R], so Call/Cast/SpawnRequest handling never needs
// to know M or R once an actor exists.
type dispatcher struct {
	handle actor.ActorHandle
	call   func(ctx context.Context, msg []byte, timeout time.Duration) ([]byte, error)
	cast   func(ctx context.Context, msg []byte) error
	stop   func()
}

type spawnFunc func(sys *actor.ActorSystem, id string, rawArgs []byte) (dispatcher, error)

// behaviorRegistry is a Node's table of names a SpawnRequest (local or
// remote) may target. It is a Node-scoped instance rather than a
// package-level global so that two Nodes in the same process - as in a
// multi-node integration test, or any binary hosting more than one
// cluster member - never share a behavior table: registering "echo" on
// one Node must not make it spawnable on another's.
type behaviorRegistry struct {
	mu  sync.Mutex
	fns map[string]spawnFunc
}

func newBehaviorRegistry() *behaviorRegistry {
	return &behaviorRegistry{fns: make(map[string]spawnFunc)}
}

func (r *behaviorRegistry) register(name string, fn spawnFunc) {
	r.mu.Lock()
	r.fns[name] = fn
	r.mu.Unlock()
}

func (r *behaviorRegistry) lookup(name string) (spawnFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// RegisterBehavior makes a behavior spawnable by name on n, across the
// cluster. factory is invoked with the decoded spawn args every time Spawn
// targets name against n, whether the request originates locally or
// arrives over the wire. Call/Cast/Spawn route through this only for
// actors created this way; an actor addressed solely through
// internal/actor's typed ActorRef is never reachable from here. A type
// parameter can't live on a method, so RegisterBehavior takes n explicitly
// rather than being a method of *Node.
func RegisterBehavior[M actor.Message, R any](n *Node, name string, factory func(args any) actor.Behavior[M, R]) {
	key := actor.NewServiceKey[M, R](name)

	fn := func(sys *actor.ActorSystem, id string, rawArgs []byte) (dispatcher, error) {
		var args any
		if len(rawArgs) > 0 {
			if err := cbor.Unmarshal(rawArgs, &args); err != nil {
				return dispatcher{}, fmt.Errorf("%w: decoding spawn args: %v", ErrSerialization, err)
			}
		}

		behavior := factory(args)
		ref := key.Spawn(sys, id, behavior)

		return dispatcher{
			handle: actor.LocalHandle(id),
			call: func(ctx context.Context, msg []byte, timeout time.Duration) ([]byte, error) {
				var typed M
				if err := cbor.Unmarshal(msg, &typed); err != nil {
					return nil, fmt.Errorf("%w: decoding call message: %v", ErrSerialization, err)
				}

				reply, err := ref.Call(ctx, typed, timeout)
				if err != nil {
					return nil, err
				}

				out, err := cbor.Marshal(reply)
				if err != nil {
					return nil, fmt.Errorf("%w: encoding call reply: %v", ErrSerialization, err)
				}
				return out, nil
			},
			cast: func(ctx context.Context, msg []byte) error {
				var typed M
				if err := cbor.Unmarshal(msg, &typed); err != nil {
					return fmt.Errorf("%w: decoding cast message: %v", ErrSerialization, err)
				}
				ref.Tell(ctx, typed)
				return nil
			},
			stop: func() { sys.StopAndRemoveActor(id) },
		}, nil
	}

	n.behaviors.register(name, fn)
}
