package actor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// RoutingStrategy picks one ActorRef out of the current set of actors
// registered under a ServiceKey.
type RoutingStrategy[M Message, R any] interface {
	Select(refs []ActorRef[M, R]) (ActorRef[M, R], bool)
}

// roundRobinStrategy cycles through the given refs in order using an atomic
// counter.
type roundRobinStrategy[M Message, R any] struct {
	next atomic.Uint64
}

// NewRoundRobinStrategy returns the default routing strategy.
func NewRoundRobinStrategy[M Message, R any]() RoutingStrategy[M, R] {
	return &roundRobinStrategy[M, R]{}
}

func (s *roundRobinStrategy[M, R]) Select(
	refs []ActorRef[M, R]) (ActorRef[M, R], bool) {

	if len(refs) == 0 {
		var zero ActorRef[M, R]
		return zero, false
	}

	idx := s.next.Add(1) - 1
	return refs[idx%uint64(len(refs))], true
}

// Router is a virtual ActorRef that load-balances Tell/Ask across all
// actors currently registered under a ServiceKey, re-resolving the set on
// every call so actors that join or leave the receptionist are picked up
// without re-creating the router.
type Router[M Message, R any] struct {
	receptionist *Receptionist
	key          ServiceKey[M, R]
	strategy     RoutingStrategy[M, R]
	dlo          ActorRef[Message, any]
}

// NewRouter constructs a Router over the given receptionist and service
// key.
func NewRouter[M Message, R any](receptionist *Receptionist,
	key ServiceKey[M, R], strategy RoutingStrategy[M, R],
	dlo ActorRef[Message, any]) ActorRef[M, R] {

	return &Router[M, R]{
		receptionist: receptionist,
		key:          key,
		strategy:     strategy,
		dlo:          dlo,
	}
}

func (r *Router[M, R]) pick() (ActorRef[M, R], bool) {
	refs := FindInReceptionist(r.receptionist, r.key)
	return r.strategy.Select(refs)
}

func (r *Router[M, R]) Tell(ctx context.Context, msg M) {
	target, ok := r.pick()
	if !ok {
		if r.dlo != nil {
			r.dlo.Tell(ctx, msg)
		}
		return
	}

	target.Tell(ctx, msg)
}

func (r *Router[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	target, ok := r.pick()
	if !ok {
		promise := NewPromise[R]()
		promise.Complete(fn.Err[R](ErrServiceKeyNoRoute))
		return promise.Future()
	}

	return target.Ask(ctx, msg)
}

func (r *Router[M, R]) Call(ctx context.Context, msg M,
	timeout time.Duration) (R, error) {

	target, ok := r.pick()
	if !ok {
		var zero R
		return zero, ErrServiceKeyNoRoute
	}

	return target.Call(ctx, msg, timeout)
}

func (r *Router[M, R]) ID() string {
	return "router:" + r.key.name
}
