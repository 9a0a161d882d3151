package supervisor

import (
	"context"
	"sync"

	"github.com/roasbeef/holon/internal/actor"
)

// actorChildHandle wraps an actor.ActorRef so it satisfies ChildHandle, and
// carries the unsubscribe func for the lifecycle subscription that feeds
// this child's report callback.
type actorChildHandle[M actor.Message, R any] struct {
	ref         actor.ActorRef[M, R]
	unsubscribe func()
}

func (h *actorChildHandle[M, R]) ID() string { return h.ref.ID() }

// ActorChild builds a ChildSpec whose Start spawns an actor under key via
// sys, and whose report callback is driven by the actor system's lifecycle
// hub: a Crashed event reports the panic error, an unexpected Terminated
// event reports its reason, or nil (a normal exit) when that reason is nil
// or actor.ErrActorTerminated, and a supervisor-initiated Stop never
// reports (the supervisor already knows it asked for that).
//
// behaviorFn is called once per start (including every restart) so a fresh
// behavior instance backs each incarnation, matching OTP's "restart means a
// brand new process state" semantics.
func ActorChild[M actor.Message, R any](
	id string,
	restart RestartType,
	significant bool,
	sys *actor.ActorSystem,
	key actor.ServiceKey[M, R],
	behaviorFn func() actor.Behavior[M, R],
	opts ...actor.RegisterOption,
) ChildSpec {

	return ChildSpec{
		ID:          id,
		Restart:     restart,
		Significant: significant,

		Start: func(_ context.Context, report func(error)) (ChildHandle, error) {
			ref := key.Spawn(sys, id, behaviorFn(), opts...)

			var (
				mu       sync.Mutex
				reported bool
			)
			reportOnce := func(err error) {
				mu.Lock()
				already := reported
				reported = true
				mu.Unlock()

				if !already {
					report(err)
				}
			}

			unsubscribe := sys.Subscribe(func(ev actor.LifecycleEvent) {
				if ev.ActorID() != id {
					return
				}

				switch e := ev.(type) {
				case actor.Crashed:
					reportOnce(e.Error)
				case actor.Terminated:
					if e.Reason != nil &&
						e.Reason != actor.ErrActorTerminated {

						reportOnce(e.Reason)
						return
					}
					reportOnce(nil)
				}
			})

			return &actorChildHandle[M, R]{
				ref:         ref,
				unsubscribe: unsubscribe,
			}, nil
		},

		Stop: func(ctx context.Context, h ChildHandle) error {
			ach, ok := h.(*actorChildHandle[M, R])
			if !ok {
				return nil
			}

			ach.unsubscribe()
			sys.StopAndRemoveActor(ach.ref.ID())

			return nil
		},
	}
}
