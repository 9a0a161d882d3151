package timer

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/actor"
)

// targetRegistry resolves a TimerEntry's TargetID back to a live,
// type-erased delivery closure. A timer persists only its TargetID and a
// cbor-encoded payload, so a process that rehydrates someone else's timers
// needs a way to turn those bytes back into a typed Tell call without
// itself knowing M at compile time — the same heterogeneous-generics-
// into-a-map problem internal/remote/registry.go solves for behavior
// factories, solved here the same way: capture the concrete type at the
// generic call site and erase it into a closure. It is a Service-scoped
// instance, not a package-level global, so two Service instances in the
// same process (e.g. one per persisted actor domain) never resolve each
// other's targets by accident.
type targetRegistry struct {
	mu      sync.Mutex
	targets map[string]func(ctx context.Context, payload []byte) error
}

func newTargetRegistry() *targetRegistry {
	return &targetRegistry{
		targets: make(map[string]func(ctx context.Context, payload []byte) error),
	}
}

func (r *targetRegistry) resolve(id string) (func(ctx context.Context, payload []byte) error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, ok := r.targets[id]
	return fn, ok
}

// RegisterTarget makes target resolvable by its ID against s, so any timer
// naming it (including one rehydrated from storage after a restart) can be
// delivered. Schedule calls this automatically; call it directly only to
// pre-register a target before the first Schedule against it, e.g. right
// after restoring it from its own persisted state. Returns an unregister
// function. A type parameter can't live on a method, so RegisterTarget
// takes s explicitly rather than being a method of *Service.
func RegisterTarget[M actor.Message](s *Service, target actor.TellOnlyRef[M]) func() {
	id := target.ID()

	deliver := func(ctx context.Context, payload []byte) error {
		var msg M
		if err := cbor.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("timer: decoding message for %s: %w", id, err)
		}
		target.Tell(ctx, msg)
		return nil
	}

	s.targets.mu.Lock()
	s.targets.targets[id] = deliver
	s.targets.mu.Unlock()

	return func() {
		s.targets.mu.Lock()
		delete(s.targets.targets, id)
		s.targets.mu.Unlock()
	}
}
