// Package registry implements the local name registry: a process-wide
// mapping from a name to exactly one actor handle, with bindings removed
// automatically when the bound actor terminates or crashes.
package registry

import (
	"fmt"
	"sync"

	"github.com/roasbeef/holon/internal/actor"
)

// ErrAlreadyRegistered is returned by Register when name is already bound.
var ErrAlreadyRegistered = fmt.Errorf("name already registered")

// ErrNotRegistered is returned by Lookup when name has no binding.
var ErrNotRegistered = fmt.Errorf("name not registered")

// Registry is a single-writer name -> actor handle binding table. Unlike
// internal/actor's Receptionist (which allows many actors per service key,
// for group discovery and routing), Registry enforces exactly one handle
// per name, modeling Erlang's global/local process registry.
type Registry struct {
	mu       sync.Mutex
	byName   map[string]actor.BaseActorRef
	idToName map[string]string
}

// NewRegistry constructs a Registry and subscribes it to sys's lifecycle
// hub via SubscribeSync, so a name binding is removed synchronously on the
// terminating actor's own goroutine before the event is even offered to
// any Subscribe-based observer (internal/supervisor's restarts,
// internal/remote's monitor notifications). That ordering is structural,
// not incidental: it no longer depends on construction order or the
// scheduler happening to run the Registry's goroutine first, because the
// Registry has no goroutine of its own in this path.
func NewRegistry(sys *actor.ActorSystem) *Registry {
	r := &Registry{
		byName:   make(map[string]actor.BaseActorRef),
		idToName: make(map[string]string),
	}

	sys.SubscribeSync(func(ev actor.LifecycleEvent) {
		switch ev.(type) {
		case actor.Terminated, actor.Crashed:
			r.removeByActorID(ev.ActorID())
		}
	})

	return r
}

// Register binds name to ref. Returns ErrAlreadyRegistered if name is
// already bound, even to the same actor.
func (r *Registry) Register(name string, ref actor.BaseActorRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	r.byName[name] = ref
	r.idToName[ref.ID()] = name

	return nil
}

// Unregister removes name's binding, if any. Returns true if a binding was
// removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, exists := r.byName[name]
	if !exists {
		return false
	}

	delete(r.byName, name)
	delete(r.idToName, ref.ID())

	return true
}

// Lookup resolves name to its bound actor handle.
func (r *Registry) Lookup(name string) (actor.BaseActorRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, exists := r.byName[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	return ref, nil
}

// Whereis is Lookup without the error allocation, for callers that just
// want a boolean.
func (r *Registry) Whereis(name string) (actor.BaseActorRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, exists := r.byName[name]
	return ref, exists
}

// IsRegistered reports whether name currently has a binding.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.byName[name]
	return exists
}

// Count returns the number of currently bound names.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byName)
}

// Names returns a snapshot of all currently bound names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}

	return names
}

func (r *Registry) removeByActorID(actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, exists := r.idToName[actorID]
	if !exists {
		return
	}

	delete(r.idToName, actorID)
	delete(r.byName, name)
}
