package actor

import (
	"context"
	"errors"
	"sync"
)

// LifecycleEvent is the sealed union of events an ActorSystem broadcasts as
// actors move through their life. internal/registry subscribes to these to
// drive name-binding cleanup, and internal/supervisor subscribes to drive
// restarts.
type LifecycleEvent interface {
	lifecycleEventMarker()
	ActorID() string
}

type baseLifecycleEvent struct {
	actorID string
}

func (e baseLifecycleEvent) lifecycleEventMarker() {}
func (e baseLifecycleEvent) ActorID() string        { return e.actorID }

// Started is emitted once an actor's process loop begins consuming its
// mailbox.
type Started struct {
	baseLifecycleEvent
}

// Terminated is emitted after an actor's process loop exits, whether it was
// stopped or crashed. Reason is ErrActorTerminated after a Stop, and the
// crash error after a panic (Crashed is published first in that case).
type Terminated struct {
	baseLifecycleEvent
	Reason error
}

// Crashed is emitted when a Behavior's HandleCall/HandleCast panics, or when
// Init fails before the actor ever starts.
type Crashed struct {
	baseLifecycleEvent
	Error error
}

// StatePersisted is emitted after a successful checkpoint write.
type StatePersisted struct {
	baseLifecycleEvent
}

// StateRestored is emitted after a successful snapshot load on Init.
type StateRestored struct {
	baseLifecycleEvent
}

// PersistenceError is emitted when a checkpoint write or snapshot load
// fails.
type PersistenceError struct {
	baseLifecycleEvent
	Error error
}

func newStarted(id string) Started { return Started{baseLifecycleEvent{id}} }

func newTerminated(id string, reason error) Terminated {
	return Terminated{baseLifecycleEvent{id}, reason}
}

func newCrashed(id string, err error) Crashed {
	return Crashed{baseLifecycleEvent{id}, err}
}

func newStatePersisted(id string) StatePersisted {
	return StatePersisted{baseLifecycleEvent{id}}
}

func newStateRestored(id string) StateRestored {
	return StateRestored{baseLifecycleEvent{id}}
}

func newPersistenceError(id string, err error) PersistenceError {
	return PersistenceError{baseLifecycleEvent{id}, err}
}

// lifecycleHub fans out LifecycleEvents to subscribers. Two delivery modes
// exist: async subscribers (the common case, registered via subscribe) each
// get a dedicated dispatch goroutine so an observer calling back into the
// actor system cannot deadlock against the event producer's own call stack;
// sync subscribers (registered via subscribeSync) run directly on publish's
// caller before any event is handed to an async subscriber's channel at
// all. This gives sync subscribers a real happens-before over every async
// one - internal/registry relies on it to remove a name binding before a
// supervisor or remote monitor observing the same Terminated/Crashed event
// can resolve that name and find it still present. A sync subscriber must
// therefore be fast and must never block or call back into the actor
// system.
type lifecycleHub struct {
	mu       sync.Mutex
	subs     map[int]chan LifecycleEvent
	syncSubs map[int]func(LifecycleEvent)
	next     int
}

func newLifecycleHub() *lifecycleHub {
	return &lifecycleHub{
		subs:     make(map[int]chan LifecycleEvent),
		syncSubs: make(map[int]func(LifecycleEvent)),
	}
}

// subscribe registers fn to be called, on its own goroutine, for every
// event published after this call returns. The returned func removes the
// subscription; it is safe to call more than once.
func (h *lifecycleHub) subscribe(fn func(LifecycleEvent)) (unsubscribe func()) {
	ch := make(chan LifecycleEvent, 64)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			fn(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
			<-done
		})
	}
}

// subscribeSync registers fn to be called synchronously, on publish's own
// caller, for every event published after this call returns - before any
// async subscriber's channel receives that same event. The returned func
// removes the subscription; it is safe to call more than once.
func (h *lifecycleHub) subscribeSync(fn func(LifecycleEvent)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.syncSubs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.syncSubs, id)
			h.mu.Unlock()
		})
	}
}

func (h *lifecycleHub) publish(ev LifecycleEvent) {
	h.mu.Lock()
	syncFns := make([]func(LifecycleEvent), 0, len(h.syncSubs))
	for _, fn := range h.syncSubs {
		syncFns = append(syncFns, fn)
	}
	chans := make([]chan LifecycleEvent, 0, len(h.subs))
	for _, ch := range h.subs {
		chans = append(chans, ch)
	}
	h.mu.Unlock()

	// Sync subscribers run to completion before the event is even
	// offered to an async subscriber's channel, giving them a genuine
	// happens-before over every async observer rather than a race that
	// merely tends to resolve in their favor.
	for _, fn := range syncFns {
		fn(ev)
	}

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			// A slow subscriber does not get to back-pressure the
			// actor whose lifecycle transition this is; drop the
			// event for that subscriber rather than block.
			log.WarnS(context.Background(),
				"Lifecycle subscriber backlog full, "+
					"dropping event",
				errors.New("subscriber channel full"))
		}
	}
}
