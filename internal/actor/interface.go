package actor

import (
	"context"
	"iter"
	"time"
)

// BaseActorRef is a non-generic base interface for all actor references.
// This enables stronger typing in data structures that store heterogeneous
// actor references, such as the Receptionist's registration map. All
// ActorRef instances implement this interface.
type BaseActorRef interface {
	// ID returns the unique identifier for this actor.
	ID() string
}

// TellOnlyRef is a reference to an actor that only supports "tell"
// operations. Useful for scenarios where only fire-and-forget message
// passing is needed, or to restrict capabilities.
type TellOnlyRef[M Message] interface {
	BaseActorRef

	// Tell sends a message without waiting for a response. If the
	// context is cancelled before the message can be sent to the
	// actor's mailbox, the message may be dropped.
	Tell(ctx context.Context, msg M)
}

// ActorRef is a reference to an actor that supports both "tell" and "ask"
// operations.
type ActorRef[M Message, R any] interface {
	TellOnlyRef[M]

	// Ask sends a message and returns a Future for the response.
	Ask(ctx context.Context, msg M) Future[R]

	// Call is a convenience wrapper around Ask that blocks for at most
	// timeout waiting for the reply. A timeout of zero or less selects a
	// 5 second default. The timeout applies only when ctx has no deadline
	// of its own; otherwise ctx's deadline governs.
	Call(ctx context.Context, msg M, timeout time.Duration) (R, error)
}

// Behavior defines the logic for how an actor processes incoming messages,
// split into the call (request/response) and cast (fire-and-forget) halves
// so implementations state their intent per message rather than returning a
// Result nobody asked for.
type Behavior[M Message, R any] interface {
	// HandleCall processes a synchronous request and returns a reply or
	// an error. The context merges the actor's lifecycle context with
	// the caller's request context.
	HandleCall(ctx context.Context, msg M) (R, error)

	// HandleCast processes a fire-and-forget message. Errors are logged
	// by the engine but never observed by any caller.
	HandleCast(ctx context.Context, msg M) error
}

// Initializer is an optional interface a Behavior can implement to run setup
// logic synchronously before StartActor returns. If Init returns an error,
// the actor is never started and no handle is registered anywhere.
type Initializer interface {
	Init(ctx context.Context) error
}

// Terminator is an optional interface a Behavior can implement to perform
// cleanup when the actor is stopping. Terminate runs after the message loop
// exits and after any queued messages have been drained to the dead letter
// office, with a bounded timeout context.
type Terminator interface {
	Terminate(ctx context.Context, reason error) error
}

// Snapshotter is an optional interface a Behavior can implement to persist
// and restore its own state through internal/persistence.
type Snapshotter interface {
	// Snapshot serializes the behavior's current state.
	Snapshot() ([]byte, error)

	// Restore replaces the behavior's state from a previously persisted
	// snapshot at the given schema version.
	Restore(state []byte, schemaVersion int) error
}

// SystemContext defines the minimal interface for system capabilities
// needed by actors and service keys. This narrow interface enables
// dependency injection and unit testing without requiring a full
// ActorSystem instance.
type SystemContext interface {
	// Receptionist returns the system's receptionist for actor
	// discovery.
	Receptionist() *Receptionist

	// DeadLetters returns a reference to the dead letter actor for
	// undeliverable messages.
	DeadLetters() ActorRef[Message, any]
}

// SnapshotStore is the narrow persistence dependency an Actor needs to
// checkpoint and restore Snapshotter state. internal/persistence's
// StorageAdapter implementations are adapted to this interface.
type SnapshotStore interface {
	// Load returns the persisted state for key, whether one was found,
	// and the schema version it was written with.
	Load(ctx context.Context, key string) (state []byte, schemaVersion int, found bool, err error)

	// Save persists state for key at the given schema version.
	Save(ctx context.Context, key string, state []byte, schemaVersion int) error
}

// Mailbox defines the interface for an actor's message queue. This
// abstraction allows different mailbox strategies to be plugged in, such as
// priority queues or backpressure-aware mailboxes, without changing the
// actor implementation.
//
// Thread Safety:
//   - Send and TrySend may be called concurrently from multiple
//     goroutines.
//   - Receive should only be called from a single goroutine (the actor's
//     process loop).
//   - Close may be called concurrently with Send/TrySend and is
//     idempotent.
//   - IsClosed may be called concurrently from any goroutine.
//   - Drain should only be called after Close and from a single
//     goroutine.
//   - Send and TrySend return false after Close has been called.
type Mailbox[M Message, R any] interface {
	Send(ctx context.Context, env envelope[M, R]) bool
	TrySend(env envelope[M, R]) bool
	Receive(ctx context.Context) iter.Seq[envelope[M, R]]
	Close()
	IsClosed() bool
	Drain() iter.Seq[envelope[M, R]]
}
