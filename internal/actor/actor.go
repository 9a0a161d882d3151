package actor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// mergeContexts creates a context that cancels when either parent context
// cancels, preserving the earliest deadline between the two. A background
// goroutine watches both parents and cancels the merged context as soon as
// either fires; callers must invoke the returned cancel func to release it
// promptly once the merged context is no longer needed.
func mergeContexts(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	deadline1, hasDeadline1 := ctx1.Deadline()
	deadline2, hasDeadline2 := ctx2.Deadline()

	baseCtx := ctx1
	if hasDeadline2 {
		if !hasDeadline1 || deadline2.Before(deadline1) {
			baseCtx = ctx2
		}
	}

	mergedCtx, cancel := context.WithCancel(baseCtx)

	go func() {
		select {
		case <-ctx1.Done():
			cancel()
		case <-ctx2.Done():
			cancel()
		case <-mergedCtx.Done():
		}
	}()

	return mergedCtx, cancel
}

// CheckpointPolicy controls when an actor's Snapshotter state is persisted.
type CheckpointPolicy int

const (
	// CheckpointManual means the engine never checkpoints automatically;
	// the behavior must arrange its own persistence.
	CheckpointManual CheckpointPolicy = iota

	// CheckpointEveryMessage persists state after every processed
	// message.
	CheckpointEveryMessage

	// CheckpointEveryN persists state every N processed messages. See
	// ActorConfig.CheckpointN.
	CheckpointEveryN
)

// ActorConfig holds the configuration parameters for creating a new Actor.
type ActorConfig[M Message, R any] struct {
	// ID is the unique identifier for the actor.
	ID string

	// Behavior defines how the actor responds to messages.
	Behavior Behavior[M, R]

	// DLO is a reference to the dead letter office for this actor
	// system.
	DLO ActorRef[Message, any]

	// MailboxSize defines the buffer capacity of the actor's mailbox.
	MailboxSize int

	// Wg is an optional WaitGroup for tracking actor lifecycle.
	Wg *sync.WaitGroup

	// CleanupTimeout specifies the maximum duration for Terminate
	// cleanup. If None, a default of 5 seconds is used.
	CleanupTimeout fn.Option[time.Duration]

	// Hub is the lifecycle event broadcaster events are published to.
	// May be nil, in which case lifecycle events are simply not
	// published.
	Hub *lifecycleHub

	// Store, when non-nil together with PersistenceKey, enables
	// snapshot persistence for Behaviors implementing Snapshotter.
	Store SnapshotStore

	// PersistenceKey is the key under which this actor's state is
	// checkpointed and restored.
	PersistenceKey string

	// Checkpoint controls when state is written through Store.
	Checkpoint CheckpointPolicy

	// CheckpointN is the message interval used by CheckpointEveryN.
	CheckpointN int
}

// envelope wraps a message with its associated promise and caller context.
// If the promise is nil, it signifies a "tell"/cast operation.
type envelope[M Message, R any] struct {
	message   M
	promise   Promise[R]
	callerCtx context.Context
}

// Actor represents a concrete actor implementation. It encapsulates a
// behavior and processes messages from its mailbox sequentially in its own
// goroutine, never running two handlers concurrently.
type Actor[M Message, R any] struct {
	id       string
	behavior Behavior[M, R]
	mailbox  Mailbox[M, R]

	ctx    context.Context
	cancel context.CancelFunc

	dlo ActorRef[Message, any]

	wg             *sync.WaitGroup
	cleanupTimeout time.Duration

	hub *lifecycleHub

	store          SnapshotStore
	persistenceKey string
	checkpoint     CheckpointPolicy
	checkpointN    int
	msgCount       int

	startOnce sync.Once
	stopOnce  sync.Once

	ref ActorRef[M, R]

	crashReason fn.Option[error]
}

// NewActor creates a new actor instance with the given ID and behavior. It
// initializes internal structures but does not start message processing;
// use StartActor to both run Init and start the loop.
func NewActor[M Message, R any](cfg ActorConfig[M, R]) *Actor[M, R] {
	ctx, cancel := context.WithCancel(context.Background())

	mailboxCapacity := cfg.MailboxSize
	if mailboxCapacity <= 0 {
		mailboxCapacity = 1
	}

	a := &Actor[M, R]{
		id:             cfg.ID,
		behavior:       cfg.Behavior,
		mailbox:        NewChannelMailbox[M, R](ctx, mailboxCapacity),
		ctx:            ctx,
		cancel:         cancel,
		dlo:            cfg.DLO,
		wg:             cfg.Wg,
		cleanupTimeout: cfg.CleanupTimeout.UnwrapOr(5 * time.Second),
		hub:            cfg.Hub,
		store:          cfg.Store,
		persistenceKey: cfg.PersistenceKey,
		checkpoint:     cfg.Checkpoint,
		checkpointN:    cfg.CheckpointN,
	}

	a.ref = &actorRefImpl[M, R]{actor: a}

	return a
}

// StartActor runs the behavior's Init (if any) synchronously, and only on
// success starts the mailbox-processing goroutine. On Init failure, no
// goroutine is started and the context is cancelled immediately so the
// caller is left with no leaked handle.
func StartActor[M Message, R any](cfg ActorConfig[M, R]) (*Actor[M, R], error) {
	a := NewActor(cfg)

	if err := a.restoreOrInit(); err != nil {
		a.cancel()
		a.publish(newCrashed(a.id, err))

		return nil, err
	}

	a.Start()

	return a, nil
}

func (a *Actor[M, R]) restoreOrInit() error {
	if snap, ok := a.behavior.(Snapshotter); ok && a.store != nil &&
		a.persistenceKey != "" {

		state, version, found, err := a.store.Load(a.ctx, a.persistenceKey)
		if err != nil {
			a.publish(newPersistenceError(a.id, err))
			return fmt.Errorf("loading snapshot for %q: %w",
				a.id, err)
		}

		if found {
			if err := snap.Restore(state, version); err != nil {
				a.publish(newPersistenceError(a.id, err))
				return fmt.Errorf("restoring snapshot for "+
					"%q: %w", a.id, err)
			}

			a.publish(newStateRestored(a.id))
		}
	}

	if initer, ok := a.behavior.(Initializer); ok {
		if err := initer.Init(a.ctx); err != nil {
			return fmt.Errorf("init failed for actor %q: %w",
				a.id, err)
		}
	}

	return nil
}

// Start initiates the actor's message processing loop in a new goroutine.
// Safe to call multiple times; only the first call has an effect.
func (a *Actor[M, R]) Start() {
	a.startOnce.Do(func() {
		log.DebugS(a.ctx, "Starting actor", "actor_id", a.id)

		if a.wg != nil {
			a.wg.Add(1)
		}

		a.publish(newStarted(a.id))

		go a.process()
	})
}

// process is the main event loop. A panic inside a handler is recovered,
// turned into an error, and treated as fatal for this actor instance: the
// loop exits (as if Stop had been called) and a Crashed event is published
// so a supervisor can decide whether to start a replacement. The panic
// never propagates past this goroutine.
func (a *Actor[M, R]) process() {
	if a.wg != nil {
		defer a.wg.Done()
	}

	for env := range a.mailbox.Receive(a.ctx) {
		if a.handleOne(env) {
			// The handler panicked; stop accepting further
			// messages and fall through to the shutdown
			// sequence below.
			a.cancel()
			break
		}
	}

	a.shutdown()
}

// handleOne dispatches a single envelope to the behavior, recovering from
// any panic. It returns true if a panic occurred.
func (a *Actor[M, R]) handleOne(env envelope[M, R]) (crashed bool) {
	var processCtx context.Context
	var cancel context.CancelFunc
	if env.promise != nil {
		processCtx, cancel = mergeContexts(a.ctx, env.callerCtx)
	} else {
		processCtx, cancel = a.ctx, func() {}
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("actor %q panic: %v\n%s",
				a.id, r, debug.Stack())

			log.ErrorS(processCtx, "Actor handler panicked", err,
				"actor_id", a.id)

			if env.promise != nil {
				env.promise.Complete(fn.Err[R](err))
			}

			a.crashReason = fn.Some(err)
			a.publish(newCrashed(a.id, err))

			crashed = true
		}
	}()

	log.TraceS(processCtx, "Actor processing message",
		"actor_id", a.id,
		"msg_type", env.message.MessageType(),
		"is_ask", env.promise != nil)

	if env.promise != nil {
		reply, err := a.behavior.HandleCall(processCtx, env.message)
		if err != nil {
			env.promise.Complete(fn.Err[R](err))
		} else {
			env.promise.Complete(fn.Ok(reply))
		}
	} else {
		if err := a.behavior.HandleCast(processCtx, env.message); err != nil {
			log.WarnS(processCtx, "HandleCast returned an error",
				err, "actor_id", a.id,
				"msg_type", env.message.MessageType())
		}
	}

	a.maybeCheckpoint(processCtx)

	return false
}

func (a *Actor[M, R]) maybeCheckpoint(ctx context.Context) {
	snap, ok := a.behavior.(Snapshotter)
	if !ok || a.store == nil || a.persistenceKey == "" {
		return
	}

	a.msgCount++

	switch a.checkpoint {
	case CheckpointEveryMessage:
	case CheckpointEveryN:
		n := a.checkpointN
		if n <= 0 {
			n = 1
		}
		if a.msgCount%n != 0 {
			return
		}
	default:
		return
	}

	state, err := snap.Snapshot()
	if err != nil {
		a.publish(newPersistenceError(a.id, err))
		log.WarnS(ctx, "Failed to serialize actor state", err,
			"actor_id", a.id)
		return
	}

	if err := a.store.Save(ctx, a.persistenceKey, state, 1); err != nil {
		a.publish(newPersistenceError(a.id, err))
		log.WarnS(ctx, "Failed to persist actor state", err,
			"actor_id", a.id)
		return
	}

	a.publish(newStatePersisted(a.id))
}

// shutdown closes the mailbox, drains any remaining messages to the DLO,
// runs Terminate if implemented, and publishes the terminal lifecycle
// event.
func (a *Actor[M, R]) shutdown() {
	a.mailbox.Close()

	drained := 0
	for env := range a.mailbox.Drain() {
		drained++

		if a.dlo != nil {
			a.dlo.Tell(context.Background(), env.message)
		}

		if env.promise != nil {
			env.promise.Complete(fn.Err[R](ErrActorTerminated))
		}
	}

	var reason error = ErrActorTerminated
	if a.crashReason.IsSome() {
		reason = a.crashReason.UnwrapOr(nil)
	}

	if term, ok := a.behavior.(Terminator); ok {
		cleanupCtx, cancel := context.WithTimeout(
			context.Background(), a.cleanupTimeout,
		)
		if err := term.Terminate(cleanupCtx, reason); err != nil {
			log.WarnS(a.ctx, "Actor cleanup error during shutdown",
				err, "actor_id", a.id)
		}
		cancel()
	}

	log.DebugS(a.ctx, "Actor terminated",
		"actor_id", a.id, "drained_messages", drained)

	a.publish(newTerminated(a.id, reason))
}

func (a *Actor[M, R]) publish(ev LifecycleEvent) {
	if a.hub != nil {
		a.hub.publish(ev)
	}
}

// Stop signals the actor to terminate its processing loop. The actor's
// goroutine exits once it detects context cancellation, then closes the
// mailbox and drains remaining messages to the DLO.
func (a *Actor[M, R]) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
	})
}

// actorRefImpl is the concrete ActorRef implementation.
type actorRefImpl[M Message, R any] struct {
	actor *Actor[M, R]
}

func (ref *actorRefImpl[M, R]) Tell(ctx context.Context, msg M) {
	env := envelope[M, R]{message: msg, callerCtx: ctx}
	ok := ref.actor.mailbox.Send(ctx, env)

	if !ok {
		if ctx.Err() == nil || ref.actor.ctx.Err() != nil {
			ref.trySendToDLO(msg)
		}
	}
}

func (ref *actorRefImpl[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	promise := NewPromise[R]()

	if ref.actor.ctx.Err() != nil {
		promise.Complete(fn.Err[R](ErrActorTerminated))
		return promise.Future()
	}

	env := envelope[M, R]{message: msg, promise: promise, callerCtx: ctx}
	ok := ref.actor.mailbox.Send(ctx, env)

	if !ok {
		if ref.actor.ctx.Err() != nil {
			promise.Complete(fn.Err[R](ErrActorTerminated))
		} else {
			err := ctx.Err()
			if err == nil {
				err = ErrActorTerminated
			}
			promise.Complete(fn.Err[R](err))
		}
	}

	return promise.Future()
}

// defaultAskTimeout is applied by Call when ctx carries no deadline.
const defaultAskTimeout = 5 * time.Second

func (ref *actorRefImpl[M, R]) Call(ctx context.Context, msg M,
	timeout time.Duration) (R, error) {

	if timeout <= 0 {
		timeout = defaultAskTimeout
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return ref.Ask(ctx, msg).Await(ctx).Unpack()
}

func (ref *actorRefImpl[M, R]) trySendToDLO(msg M) {
	if ref.actor.dlo != nil {
		ref.actor.dlo.Tell(context.Background(), msg)
	}
}

func (ref *actorRefImpl[M, R]) ID() string {
	return ref.actor.id
}

// Ref returns an ActorRef for this actor.
func (a *Actor[M, R]) Ref() ActorRef[M, R] {
	return a.ref
}

// TellRef returns a TellOnlyRef for this actor.
func (a *Actor[M, R]) TellRef() TellOnlyRef[M] {
	return a.ref
}
