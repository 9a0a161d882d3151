package actor

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// registerConfig holds optional configuration for actor registration.
type registerConfig struct {
	cleanupTimeout fn.Option[time.Duration]
	store          SnapshotStore
	persistenceKey string
	checkpoint     CheckpointPolicy
	checkpointN    int
}

// RegisterOption is a functional option for configuring actor registration
// via RegisterWithSystem.
type RegisterOption func(*registerConfig)

// WithCleanupTimeout sets the Terminate cleanup timeout for the actor. If
// not specified, the default of 5 seconds is used.
func WithCleanupTimeout(d time.Duration) RegisterOption {
	return func(cfg *registerConfig) {
		cfg.cleanupTimeout = fn.Some(d)
	}
}

// WithPersistence enables snapshot checkpointing for a Behavior that
// implements Snapshotter.
func WithPersistence(store SnapshotStore, key string,
	policy CheckpointPolicy, everyN int) RegisterOption {

	return func(cfg *registerConfig) {
		cfg.store = store
		cfg.persistenceKey = key
		cfg.checkpoint = policy
		cfg.checkpointN = everyN
	}
}

// stoppable defines an interface for components that can be stopped. This
// is unexported; it is an internal detail of how ActorSystem manages
// heterogeneous *Actor[M,R] instances in a single map.
type stoppable interface {
	Stop()
}

// SystemConfig holds configuration parameters for the ActorSystem.
type SystemConfig struct {
	// MailboxCapacity is the default capacity for actor mailboxes.
	MailboxCapacity int
}

// DefaultConfig returns a default configuration for the ActorSystem.
func DefaultConfig() SystemConfig {
	return SystemConfig{MailboxCapacity: 100}
}

// ActorSystem manages the lifecycle of actors and provides coordination
// services: a receptionist for actor discovery, a dead letter office for
// undeliverable messages, and a lifecycle event hub.
type ActorSystem struct {
	receptionist *Receptionist
	hub          *lifecycleHub

	actors map[string]stoppable

	deadLetterActor ActorRef[Message, any]

	config SystemConfig

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	actorWg sync.WaitGroup
}

// NewActorSystem creates a new actor system using the default
// configuration.
func NewActorSystem() *ActorSystem {
	return NewActorSystemWithConfig(DefaultConfig())
}

// NewActorSystemWithConfig creates a new actor system with custom
// configuration.
func NewActorSystemWithConfig(config SystemConfig) *ActorSystem {
	ctx, cancel := context.WithCancel(context.Background())

	system := &ActorSystem{
		receptionist: newReceptionist(),
		hub:          newLifecycleHub(),
		config:       config,
		actors:       make(map[string]stoppable),
		ctx:          ctx,
		cancel:       cancel,
	}

	deadLetterBehavior := NewFunctionBehavior(
		func(_ context.Context, msg Message) (any, error) {
			return nil, fmt.Errorf("message undeliverable: %s",
				msg.MessageType())
		},
	)

	deadLetterActorCfg := ActorConfig[Message, any]{
		ID:          "dead-letters",
		Behavior:    deadLetterBehavior,
		DLO:         nil,
		MailboxSize: config.MailboxCapacity,
		Wg:          &system.actorWg,
		Hub:         system.hub,
	}
	deadLetterRawActor := NewActor[Message, any](deadLetterActorCfg)
	deadLetterRawActor.Start()
	system.deadLetterActor = deadLetterRawActor.Ref()

	system.actors[deadLetterRawActor.id] = deadLetterRawActor

	return system
}

// newStoppedActorRef creates a stopped actor reference with the given ID,
// used to return a safe non-nil reference when actor creation fails so
// calls on it fail with ErrActorTerminated rather than panicking on nil.
func newStoppedActorRef[M Message, R any](id string) ActorRef[M, R] {
	a := NewActor(ActorConfig[M, R]{ID: id})
	a.Stop()
	return a.Ref()
}

// RegisterWithSystem creates an actor with the given ID, service key, and
// behavior within the ActorSystem. It runs Init synchronously, starts the
// actor, registers it with the receptionist under key, and returns its
// ActorRef. If Init fails or the service key is already bound to a
// different message/response type, a stopped ref is returned and no actor
// is left registered anywhere.
func RegisterWithSystem[M Message, R any](as *ActorSystem, id string,
	key ServiceKey[M, R], behavior Behavior[M, R], opts ...RegisterOption,
) ActorRef[M, R] {

	if as.ctx.Err() != nil {
		return newStoppedActorRef[M, R](id)
	}

	var regCfg registerConfig
	for _, opt := range opts {
		opt(&regCfg)
	}

	actorCfg := ActorConfig[M, R]{
		ID:             id,
		Behavior:       behavior,
		DLO:            as.deadLetterActor,
		MailboxSize:    as.config.MailboxCapacity,
		Wg:             &as.actorWg,
		CleanupTimeout: regCfg.cleanupTimeout,
		Hub:            as.hub,
		Store:          regCfg.store,
		PersistenceKey: regCfg.persistenceKey,
		Checkpoint:     regCfg.checkpoint,
		CheckpointN:    regCfg.checkpointN,
	}

	actorInstance, err := StartActor(actorCfg)
	if err != nil {
		log.WarnS(as.ctx, "Actor failed to initialize", err,
			"actor_id", id)

		return newStoppedActorRef[M, R](id)
	}

	as.mu.Lock()
	as.actors[actorInstance.id] = actorInstance
	as.mu.Unlock()

	if err := RegisterWithReceptionist(as.receptionist, key, actorInstance.Ref()); err != nil {
		actorInstance.Stop()

		as.mu.Lock()
		delete(as.actors, actorInstance.id)
		as.mu.Unlock()

		return newStoppedActorRef[M, R](id)
	}

	log.DebugS(as.ctx, "Actor registered with system",
		"actor_id", id, "service_key", key.name)

	return actorInstance.Ref()
}

// Receptionist returns the system's receptionist.
func (as *ActorSystem) Receptionist() *Receptionist {
	return as.receptionist
}

// DeadLetters returns a reference to the system's dead letter actor.
func (as *ActorSystem) DeadLetters() ActorRef[Message, any] {
	return as.deadLetterActor
}

// Subscribe registers fn to be invoked, on its own dispatch goroutine, for
// every LifecycleEvent published from this point forward. The returned
// func removes the subscription.
func (as *ActorSystem) Subscribe(fn func(LifecycleEvent)) (unsubscribe func()) {
	return as.hub.subscribe(fn)
}

// SubscribeSync registers fn to be invoked synchronously, on the
// terminating actor's own goroutine, for every LifecycleEvent published
// from this point forward - strictly before any Subscribe observer's
// channel receives that same event. Intended for cleanup that another
// observer's reaction to the same event must never race with (internal/
// registry's name-binding removal is the one caller); fn must be fast and
// must not call back into the actor system. The returned func removes the
// subscription.
func (as *ActorSystem) SubscribeSync(fn func(LifecycleEvent)) (unsubscribe func()) {
	return as.hub.subscribeSync(fn)
}

// Shutdown gracefully stops the actor system: it cancels the system
// context (blocking new registrations), signals every managed actor to
// stop, and blocks until all actor goroutines exit or ctx expires.
func (as *ActorSystem) Shutdown(ctx context.Context) error {
	as.cancel()

	var actorsToStop []stoppable
	as.mu.RLock()
	for _, a := range as.actors {
		actorsToStop = append(actorsToStop, a)
	}
	as.mu.RUnlock()

	log.InfoS(ctx, "Actor system shutting down",
		"num_actors", len(actorsToStop))

	for _, a := range actorsToStop {
		a.Stop()
	}

	as.mu.Lock()
	as.actors = nil
	as.mu.Unlock()

	done := make(chan struct{})
	go func() {
		as.actorWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.InfoS(ctx, "Actor system shutdown completed")
		return nil

	case <-ctx.Done():
		log.ErrorS(ctx, "Actor system shutdown incomplete, some "+
			"actors may have leaked", ctx.Err())
		return ctx.Err()
	}
}

// StopAndRemoveActor stops a specific actor by its ID and removes it from
// the ActorSystem's management.
func (as *ActorSystem) StopAndRemoveActor(id string) bool {
	as.mu.Lock()
	defer as.mu.Unlock()

	a, exists := as.actors[id]
	if !exists {
		return false
	}

	a.Stop()
	delete(as.actors, id)

	return true
}

// UnregisterFromReceptionist removes an actor reference from a service key
// in the given receptionist.
func UnregisterFromReceptionist[M Message, R any](r *Receptionist,
	key ServiceKey[M, R], refToRemove ActorRef[M, R]) bool {

	r.mu.Lock()
	defer r.mu.Unlock()

	refs, exists := r.registrations[key.name]
	if !exists {
		return false
	}

	found := false
	newRefs := make([]BaseActorRef, 0, len(refs))
	for _, baseRef := range refs {
		if specificRef, ok := baseRef.(ActorRef[M, R]); ok {
			if specificRef == refToRemove {
				found = true
				continue
			}
		}
		newRefs = append(newRefs, baseRef)
	}

	if !found {
		return false
	}

	if len(newRefs) == 0 {
		delete(r.registrations, key.name)
		delete(r.typeRegistry, key.name)
	} else {
		r.registrations[key.name] = newRefs
	}

	return true
}

// ServiceKey is a type-safe identifier used for registering and discovering
// actors via the Receptionist.
type ServiceKey[M Message, R any] struct {
	name string
}

// NewServiceKey creates a new service key with the given name.
func NewServiceKey[M Message, R any](name string) ServiceKey[M, R] {
	return ServiceKey[M, R]{name: name}
}

// Name returns the service key's registry name.
func (sk ServiceKey[M, R]) Name() string { return sk.name }

// Spawn registers an actor for this service key within the given
// ActorSystem.
func (sk ServiceKey[M, R]) Spawn(as *ActorSystem, id string,
	behavior Behavior[M, R], opts ...RegisterOption) ActorRef[M, R] {

	return RegisterWithSystem(as, id, sk, behavior, opts...)
}

// RouterOption is a functional option for configuring a router.
type RouterOption[M Message, R any] func(*routerConfig[M, R])

type routerConfig[M Message, R any] struct {
	strategy RoutingStrategy[M, R]
}

// WithStrategy specifies a custom routing strategy for the router.
func WithStrategy[M Message, R any](strategy RoutingStrategy[M, R]) RouterOption[M, R] {
	return func(cfg *routerConfig[M, R]) {
		cfg.strategy = strategy
	}
}

// Ref returns a virtual ActorRef (Router) that load-balances across all
// actors registered under this service key. Defaults to round-robin.
func (sk ServiceKey[M, R]) Ref(sys SystemContext,
	opts ...RouterOption[M, R]) ActorRef[M, R] {

	cfg := &routerConfig[M, R]{strategy: NewRoundRobinStrategy[M, R]()}
	for _, opt := range opts {
		opt(cfg)
	}

	return NewRouter(sys.Receptionist(), sk, cfg.strategy, sys.DeadLetters())
}

// Broadcast sends a message to every actor registered under this service
// key and returns the number reached. Fire-and-forget; no delivery
// guarantee.
func (sk ServiceKey[M, R]) Broadcast(sys SystemContext, ctx context.Context,
	msg M) int {

	refs := FindInReceptionist(sys.Receptionist(), sk)
	for _, ref := range refs {
		ref.Tell(ctx, msg)
	}

	return len(refs)
}

// Unregister removes a single actor reference from this service key's
// registrations. The actor itself keeps running.
func (sk ServiceKey[M, R]) Unregister(sys SystemContext,
	refToRemove ActorRef[M, R]) bool {

	return UnregisterFromReceptionist(sys.Receptionist(), sk, refToRemove)
}

// UnregisterAll removes every actor reference registered under this
// service key and returns how many were removed.
func (sk ServiceKey[M, R]) UnregisterAll(sys SystemContext) int {
	r := sys.Receptionist()

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.registrations[sk.name]
	if !exists {
		return 0
	}

	newRefs := make([]BaseActorRef, 0, len(current))
	removed := 0
	for _, item := range current {
		if _, ok := item.(ActorRef[M, R]); ok {
			removed++
		} else {
			newRefs = append(newRefs, item)
		}
	}

	if removed == 0 {
		return 0
	}

	if len(newRefs) == 0 {
		delete(r.registrations, sk.name)
		delete(r.typeRegistry, sk.name)
	} else {
		r.registrations[sk.name] = newRefs
	}

	return removed
}

// serviceTypeInfo captures the type signature of a service for validation.
type serviceTypeInfo struct {
	msgTypeName  string
	respTypeName string
}

// Receptionist provides service discovery for actors. Actors are
// registered under a ServiceKey and later discovered by other components.
type Receptionist struct {
	registrations map[string][]BaseActorRef
	typeRegistry  map[string]serviceTypeInfo
	mu            sync.RWMutex
}

func newReceptionist() *Receptionist {
	return &Receptionist{
		registrations: make(map[string][]BaseActorRef),
		typeRegistry:  make(map[string]serviceTypeInfo),
	}
}

// RegisterWithReceptionist registers an actor with a service key in the
// given receptionist, validating that the key's name is not already bound
// to a different message/response type.
func RegisterWithReceptionist[M Message, R any](
	r *Receptionist, key ServiceKey[M, R], ref ActorRef[M, R]) error {

	r.mu.Lock()
	defer r.mu.Unlock()

	msgTypeName := reflect.TypeOf((*M)(nil)).Elem().String()
	respTypeName := reflect.TypeOf((*R)(nil)).Elem().String()

	expected := serviceTypeInfo{msgTypeName, respTypeName}

	if existing, exists := r.typeRegistry[key.name]; exists {
		if existing != expected {
			return fmt.Errorf("%w: service %q already registered "+
				"with types (%s, %s), cannot register with "+
				"(%s, %s)", ErrServiceKeyTypeMismatch, key.name,
				existing.msgTypeName, existing.respTypeName,
				msgTypeName, respTypeName)
		}
	} else {
		r.typeRegistry[key.name] = expected
	}

	if _, exists := r.registrations[key.name]; !exists {
		r.registrations[key.name] = make([]BaseActorRef, 0)
	}

	r.registrations[key.name] = append(r.registrations[key.name], ref)

	return nil
}

// FindInReceptionist returns all actors registered with a service key in
// the given receptionist.
func FindInReceptionist[M Message, R any](
	r *Receptionist, key ServiceKey[M, R]) []ActorRef[M, R] {

	r.mu.RLock()
	defer r.mu.RUnlock()

	baseRefs, exists := r.registrations[key.name]
	if !exists {
		return nil
	}

	typed := make([]ActorRef[M, R], 0, len(baseRefs))
	for _, baseRef := range baseRefs {
		if t, ok := baseRef.(ActorRef[M, R]); ok {
			typed = append(typed, t)
		}
	}

	return typed
}
