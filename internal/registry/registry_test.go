package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/registry"
	"github.com/stretchr/testify/require"
)

type pingMsg struct {
	actor.BaseMessage
}

func (pingMsg) MessageType() string { return "pingMsg" }

type pingBehavior struct{}

func (pingBehavior) HandleCall(context.Context, pingMsg) (string, error) {
	return "pong", nil
}

func (pingBehavior) HandleCast(context.Context, pingMsg) error { return nil }

func TestRegisterLookupUnregister(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	reg := registry.NewRegistry(sys)

	key := actor.NewServiceKey[pingMsg, string]("ping")
	ref := key.Spawn(sys, "pinger-1", pingBehavior{})

	require.NoError(t, reg.Register("pinger", ref))
	require.ErrorIs(t, reg.Register("pinger", ref), registry.ErrAlreadyRegistered)

	got, err := reg.Lookup("pinger")
	require.NoError(t, err)
	require.Equal(t, ref.ID(), got.ID())

	require.True(t, reg.Unregister("pinger"))
	require.False(t, reg.Unregister("pinger"))

	_, err = reg.Lookup("pinger")
	require.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestRegistryCleansUpOnTermination(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	reg := registry.NewRegistry(sys)

	key := actor.NewServiceKey[pingMsg, string]("ping-term")
	ref := key.Spawn(sys, "pinger-term", pingBehavior{})

	require.NoError(t, reg.Register("pinger-term", ref))

	sys.StopAndRemoveActor(ref.ID())

	require.Eventually(t, func() bool {
		return !reg.IsRegistered("pinger-term")
	}, time.Second, 5*time.Millisecond)
}

// TestRegistryCleanupPrecedesAsyncSubscriber pits the Registry's
// SubscribeSync-based cleanup against a competing, ordinary Subscribe
// observer of the same hub - the shape cmd/clusterd actually wires, where
// a *registry.Registry and a supervisor/remote monitor share one
// *actor.ActorSystem. It asserts the name binding is already gone the
// instant the async observer's callback runs, not eventually: that
// ordering is now structural (SubscribeSync runs before the event ever
// reaches an async subscriber's channel), so there is nothing to retry.
func TestRegistryCleanupPrecedesAsyncSubscriber(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	reg := registry.NewRegistry(sys)

	key := actor.NewServiceKey[pingMsg, string]("ping-race")
	ref := key.Spawn(sys, "pinger-race", pingBehavior{})

	require.NoError(t, reg.Register("pinger-race", ref))

	observed := make(chan bool, 1)
	unsub := sys.Subscribe(func(ev actor.LifecycleEvent) {
		if ev.ActorID() != ref.ID() {
			return
		}
		switch ev.(type) {
		case actor.Terminated, actor.Crashed:
			observed <- reg.IsRegistered("pinger-race")
		}
	})
	defer unsub()

	sys.StopAndRemoveActor(ref.ID())

	select {
	case stillRegistered := <-observed:
		require.False(t, stillRegistered)
	case <-time.After(time.Second):
		t.Fatal("async subscriber never observed the termination event")
	}
}
