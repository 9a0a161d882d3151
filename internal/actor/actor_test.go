package actor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/stretchr/testify/require"
)

type counterMsg struct {
	actor.BaseMessage
	delta int
}

func (counterMsg) MessageType() string { return "counterMsg" }

type counterBehavior struct {
	mu    sync.Mutex
	total int
}

func (b *counterBehavior) HandleCall(_ context.Context, msg counterMsg) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += msg.delta
	return b.total, nil
}

func (b *counterBehavior) HandleCast(_ context.Context, msg counterMsg) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += msg.delta
	return nil
}

func TestActorFIFOOrdering(t *testing.T) {
	system := actor.NewActorSystem()
	defer system.Shutdown(context.Background())

	key := actor.NewServiceKey[counterMsg, int]("counter")
	ref := key.Spawn(system, "counter-1", &counterBehavior{})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		ref.Tell(ctx, counterMsg{delta: 1})
	}

	// A call after ten casts must observe all ten, because the mailbox
	// is FIFO per sender and the actor never runs two handlers at once.
	total, err := ref.Call(ctx, counterMsg{delta: 0}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 10, total)
}

type panicBehavior struct{}

func (panicBehavior) HandleCall(_ context.Context, _ counterMsg) (int, error) {
	panic("boom")
}

func (panicBehavior) HandleCast(_ context.Context, _ counterMsg) error {
	return nil
}

func TestActorPanicRecoveryDoesNotCrashProcess(t *testing.T) {
	system := actor.NewActorSystem()
	defer system.Shutdown(context.Background())

	var (
		mu      sync.Mutex
		crashed bool
		wg      sync.WaitGroup
	)
	wg.Add(1)

	unsubscribe := system.Subscribe(func(ev actor.LifecycleEvent) {
		if c, ok := ev.(actor.Crashed); ok && c.ActorID() == "panicker" {
			mu.Lock()
			crashed = true
			mu.Unlock()
			wg.Done()
		}
	})
	defer unsubscribe()

	key := actor.NewServiceKey[counterMsg, int]("panicker-key")
	ref := key.Spawn(system, "panicker", panicBehavior{})

	_, err := ref.Call(context.Background(), counterMsg{delta: 1}, time.Second)
	require.Error(t, err)

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, crashed)
}

type initFailBehavior struct{}

func (initFailBehavior) Init(context.Context) error {
	return errors.New("init boom")
}

func (initFailBehavior) HandleCall(_ context.Context, _ counterMsg) (int, error) {
	return 0, nil
}

func (initFailBehavior) HandleCast(_ context.Context, _ counterMsg) error {
	return nil
}

func TestStartActorInitFailureLeavesNoHandle(t *testing.T) {
	system := actor.NewActorSystem()
	defer system.Shutdown(context.Background())

	key := actor.NewServiceKey[counterMsg, int]("init-fail-key")
	ref := key.Spawn(system, "init-fail", initFailBehavior{})

	// Spawn returns a stopped ref on Init failure rather than panicking.
	_, err := ref.Call(context.Background(), counterMsg{delta: 1}, time.Second)
	require.ErrorIs(t, err, actor.ErrActorTerminated)

	refs := actor.FindInReceptionist(system.Receptionist(), key)
	require.Empty(t, refs)
}
