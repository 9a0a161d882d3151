package supervisor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/supervisor"
	"github.com/stretchr/testify/require"
)

type workMsg struct {
	actor.BaseMessage
}

func (workMsg) MessageType() string { return "workMsg" }

type crashOnFirstCall struct {
	fired *atomic.Bool
}

func (b *crashOnFirstCall) HandleCall(context.Context, workMsg) (int, error) {
	if !b.fired.Swap(true) {
		panic("first call always crashes")
	}
	return 1, nil
}

func (b *crashOnFirstCall) HandleCast(context.Context, workMsg) error { return nil }

func newWorkerSpec(
	id string, sys *actor.ActorSystem, fired *atomic.Bool,
) supervisor.ChildSpec {

	key := actor.NewServiceKey[workMsg, int](id)
	return supervisor.ActorChild(
		id, supervisor.Permanent, false, sys, key,
		func() actor.Behavior[workMsg, int] {
			return &crashOnFirstCall{fired: fired}
		},
	)
}

func TestOneForOneRestartsFailedChild(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	var fired atomic.Bool
	spec := newWorkerSpec("worker-a", sys, &fired)

	sup, err := supervisor.Start(context.Background(), supervisor.Config{
		Strategy:  supervisor.OneForOne,
		Intensity: supervisor.DefaultRestartIntensity,
		Children:  []supervisor.ChildSpec{spec},
	}, nil)
	require.NoError(t, err)
	defer sup.Stop(context.Background())

	key := actor.NewServiceKey[workMsg, int]("worker-a")

	require.Eventually(t, func() bool {
		refs := actor.FindInReceptionist(sys.Receptionist(), key)
		if len(refs) != 1 {
			return false
		}

		_, err := refs[0].Call(context.Background(), workMsg{}, time.Second)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

type flakyBehavior struct {
	mu      sync.Mutex
	started int
}

func (b *flakyBehavior) Init(context.Context) error {
	b.mu.Lock()
	b.started++
	b.mu.Unlock()

	return nil
}

func (b *flakyBehavior) HandleCall(context.Context, workMsg) (int, error) {
	panic("always crashes")
}

func (b *flakyBehavior) HandleCast(context.Context, workMsg) error { return nil }

func (b *flakyBehavior) startCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func TestRestartIntensityTripsFatal(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	b := &flakyBehavior{}
	key := actor.NewServiceKey[workMsg, int]("flaky")
	spec := supervisor.ActorChild(
		"flaky", supervisor.Permanent, false, sys, key,
		func() actor.Behavior[workMsg, int] { return b },
	)

	var (
		mu       sync.Mutex
		fatalErr error
		done     = make(chan struct{})
	)

	sup, err := supervisor.Start(context.Background(), supervisor.Config{
		Strategy: supervisor.OneForOne,
		Intensity: supervisor.RestartIntensity{
			Max: 2, Within: time.Minute,
		},
		Children: []supervisor.ChildSpec{spec},
	}, func(err error) {
		mu.Lock()
		fatalErr = err
		mu.Unlock()
		close(done)
	})
	require.NoError(t, err)
	defer sup.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-done:
			mu.Lock()
			err := fatalErr
			mu.Unlock()
			require.ErrorIs(t, err, supervisor.ErrMaxRestartsExceeded)
			return
		default:
		}

		refs := actor.FindInReceptionist(sys.Receptionist(), key)
		if len(refs) == 1 {
			_, _ = refs[0].Call(context.Background(), workMsg{}, time.Second)
		}

		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	default:
		t.Fatal("expected supervisor to report a fatal restart-intensity error")
	}

	mu.Lock()
	defer mu.Unlock()
	require.ErrorIs(t, fatalErr, supervisor.ErrMaxRestartsExceeded)
}

type pingMsg struct {
	actor.BaseMessage
}

func (pingMsg) MessageType() string { return "pingMsg" }

type countingBehavior struct {
	starts *atomic.Int32
}

func (b *countingBehavior) Init(context.Context) error {
	b.starts.Add(1)
	return nil
}

func (b *countingBehavior) HandleCall(context.Context, pingMsg) (int, error) {
	return 0, nil
}

func (b *countingBehavior) HandleCast(context.Context, pingMsg) error { return nil }

type crashingOnceBehavior struct {
	starts *atomic.Int32
	fired  atomic.Bool
}

func (b *crashingOnceBehavior) Init(context.Context) error {
	b.starts.Add(1)
	return nil
}

func (b *crashingOnceBehavior) HandleCall(context.Context, pingMsg) (int, error) {
	if !b.fired.Swap(true) {
		panic("boom once")
	}
	return 0, nil
}

func (b *crashingOnceBehavior) HandleCast(context.Context, pingMsg) error { return nil }

func TestRestForOneRestartsFailedAndLaterSiblings(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	var startsA, startsB, startsC atomic.Int32

	keyA := actor.NewServiceKey[pingMsg, int]("rfo-a")
	keyB := actor.NewServiceKey[pingMsg, int]("rfo-b")
	keyC := actor.NewServiceKey[pingMsg, int]("rfo-c")

	specA := supervisor.ActorChild(
		"rfo-a", supervisor.Permanent, false, sys, keyA,
		func() actor.Behavior[pingMsg, int] {
			return &countingBehavior{starts: &startsA}
		},
	)
	specB := supervisor.ActorChild(
		"rfo-b", supervisor.Permanent, false, sys, keyB,
		func() actor.Behavior[pingMsg, int] {
			return &crashingOnceBehavior{starts: &startsB}
		},
	)
	specC := supervisor.ActorChild(
		"rfo-c", supervisor.Permanent, false, sys, keyC,
		func() actor.Behavior[pingMsg, int] {
			return &countingBehavior{starts: &startsC}
		},
	)

	sup, err := supervisor.Start(context.Background(), supervisor.Config{
		Strategy:  supervisor.RestForOne,
		Intensity: supervisor.DefaultRestartIntensity,
		Children:  []supervisor.ChildSpec{specA, specB, specC},
	}, nil)
	require.NoError(t, err)
	defer sup.Stop(context.Background())

	require.EqualValues(t, 1, startsA.Load())
	require.EqualValues(t, 1, startsB.Load())
	require.EqualValues(t, 1, startsC.Load())

	refsB := actor.FindInReceptionist(sys.Receptionist(), keyB)
	require.Len(t, refsB, 1)
	_, _ = refsB[0].Call(context.Background(), pingMsg{}, time.Second)

	require.Eventually(t, func() bool {
		return startsC.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.EqualValues(t, 1, startsA.Load(),
		"a child started before the failed one must not restart")
	require.EqualValues(t, 2, startsB.Load())
}
