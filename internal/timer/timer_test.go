package timer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/persistence"
	"github.com/roasbeef/holon/internal/timer"
	"github.com/stretchr/testify/require"
)

type pingMsg struct {
	actor.BaseMessage
	N int
}

func (pingMsg) MessageType() string { return "ping" }

type recorder struct {
	mu  sync.Mutex
	got []int
}

func (r *recorder) record(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.got...)
}

type recorderBehavior struct{ rec *recorder }

func (b recorderBehavior) HandleCall(context.Context, pingMsg) (struct{}, error) {
	return struct{}{}, nil
}

func (b recorderBehavior) HandleCast(_ context.Context, msg pingMsg) error {
	b.rec.record(msg.N)
	return nil
}

var recKey = actor.NewServiceKey[pingMsg, struct{}]("recorder")

func TestScheduleFiresAfterDelay(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	rec := &recorder{}
	ref := recKey.Spawn(sys, "recorder-1", recorderBehavior{rec: rec})

	store := persistence.NewMemoryAdapter()
	svc, err := timer.Start(context.Background(), sys, timer.Config{
		Storage:      store,
		TickInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer svc.Close()

	id, err := timer.Schedule(context.Background(), svc, "", ref,
		pingMsg{N: 1}, 20*time.Millisecond, nil)
	require.NoError(t, err)
	require.Equal(t, "recorder-1", id)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []int{1}, rec.snapshot())

	_, err = svc.Get(context.Background(), id)
	require.ErrorIs(t, err, timer.ErrNotFound)
}

func TestCancelPreventsFiring(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	rec := &recorder{}
	ref := recKey.Spawn(sys, "recorder-2", recorderBehavior{rec: rec})

	store := persistence.NewMemoryAdapter()
	svc, err := timer.Start(context.Background(), sys, timer.Config{
		Storage:      store,
		TickInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer svc.Close()

	id, err := timer.Schedule(context.Background(), svc, "cancel-me", ref,
		pingMsg{N: 1}, 50*time.Millisecond, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), id))
	require.ErrorIs(t, svc.Cancel(context.Background(), id), timer.ErrNotFound)

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, rec.snapshot())
}

func TestRepeatingTimerFiresMultipleTimes(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	rec := &recorder{}
	ref := recKey.Spawn(sys, "recorder-3", recorderBehavior{rec: rec})

	store := persistence.NewMemoryAdapter()
	svc, err := timer.Start(context.Background(), sys, timer.Config{
		Storage:      store,
		TickInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer svc.Close()

	repeat := 20 * time.Millisecond
	_, err = timer.Schedule(context.Background(), svc, "repeater", ref,
		pingMsg{N: 7}, 15*time.Millisecond, &repeat)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 3
	}, time.Second, 5*time.Millisecond)

	for _, n := range rec.snapshot() {
		require.Equal(t, 7, n)
	}

	require.NoError(t, svc.Cancel(context.Background(), "repeater"))
}

// TestRehydrationDeliversMissedFire simulates a process restart: the first
// Service is closed before its hourly tick ever fired the entry, and a second
// Service over the same storage rehydrates the pending entry and clamps
// its already-past FireAtMs to fire on its very first tick instead of
// dropping it.
func TestRehydrationDeliversMissedFire(t *testing.T) {
	store := persistence.NewMemoryAdapter()

	sysA := actor.NewActorSystem()
	recA := &recorder{}
	refA := recKey.Spawn(sysA, "recorder-durable", recorderBehavior{rec: recA})

	svcA, err := timer.Start(context.Background(), sysA, timer.Config{
		Storage:      store,
		TickInterval: time.Hour,
	})
	require.NoError(t, err)

	_, err = timer.Schedule(context.Background(), svcA, "durable", refA,
		pingMsg{N: 9}, time.Millisecond, nil)
	require.NoError(t, err)

	// Torn down before its own tick loop (1h) ever fires it.
	svcA.Close()
	require.NoError(t, sysA.Shutdown(context.Background()))
	require.Empty(t, recA.snapshot())

	sysB := actor.NewActorSystem()
	defer sysB.Shutdown(context.Background())
	recB := &recorder{}
	refB := recKey.Spawn(sysB, "recorder-durable", recorderBehavior{rec: recB})

	svcB, err := timer.Start(context.Background(), sysB, timer.Config{
		Storage:      store,
		TickInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer svcB.Close()

	// Pre-registered against svcB before its rehydrated entry's first tick,
	// the same way a real restart path would re-register a target right
	// after restoring it from its own persisted state.
	timer.RegisterTarget[pingMsg](svcB, refB)

	require.Eventually(t, func() bool {
		return len(recB.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []int{9}, recB.snapshot())
}
