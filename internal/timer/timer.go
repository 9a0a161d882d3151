// Package timer implements durable scheduled casts: a message to a
// TellOnlyRef that fires once (or on a repeating interval) after a delay,
// surviving a process restart by persisting pending entries through
// internal/persistence and re-delivering anything that would have fired
// while the process was down.
package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/actor"
	"github.com/roasbeef/holon/internal/persistence"
)

// ErrNotFound is returned by Cancel and Get when no timer with the given ID
// is currently scheduled.
var ErrNotFound = errors.New("timer: not found")

// keyPrefix namespaces every timer's persisted key so Init's rehydration
// scan (persistence.StorageAdapter.ListKeys) never picks up unrelated
// state sharing the same adapter.
const keyPrefix = "timer/"

// TimerEntry is the persisted record for one scheduled delivery. Every
// field is exported because cbor's struct codec, like encoding/json,
// reflects over exported fields only.
type TimerEntry struct {
	ID       string
	TargetID string
	Payload  []byte
	FireAtMs int64
	RepeatMs int64
}

func (e TimerEntry) key() string { return keyPrefix + e.ID }

type opKind int

const (
	opSchedule opKind = iota
	opCancel
	opGet
	opGetAll
	opTick
)

// timerMsg is the single message type the timer's internal actor handles;
// op discriminates what the caller wants. It never crosses the wire or a
// persistence boundary, so its fields don't need to be exported.
type timerMsg struct {
	actor.BaseMessage

	op      opKind
	entry   TimerEntry
	timerID string
}

func (timerMsg) MessageType() string { return "timer.op" }

// timerReply is the response to every HandleCall op; only the fields
// relevant to the op that produced it are meaningful.
type timerReply struct {
	entry   TimerEntry
	entries []TimerEntry
	found   bool
	err     error
}

var serviceKey = actor.NewServiceKey[timerMsg, timerReply]("timer.service")

// Service is a durably scheduled-cast facility: Schedule registers a
// one-shot or repeating delivery, backed by an actor that persists pending
// entries and fires them off a ticker.
type Service struct {
	ref      actor.ActorRef[timerMsg, timerReply]
	sys      *actor.ActorSystem
	id       string
	interval time.Duration
	stopTick context.CancelFunc
	targets  *targetRegistry
}

// Config configures a Service.
type Config struct {
	// ID is this service's actor ID (default "timer"). It does not enter
	// the persisted keys: every Service stores its entries under the same
	// "timer/" prefix.
	ID string

	// Storage persists pending entries across restarts. Required.
	Storage persistence.StorageAdapter

	// TickInterval is how often due entries are scanned for delivery.
	// Defaults to one second.
	TickInterval time.Duration
}

// Start creates and registers a timer Service within sys. Any entries
// previously persisted under Storage are rehydrated immediately, with
// entries whose fire time has already passed clamped to fire on the very
// first tick rather than being dropped.
func Start(ctx context.Context, sys *actor.ActorSystem, cfg Config) (*Service, error) {
	if cfg.Storage == nil {
		return nil, errors.New("timer: Storage is required")
	}
	id := cfg.ID
	if id == "" {
		id = "timer"
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}

	targets := newTargetRegistry()

	b := &timerBehavior{
		storage:  cfg.Storage,
		interval: interval,
		entries:  make(map[string]TimerEntry),
		targets:  targets,
	}

	ref := serviceKey.Spawn(sys, id, b)

	tickCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		ref: ref, sys: sys, id: id, interval: interval,
		stopTick: cancel, targets: targets,
	}
	go s.tickLoop(tickCtx)

	return s, nil
}

// tickLoop casts opTick to the service's actor on a fixed interval. The tick
// itself carries no data; fireDue does its own due-entry scan against
// wall-clock time when it runs.
func (s *Service) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ref.Tell(ctx, timerMsg{op: opTick})
		}
	}
}

// Schedule arranges for message to be delivered to target after delay, and
// every repeat thereafter if repeat is non-nil. target is registered with
// RegisterTarget automatically, so a later rehydration of this same entry
// (after a process restart that re-creates and re-registers target under
// the same ID) resolves correctly. Returns the timer's ID, which defaults
// to target's ID, so a later unnamed Schedule against the same target
// replaces this entry; pass a non-empty id to name it explicitly and make
// it cancellable across restarts by that name.
func Schedule[M actor.Message](ctx context.Context, s *Service, id string,
	target actor.TellOnlyRef[M], message M, delay time.Duration,
	repeat *time.Duration) (string, error) {

	RegisterTarget[M](s, target)

	if id == "" {
		id = target.ID()
	}

	payload, err := cbor.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("timer: encoding payload: %w", err)
	}

	entry := TimerEntry{
		ID:       id,
		TargetID: target.ID(),
		Payload:  payload,
		FireAtMs: nowMs() + delay.Milliseconds(),
	}
	if repeat != nil {
		entry.RepeatMs = repeat.Milliseconds()
	}

	reply, err := s.ref.Call(ctx, timerMsg{op: opSchedule, entry: entry}, 0)
	if err != nil {
		return "", err
	}
	return reply.entry.ID, reply.err
}

// Cancel removes a pending timer. Returns ErrNotFound if id isn't
// currently scheduled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	reply, err := s.ref.Call(ctx, timerMsg{op: opCancel, timerID: id}, 0)
	if err != nil {
		return err
	}
	if !reply.found {
		return ErrNotFound
	}
	return nil
}

// Get returns the current state of one pending timer.
func (s *Service) Get(ctx context.Context, id string) (TimerEntry, error) {
	reply, err := s.ref.Call(ctx, timerMsg{op: opGet, timerID: id}, 0)
	if err != nil {
		return TimerEntry{}, err
	}
	if !reply.found {
		return TimerEntry{}, ErrNotFound
	}
	return reply.entry, nil
}

// GetAll returns every pending timer.
func (s *Service) GetAll(ctx context.Context) ([]TimerEntry, error) {
	reply, err := s.ref.Call(ctx, timerMsg{op: opGetAll}, 0)
	if err != nil {
		return nil, err
	}
	return reply.entries, nil
}

// Close stops the service's tick loop and its underlying actor.
func (s *Service) Close() {
	s.stopTick()
	s.sys.StopAndRemoveActor(s.id)
}

func nowMs() int64 { return time.Now().UnixMilli() }
