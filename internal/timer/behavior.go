package timer

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/roasbeef/holon/internal/persistence"
)

// schemaVersion is the on-disk format version for a persisted TimerEntry.
const schemaVersion = 1

// timerBehavior holds every pending entry in memory, mirrored to storage
// on every schedule/cancel/fire so a restart can rehydrate from Init. The
// tick loop (driven externally via opTick casts, see Start) scans entries
// for anything due and delivers it through the owning Service's target
// registry.
type timerBehavior struct {
	storage  persistence.StorageAdapter
	interval time.Duration
	entries  map[string]TimerEntry
	targets  *targetRegistry
}

// Init rehydrates every previously persisted entry. Anything whose
// FireAtMs has already passed is clamped to fire on the very next tick
// rather than dropped or requiring special-case handling in fireDue.
func (b *timerBehavior) Init(ctx context.Context) error {
	keys, err := b.storage.ListKeys(ctx, keyPrefix)
	if err != nil {
		return err
	}

	now := nowMs()
	for _, key := range keys {
		data, _, err := b.storage.Load(ctx, key)
		if err != nil {
			log.Warnf("timer: loading %s during rehydration: %v", key, err)
			continue
		}

		var entry TimerEntry
		if err := cbor.Unmarshal(data, &entry); err != nil {
			log.Warnf("timer: decoding %s during rehydration: %v", key, err)
			continue
		}

		if entry.FireAtMs < now {
			entry.FireAtMs = now
		}
		b.entries[entry.ID] = entry
	}

	log.Infof("timer: rehydrated %d pending entries", len(b.entries))

	return nil
}

func (b *timerBehavior) HandleCall(ctx context.Context, msg timerMsg) (timerReply, error) {
	switch msg.op {
	case opSchedule:
		if err := b.persist(ctx, msg.entry); err != nil {
			return timerReply{err: err}, nil
		}
		b.entries[msg.entry.ID] = msg.entry
		return timerReply{entry: msg.entry}, nil

	case opCancel:
		entry, ok := b.entries[msg.timerID]
		if !ok {
			return timerReply{found: false}, nil
		}
		if err := b.storage.Delete(ctx, entry.key()); err != nil {
			return timerReply{err: err}, nil
		}
		delete(b.entries, msg.timerID)
		return timerReply{found: true}, nil

	case opGet:
		entry, ok := b.entries[msg.timerID]
		return timerReply{entry: entry, found: ok}, nil

	case opGetAll:
		entries := make([]TimerEntry, 0, len(b.entries))
		for _, e := range b.entries {
			entries = append(entries, e)
		}
		return timerReply{entries: entries}, nil

	default:
		return timerReply{}, nil
	}
}

func (b *timerBehavior) HandleCast(ctx context.Context, msg timerMsg) error {
	if msg.op != opTick {
		return nil
	}
	b.fireDue(ctx)
	return nil
}

// fireDue delivers every entry whose FireAtMs is due, re-scheduling
// repeating entries for their next occurrence and removing one-shot
// entries once delivered.
func (b *timerBehavior) fireDue(ctx context.Context) {
	now := nowMs()

	for id, entry := range b.entries {
		if entry.FireAtMs > now {
			continue
		}

		deliver, ok := b.targets.resolve(entry.TargetID)
		if !ok {
			log.Warnf("timer: %s: target %s not registered, skipping delivery", id, entry.TargetID)
			continue
		}
		if err := deliver(ctx, entry.Payload); err != nil {
			log.Errorf("timer: %s: delivering to %s: %v", id, entry.TargetID, err)
		}

		if entry.RepeatMs <= 0 {
			if err := b.storage.Delete(ctx, entry.key()); err != nil {
				log.Warnf("timer: %s: removing fired entry: %v", id, err)
			}
			delete(b.entries, id)
			continue
		}

		entry.FireAtMs = now + entry.RepeatMs
		if err := b.persist(ctx, entry); err != nil {
			log.Warnf("timer: %s: persisting next occurrence: %v", id, err)
		}
		b.entries[id] = entry
	}
}

func (b *timerBehavior) persist(ctx context.Context, entry TimerEntry) error {
	data, err := cbor.Marshal(entry)
	if err != nil {
		return err
	}
	return b.storage.Save(ctx, entry.key(), data, schemaVersion)
}
