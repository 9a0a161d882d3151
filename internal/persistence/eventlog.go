package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roasbeef/holon/internal/persistence/sqlc"
)

// Event is a single durably appended record within a stream.
type Event struct {
	Seq        int64
	Stream     string
	Payload    []byte
	RecordedAt time.Time
}

// EventLogAdapter is an append-only, per-stream durability layer used by
// components that replay history rather than overwrite state wholesale
// (e.g. a durable timer's fire log, or cluster membership's gossip audit
// trail).
type EventLogAdapter interface {
	Append(ctx context.Context, stream string, payload []byte) (seq int64, err error)
	Read(ctx context.Context, stream string) ([]Event, error)
	ReadAfter(ctx context.Context, stream string, afterSeq int64) ([]Event, error)
	GetLastSeq(ctx context.Context, stream string) (int64, error)
	TruncateBefore(ctx context.Context, stream string, beforeSeq int64) error
	ListStreams(ctx context.Context) ([]StreamSummary, error)
}

// StreamSummary describes one stream's current extent.
type StreamSummary struct {
	Stream   string
	LastSeq  int64
	RowCount int64
}

// SQLEventLog is an EventLogAdapter backed by the event_log table.
type SQLEventLog struct {
	store *Store
}

// NewSQLEventLog constructs a SQLEventLog over an already-migrated Store.
func NewSQLEventLog(store *Store) *SQLEventLog {
	return &SQLEventLog{store: store}
}

func (e *SQLEventLog) Append(ctx context.Context, stream string,
	payload []byte) (int64, error) {

	return WithTxResult(e.store, ctx,
		func(ctx context.Context, q *sqlc.Queries) (int64, error) {
			return q.AppendEvent(ctx, sqlc.AppendEventParams{
				Stream:         stream,
				Payload:        payload,
				RecordedAtUnix: time.Now().Unix(),
			})
		})
}

func (e *SQLEventLog) Read(ctx context.Context, stream string) ([]Event, error) {
	rows, err := WithReadTxResult(e.store, ctx,
		func(ctx context.Context, q *sqlc.Queries) ([]sqlc.EventLogRow, error) {
			return q.GetEventsByStream(ctx, stream)
		})
	if err != nil {
		return nil, err
	}

	return toEvents(rows), nil
}

func (e *SQLEventLog) ReadAfter(ctx context.Context, stream string,
	afterSeq int64) ([]Event, error) {

	rows, err := WithReadTxResult(e.store, ctx,
		func(ctx context.Context, q *sqlc.Queries) ([]sqlc.EventLogRow, error) {
			return q.GetEventsByStreamAfter(ctx, stream, afterSeq)
		})
	if err != nil {
		return nil, err
	}

	return toEvents(rows), nil
}

func (e *SQLEventLog) GetLastSeq(ctx context.Context, stream string) (int64, error) {
	return WithReadTxResult(e.store, ctx,
		func(ctx context.Context, q *sqlc.Queries) (int64, error) {
			return q.GetLastSeq(ctx, stream)
		})
}

func (e *SQLEventLog) TruncateBefore(ctx context.Context, stream string,
	beforeSeq int64) error {

	return e.store.WithTx(ctx, func(ctx context.Context, q *sqlc.Queries) error {
		return q.TruncateStreamBefore(ctx, stream, beforeSeq)
	})
}

func (e *SQLEventLog) ListStreams(ctx context.Context) ([]StreamSummary, error) {
	rows, err := WithReadTxResult(e.store, ctx,
		func(ctx context.Context, q *sqlc.Queries) ([]sqlc.ListStreamsRow, error) {
			return q.ListStreams(ctx)
		})
	if err != nil {
		return nil, err
	}

	out := make([]StreamSummary, len(rows))
	for i, r := range rows {
		out[i] = StreamSummary{
			Stream: r.Stream, LastSeq: r.LastSeq, RowCount: r.RowCount,
		}
	}

	return out, nil
}

func toEvents(rows []sqlc.EventLogRow) []Event {
	out := make([]Event, len(rows))
	for i, r := range rows {
		out[i] = Event{
			Seq:        r.Seq,
			Stream:     r.Stream,
			Payload:    r.Payload,
			RecordedAt: time.Unix(r.RecordedAtUnix, 0),
		}
	}
	return out
}

// MemoryEventLog is an in-process EventLogAdapter, intended for tests and
// ephemeral components.
type MemoryEventLog struct {
	mu      sync.Mutex
	streams map[string][]Event
	nextSeq int64
}

// NewMemoryEventLog constructs an empty MemoryEventLog.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{streams: make(map[string][]Event)}
}

func (m *MemoryEventLog) Append(_ context.Context, stream string,
	payload []byte) (int64, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	ev := Event{
		Seq: m.nextSeq, Stream: stream,
		Payload: append([]byte(nil), payload...), RecordedAt: time.Now(),
	}
	m.streams[stream] = append(m.streams[stream], ev)

	return ev.Seq, nil
}

func (m *MemoryEventLog) Read(_ context.Context, stream string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]Event(nil), m.streams[stream]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })

	return out, nil
}

func (m *MemoryEventLog) ReadAfter(ctx context.Context, stream string,
	afterSeq int64) ([]Event, error) {

	all, _ := m.Read(ctx, stream)

	var out []Event
	for _, ev := range all {
		if ev.Seq > afterSeq {
			out = append(out, ev)
		}
	}

	return out, nil
}

func (m *MemoryEventLog) GetLastSeq(_ context.Context, stream string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var max int64
	for _, ev := range m.streams[stream] {
		if ev.Seq > max {
			max = ev.Seq
		}
	}

	return max, nil
}

func (m *MemoryEventLog) TruncateBefore(_ context.Context, stream string,
	beforeSeq int64) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.streams[stream][:0]
	for _, ev := range m.streams[stream] {
		if ev.Seq >= beforeSeq {
			kept = append(kept, ev)
		}
	}
	m.streams[stream] = kept

	return nil
}

func (m *MemoryEventLog) ListStreams(_ context.Context) ([]StreamSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StreamSummary, 0, len(m.streams))
	for stream, events := range m.streams {
		var max int64
		for _, ev := range events {
			if ev.Seq > max {
				max = ev.Seq
			}
		}
		out = append(out, StreamSummary{
			Stream: stream, LastSeq: max, RowCount: int64(len(events)),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })

	return out, nil
}
