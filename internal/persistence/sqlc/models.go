// Package sqlc holds the hand-written, sqlc-shaped query layer for the
// persistence package: a Querier interface plus Params/row structs matching
// sqlc's generated-code conventions, backing the kv_snapshots and event_log
// tables.
package sqlc

// KvSnapshot is a row of the kv_snapshots table: the latest durable state
// blob for one actor/entity key.
type KvSnapshot struct {
	Key           string
	Payload       []byte
	SchemaVersion int64
	UpdatedAtUnix int64
}

// EventLogRow is a row of the event_log table: one durably appended event
// within a named stream.
type EventLogRow struct {
	Seq           int64
	Stream        string
	Payload       []byte
	RecordedAtUnix int64
}

// ListStreamsRow is the result row for ListStreams.
type ListStreamsRow struct {
	Stream   string
	LastSeq  int64
	RowCount int64
}
