package sqlc

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx, matching sqlc's generated
// abstraction over either a pooled connection or a single transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UpsertSnapshotParams are the parameters for UpsertSnapshot.
type UpsertSnapshotParams struct {
	Key           string
	Payload       []byte
	SchemaVersion int64
	UpdatedAtUnix int64
}

// AppendEventParams are the parameters for AppendEvent.
type AppendEventParams struct {
	Stream         string
	Payload        []byte
	RecordedAtUnix int64
}

// Querier is the interface generated for every query defined against the
// persistence schema; BatchedQuerier embeds it so transactional code can
// depend on the narrow subset it actually calls.
type Querier interface {
	UpsertSnapshot(ctx context.Context, arg UpsertSnapshotParams) error
	GetSnapshot(ctx context.Context, key string) (KvSnapshot, error)
	DeleteSnapshot(ctx context.Context, key string) error
	ListSnapshotKeys(ctx context.Context) ([]string, error)

	AppendEvent(ctx context.Context, arg AppendEventParams) (int64, error)
	GetEventsByStream(ctx context.Context, stream string) ([]EventLogRow, error)
	GetEventsByStreamAfter(ctx context.Context, stream string,
		afterSeq int64) ([]EventLogRow, error)
	GetLastSeq(ctx context.Context, stream string) (int64, error)
	TruncateStreamBefore(ctx context.Context, stream string,
		beforeSeq int64) error
	ListStreams(ctx context.Context) ([]ListStreamsRow, error)
}

// Queries is the concrete, sqlc-shaped implementation of Querier, bound to
// either a *sql.DB or a *sql.Tx via DBTX.
type Queries struct {
	db DBTX
}

// New returns a Queries bound to db, matching sqlc's generated constructor.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx, matching sqlc's generated helper
// for running the same query set inside a transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const upsertSnapshotSQL = `
INSERT INTO kv_snapshots (key, payload, schema_version, updated_at_unix)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	payload = excluded.payload,
	schema_version = excluded.schema_version,
	updated_at_unix = excluded.updated_at_unix
`

// UpsertSnapshot inserts or replaces the snapshot row for arg.Key.
func (q *Queries) UpsertSnapshot(ctx context.Context, arg UpsertSnapshotParams) error {
	_, err := q.db.ExecContext(
		ctx, upsertSnapshotSQL,
		arg.Key, arg.Payload, arg.SchemaVersion, arg.UpdatedAtUnix,
	)
	return err
}

const getSnapshotSQL = `
SELECT key, payload, schema_version, updated_at_unix
FROM kv_snapshots
WHERE key = ?
`

// GetSnapshot fetches the current snapshot row for key.
func (q *Queries) GetSnapshot(ctx context.Context, key string) (KvSnapshot, error) {
	row := q.db.QueryRowContext(ctx, getSnapshotSQL, key)

	var s KvSnapshot
	err := row.Scan(&s.Key, &s.Payload, &s.SchemaVersion, &s.UpdatedAtUnix)
	return s, err
}

const deleteSnapshotSQL = `DELETE FROM kv_snapshots WHERE key = ?`

// DeleteSnapshot removes the snapshot row for key, if any.
func (q *Queries) DeleteSnapshot(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteSnapshotSQL, key)
	return err
}

const listSnapshotKeysSQL = `SELECT key FROM kv_snapshots ORDER BY key`

// ListSnapshotKeys returns every key currently holding a snapshot.
func (q *Queries) ListSnapshotKeys(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listSnapshotKeysSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

const appendEventSQL = `
INSERT INTO event_log (stream, payload, recorded_at_unix)
VALUES (?, ?, ?)
`

// AppendEvent appends a new row to the event log and returns its
// monotonically increasing sequence number (the table's rowid).
func (q *Queries) AppendEvent(ctx context.Context, arg AppendEventParams) (int64, error) {
	result, err := q.db.ExecContext(
		ctx, appendEventSQL, arg.Stream, arg.Payload, arg.RecordedAtUnix,
	)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

const getEventsByStreamSQL = `
SELECT seq, stream, payload, recorded_at_unix
FROM event_log
WHERE stream = ?
ORDER BY seq ASC
`

// GetEventsByStream returns every event recorded under stream, oldest first.
func (q *Queries) GetEventsByStream(ctx context.Context,
	stream string) ([]EventLogRow, error) {

	return q.queryEventRows(ctx, getEventsByStreamSQL, stream)
}

const getEventsByStreamAfterSQL = `
SELECT seq, stream, payload, recorded_at_unix
FROM event_log
WHERE stream = ? AND seq > ?
ORDER BY seq ASC
`

// GetEventsByStreamAfter returns every event recorded under stream with a
// sequence number strictly greater than afterSeq, oldest first.
func (q *Queries) GetEventsByStreamAfter(ctx context.Context, stream string,
	afterSeq int64) ([]EventLogRow, error) {

	return q.queryEventRows(ctx, getEventsByStreamAfterSQL, stream, afterSeq)
}

func (q *Queries) queryEventRows(ctx context.Context, query string,
	args ...any) ([]EventLogRow, error) {

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventLogRow
	for rows.Next() {
		var e EventLogRow
		if err := rows.Scan(
			&e.Seq, &e.Stream, &e.Payload, &e.RecordedAtUnix,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

const getLastSeqSQL = `
SELECT COALESCE(MAX(seq), 0) FROM event_log WHERE stream = ?
`

// GetLastSeq returns the highest sequence number recorded for stream, or 0
// if the stream is empty.
func (q *Queries) GetLastSeq(ctx context.Context, stream string) (int64, error) {
	var seq int64
	err := q.db.QueryRowContext(ctx, getLastSeqSQL, stream).Scan(&seq)
	return seq, err
}

const truncateStreamBeforeSQL = `
DELETE FROM event_log WHERE stream = ? AND seq < ?
`

// TruncateStreamBefore deletes every event in stream with a sequence number
// strictly less than beforeSeq.
func (q *Queries) TruncateStreamBefore(ctx context.Context, stream string,
	beforeSeq int64) error {

	_, err := q.db.ExecContext(ctx, truncateStreamBeforeSQL, stream, beforeSeq)
	return err
}

const listStreamsSQL = `
SELECT stream, MAX(seq) AS last_seq, COUNT(*) AS row_count
FROM event_log
GROUP BY stream
ORDER BY stream
`

// ListStreams summarizes every stream currently holding events.
func (q *Queries) ListStreams(ctx context.Context) ([]ListStreamsRow, error) {
	rows, err := q.db.QueryContext(ctx, listStreamsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListStreamsRow
	for rows.Next() {
		var r ListStreamsRow
		if err := rows.Scan(&r.Stream, &r.LastSeq, &r.RowCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}
