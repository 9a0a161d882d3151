package persistence_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roasbeef/holon/internal/persistence"
	"github.com/stretchr/testify/require"
)

func testEventLogs(t *testing.T) map[string]persistence.EventLogAdapter {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := persistence.NewSqliteStore(&persistence.SqliteConfig{
		SkipMigrationDBBackup: true,
		DatabaseFileName:      dbPath,
	}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return map[string]persistence.EventLogAdapter{
		"memory": persistence.NewMemoryEventLog(),
		"sql":    persistence.NewSQLEventLog(store.Store),
	}
}

func TestEventLogAppendAndReadIsOrderedByStream(t *testing.T) {
	for name, log := range testEventLogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				_, err := log.Append(ctx, "stream-a", []byte{byte(i)})
				require.NoError(t, err)
			}

			_, err := log.Append(ctx, "stream-b", []byte("other"))
			require.NoError(t, err)

			events, err := log.Read(ctx, "stream-a")
			require.NoError(t, err)
			require.Len(t, events, 5)
			for i, ev := range events {
				require.Equal(t, []byte{byte(i)}, ev.Payload)
			}

			last, err := log.GetLastSeq(ctx, "stream-a")
			require.NoError(t, err)
			require.Equal(t, events[len(events)-1].Seq, last)

			after, err := log.ReadAfter(ctx, "stream-a", events[2].Seq)
			require.NoError(t, err)
			require.Len(t, after, 2)

			streams, err := log.ListStreams(ctx)
			require.NoError(t, err)
			require.Len(t, streams, 2)
		})
	}
}

func TestEventLogTruncateBeforeDropsOldEvents(t *testing.T) {
	for name, log := range testEventLogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var seqs []int64
			for i := 0; i < 4; i++ {
				seq, err := log.Append(ctx, "s", []byte{byte(i)})
				require.NoError(t, err)
				seqs = append(seqs, seq)
			}

			require.NoError(t, log.TruncateBefore(ctx, "s", seqs[2]))

			remaining, err := log.Read(ctx, "s")
			require.NoError(t, err)
			require.Len(t, remaining, 2)
			require.Equal(t, seqs[2], remaining[0].Seq)
		})
	}
}
