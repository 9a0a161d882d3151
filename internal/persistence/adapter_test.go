package persistence_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roasbeef/holon/internal/persistence"
	"github.com/stretchr/testify/require"
)

func newTestSqliteStore(t *testing.T) *persistence.SqliteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := persistence.NewSqliteStore(&persistence.SqliteConfig{
		SkipMigrationDBBackup: true,
		DatabaseFileName:      dbPath,
	}, slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func testStorageAdapters(t *testing.T) map[string]persistence.StorageAdapter {
	fileAdapter, err := persistence.NewFileAdapter(t.TempDir(), true)
	require.NoError(t, err)

	sqlStore := newTestSqliteStore(t)

	return map[string]persistence.StorageAdapter{
		"memory": persistence.NewMemoryAdapter(),
		"file":   fileAdapter,
		"sql":    persistence.NewSQLAdapter(sqlStore.Store),
	}
}

func TestStorageAdapterSaveLoadRoundTrip(t *testing.T) {
	for name, adapter := range testStorageAdapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := adapter.Exists(ctx, "missing")
			require.NoError(t, err)
			require.False(t, ok)

			_, _, err = adapter.Load(ctx, "missing")
			require.ErrorIs(t, err, persistence.ErrNotFound)

			require.NoError(t, adapter.Save(ctx, "k1", []byte("payload-v1"), 3))

			data, schemaVersion, err := adapter.Load(ctx, "k1")
			require.NoError(t, err)
			require.Equal(t, []byte("payload-v1"), data)
			require.Equal(t, 3, schemaVersion)

			ok, err = adapter.Exists(ctx, "k1")
			require.NoError(t, err)
			require.True(t, ok)

			// Overwrite.
			require.NoError(t, adapter.Save(ctx, "k1", []byte("payload-v2"), 4))
			data, schemaVersion, err = adapter.Load(ctx, "k1")
			require.NoError(t, err)
			require.Equal(t, []byte("payload-v2"), data)
			require.Equal(t, 4, schemaVersion)

			require.NoError(t, adapter.Save(ctx, "k2", []byte("other"), 1))
			keys, err := adapter.ListKeys(ctx, "")
			require.NoError(t, err)
			require.ElementsMatch(t, []string{"k1", "k2"}, keys)

			require.NoError(t, adapter.Delete(ctx, "k1"))
			ok, err = adapter.Exists(ctx, "k1")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStorageAdapterCleanupRemovesStaleEntries(t *testing.T) {
	for name, adapter := range testStorageAdapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, adapter.Save(ctx, "fresh", []byte("x"), 0))

			// Cleanup with a window in the future must remove
			// everything that exists right now.
			removed, err := adapter.Cleanup(ctx, -time.Hour)
			require.NoError(t, err)
			require.GreaterOrEqual(t, removed, 1)

			ok, err := adapter.Exists(ctx, "fresh")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestSnapshotStoreAdapterMapsMissingKeyToNotFound(t *testing.T) {
	adapter := &persistence.SnapshotStoreAdapter{
		Storage: persistence.NewMemoryAdapter(),
	}

	ctx := context.Background()

	_, _, found, err := adapter.Load(ctx, "nope")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, adapter.Save(ctx, "key", []byte("state"), 1))

	data, schemaVersion, found, err := adapter.Load(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("state"), data)
	require.Equal(t, 1, schemaVersion)
}
