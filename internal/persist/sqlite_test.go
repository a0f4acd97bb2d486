package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "hops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenSQLite_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hops.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)

	// reopening applies the schema again without error
	store, err = OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record := NewRecord()
	Write(record, State{
		Version:       Version{1, 4, 2},
		Path:          "mcp:area",
		CacheOnServer: false,
		CacheInMemory: true,
	})
	require.NoError(t, store.Save(ctx, "component-a", record))

	loaded, err := store.Load(ctx, "component-a")
	require.NoError(t, err)

	state, err := Read(loaded, DefaultState())
	require.NoError(t, err)
	assert.Equal(t, Version{1, 4, 2}, state.Version)
	assert.Equal(t, "mcp:area", state.Path)
	assert.False(t, state.CacheOnServer)
	assert.True(t, state.CacheInMemory)
}

func TestSQLiteStore_SaveReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := NewRecord()
	first.SetString(TagPath, "area")
	first.SetBoolean(TagIsDefined, true)
	require.NoError(t, store.Save(ctx, "c", first))

	second := NewRecord()
	second.SetString(TagPath, "volume")
	require.NoError(t, store.Save(ctx, "c", second))

	loaded, err := store.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{TagPath}, loaded.Tags())

	path, err := loaded.GetString(TagPath)
	require.NoError(t, err)
	assert.Equal(t, "volume", path)
}

func TestSQLiteStore_ListAndDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		record := NewRecord()
		record.SetString(TagPath, id)
		require.NoError(t, store.Save(ctx, id, record))
	}

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Load(ctx, "a")
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}
