package remote

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFile_ReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "area.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	var changes atomic.Int32
	watcher, err := WatchFile(path, func() { changes.Add(1) })
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()

	require.NoError(t, os.WriteFile(path, []byte("b"), 0o600))
	require.Eventually(t, func() bool { return changes.Load() > 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatchFile_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "area.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	var changes atomic.Int32
	watcher, err := WatchFile(path, func() { changes.Add(1) })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("b"), 0o600))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, watcher.Close())
	assert.Equal(t, int32(0), changes.Load())
}

func TestWatchFile_MissingDirectory(t *testing.T) {
	_, err := WatchFile(filepath.Join(t.TempDir(), "missing", "area.yaml"), func() {})
	assert.Error(t, err)
}
