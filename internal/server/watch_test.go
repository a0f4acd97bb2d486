package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchDefinitions_PicksUpNewDefinitions(t *testing.T) {
	cfg := createTestConfig(t)
	s := NewServerWithExecutor(cfg, "", &mockExecutor{})
	require.Equal(t, []string{"area"}, s.Definitions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.WatchDefinitions(ctx, 20*time.Millisecond))

	manifest := `name: volume
entrypoint: run.sh
outputs:
  - name: Volume
    kind: Number
`
	writeDefinition(t, cfg.DefinitionsDir, "volume", manifest, "#!/bin/sh\ncat\n")

	assert.Eventually(t, func() bool {
		return len(s.Definitions()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"area", "volume"}, s.Definitions())
}

func TestWatchDefinitions_MissingDirectory(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.DefinitionsDir = filepath.Join(t.TempDir(), "missing")
	s := NewServerWithExecutor(cfg, "", &mockExecutor{})

	err := s.WatchDefinitions(context.Background(), time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}
