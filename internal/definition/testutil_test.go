package definition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const areaManifest = `name: area
description: Area of a circle
entrypoint: area.sh
inputs:
  - name: Radius
    kind: number
    default: 5
outputs:
  - name: Area
    kind: Number
`

// writeDefinition creates dir/name holding manifest and an executable area.sh
func writeDefinition(t *testing.T, dir, name, manifest string) string {
	t.Helper()
	defDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(defDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(defDir, ManifestFileName), []byte(manifest), 0o600))
	// #nosec G306 -- test scripts need to be executable
	require.NoError(t, os.WriteFile(filepath.Join(defDir, "area.sh"), []byte("#!/bin/sh\necho '{}'\n"), 0o755))
	return defDir
}
