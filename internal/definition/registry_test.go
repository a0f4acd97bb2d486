package definition

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hops/internal/remote"
)

func TestRegistry_Scan(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "area", areaManifest)
	writeDefinition(t, dir, "volume", "name: Volume\nentrypoint: area.sh\n")
	writeDefinition(t, dir, "broken", "entrypoint: area.sh\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o600))

	registry := NewRegistry()
	added, err := registry.Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, registry.Len())

	assert.True(t, registry.Names().Contains("area", "Volume"))

	list := registry.List()
	require.Len(t, list, 2)
	assert.Equal(t, "area", list[0].Name())
	assert.Equal(t, "Volume", list[1].Name())
}

func TestRegistry_ScanMissingDirectory(t *testing.T) {
	registry := NewRegistry()
	added, err := registry.Scan(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestRegistry_ScanSkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a", areaManifest)
	writeDefinition(t, dir, "b", "name: AREA\nentrypoint: area.sh\n")

	registry := NewRegistry()
	added, err := registry.Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestRegistry_Add(t *testing.T) {
	def, err := Load(writeDefinition(t, t.TempDir(), "area", areaManifest))
	require.NoError(t, err)

	registry := NewRegistry()
	require.NoError(t, registry.Add(def))

	err = registry.Add(def)
	var duplicate *DuplicateDefinitionError
	require.True(t, errors.As(err, &duplicate))
	assert.Equal(t, "area", duplicate.Name)
}

func TestRegistry_Get(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "area", areaManifest)
	registry := NewRegistry()
	_, err := registry.Scan(dir)
	require.NoError(t, err)

	def, err := registry.Get(" AREA ")
	require.NoError(t, err)
	assert.Equal(t, "area", def.Name())

	_, err = registry.Get("aera")
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrDefinitionNotFound))

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "area", notFound.Suggestion)
	assert.Contains(t, err.Error(), `did you mean "area"?`)

	_, err = registry.Get("something-else")
	require.True(t, errors.As(err, &notFound))
	assert.Empty(t, notFound.Suggestion)
}

func TestRegistry_Resolve(t *testing.T) {
	dir := t.TempDir()
	defDir := writeDefinition(t, dir, "area", areaManifest)
	registry := NewRegistry()

	def, err := registry.Resolve(defDir)
	require.NoError(t, err)
	assert.Equal(t, "area", def.Name())

	def, err = registry.Resolve(filepath.Join(defDir, ManifestFileName))
	require.NoError(t, err)
	assert.Equal(t, defDir, def.Dir)

	_, err = registry.Resolve("area")
	assert.True(t, errors.Is(err, remote.ErrDefinitionNotFound))

	require.NoError(t, registry.Add(def))
	resolved, err := registry.Resolve("Area")
	require.NoError(t, err)
	assert.Same(t, def, resolved)
}
