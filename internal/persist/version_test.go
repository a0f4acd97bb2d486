package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 1, Minor: 2, Revision: 3}, v)

	v, err = ParseVersion("v2.0.10")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 2, Minor: 0, Revision: 10}, v)

	_, err = ParseVersion("one.two")
	assert.Error(t, err)
}

func TestVersion_Compare(t *testing.T) {
	assert.Equal(t, 0, Version{1, 0, 0}.Compare(Version{1, 0, 0}))
	assert.Equal(t, -1, Version{1, 0, 9}.Compare(Version{1, 0, 10}))
	assert.Equal(t, 1, Version{2, 0, 0}.Compare(Version{1, 9, 9}))
	assert.Equal(t, "v1.2.3", Version{1, 2, 3}.String())
}

func TestCheckCompatible(t *testing.T) {
	running := Version{Major: 1, Minor: 2, Revision: 0}

	assert.True(t, CheckCompatible(Version{}, running))
	assert.True(t, CheckCompatible(Version{1, 0, 0}, running))
	assert.True(t, CheckCompatible(Version{1, 9, 0}, running))
	assert.True(t, CheckCompatible(Version{0, 1, 0}, running))
	assert.False(t, CheckCompatible(Version{2, 0, 0}, running))
}
