package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity_EqualIgnoresCase(t *testing.T) {
	assert.True(t, Identity("Foo").Equal("foo"))
	assert.True(t, Identity("HTTP://Localhost:5000/Add").Equal("http://localhost:5000/add"))
	assert.True(t, Identity(" Area ").Equal("AREA"))
	assert.False(t, Identity("foo").Equal("bar"))
}

func TestIdentity_IsEmpty(t *testing.T) {
	assert.True(t, Identity("").IsEmpty())
	assert.True(t, Identity("   ").IsEmpty())
	assert.False(t, Identity("area.yaml").IsEmpty())
}

func TestIdentity_IsEndpoint(t *testing.T) {
	assert.True(t, Identity("http://localhost:5000/add").IsEndpoint())
	assert.True(t, Identity("https://compute.example.com/definitions/area").IsEndpoint())
	assert.False(t, Identity("/home/user/area.yaml").IsEndpoint())
	assert.False(t, Identity("mcp:area").IsEndpoint())
	assert.False(t, Identity("http://").IsEndpoint())
}

func TestIdentity_MCPTool(t *testing.T) {
	tool, ok := Identity("mcp:area").MCPTool()
	assert.True(t, ok)
	assert.Equal(t, "area", tool)

	tool, ok = Identity("MCP:Area").MCPTool()
	assert.True(t, ok)
	assert.Equal(t, "Area", tool)

	_, ok = Identity("mcp:").MCPTool()
	assert.False(t, ok)

	_, ok = Identity("area.yaml").MCPTool()
	assert.False(t, ok)
}
