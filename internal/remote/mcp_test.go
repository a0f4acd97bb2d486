package remote

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hops/internal/param"
)

// newTestMCPServer serves one tool with hops _meta declarations and one
// plain tool described only by its JSON schema.
func newTestMCPServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "hops-test", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "area",
		Description: "Area of a circle",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"Radius": map[string]any{}},
		},
		Meta: mcp.Meta{
			MetaInputs: []any{
				map[string]any{"Name": "Radius", "ParamType": "Number", "AtLeast": 1, "AtMost": 1},
			},
			MetaOutputs: []any{
				map[string]any{"Name": "Area", "ParamType": "Number"},
			},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input map[string]any) (*mcp.CallToolResult, map[string]any, error) {
		radius, ok := input["Radius"].(float64)
		if !ok {
			return nil, nil, errors.New("Radius must be a number")
		}
		return nil, map[string]any{"Area": math.Pi * radius * radius}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sum",
		Description: "Sum of values",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"values": map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
				"scale":  map[string]any{"type": "number", "default": 1.0},
			},
			"required": []any{"values"},
		},
		OutputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"total": map[string]any{"type": "number"}},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input map[string]any) (*mcp.CallToolResult, map[string]any, error) {
		values, _ := input["values"].([]any)
		scale := 1.0
		if s, ok := input["scale"].(float64); ok {
			scale = s
		}
		total := 0.0
		for _, v := range values {
			f, _ := v.(float64)
			total += f
		}
		return nil, map[string]any{"total": total * scale, "warnings": []any{"scaled"}}, nil
	})

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	httpServer := httptest.NewServer(handler)
	t.Cleanup(httpServer.Close)
	return httpServer
}

func TestMCPTransport_DescribeFromMeta(t *testing.T) {
	server := newTestMCPServer(t)
	ctx := context.Background()

	transport, err := DialMCPEndpoint(ctx, server.URL, server.Client(), "area")
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	assert.Equal(t, "mcp:area", transport.Pointer())

	described, err := transport.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Area of a circle", described.Description)
	require.Len(t, described.Inputs, 1)
	assert.Equal(t, param.KindNumber, described.Inputs[0].Kind)
	assert.True(t, described.Inputs[0].IsItem())
	require.Len(t, described.Outputs, 1)
	assert.Equal(t, "Area", described.Outputs[0].Name)
}

func TestMCPTransport_Solve(t *testing.T) {
	server := newTestMCPServer(t)
	ctx := context.Background()

	transport, err := DialMCPEndpoint(ctx, server.URL, server.Client(), "area")
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	input, err := NewDataTree("Radius", param.KindNumber, []any{2.0})
	require.NoError(t, err)

	output, err := transport.Solve(ctx, &Schema{Pointer: transport.Pointer(), Values: []DataTree{input}})
	require.NoError(t, err)
	assert.Empty(t, output.Errors)

	tree, ok := output.Value("Area")
	require.True(t, ok)
	decoded, err := tree.Decode()
	require.NoError(t, err)
	require.Len(t, decoded[DefaultPath], 1)
	assert.InDelta(t, 4*math.Pi, decoded[DefaultPath][0], 1e-9)
}

func TestMCPTransport_DescribeFromSchema(t *testing.T) {
	server := newTestMCPServer(t)
	ctx := context.Background()

	transport, err := DialMCPEndpoint(ctx, server.URL, server.Client(), "sum")
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	described, err := transport.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, described.Inputs, 2)

	values := described.Inputs[0]
	assert.Equal(t, "values", values.Name)
	assert.Equal(t, param.KindNumber, values.Kind)
	assert.Equal(t, 0, values.AtLeast)
	assert.Equal(t, param.Unbounded, values.AtMost)

	scale := described.Inputs[1]
	assert.Equal(t, "scale", scale.Name)
	assert.True(t, scale.IsItem())
	assert.Equal(t, 1.0, scale.Default)
}

func TestMCPTransport_SolveListInputs(t *testing.T) {
	server := newTestMCPServer(t)
	ctx := context.Background()

	transport, err := DialMCPEndpoint(ctx, server.URL, server.Client(), "sum")
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	described, err := transport.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, described.Outputs, 1)
	assert.Equal(t, "total", described.Outputs[0].Name)

	values, err := NewDataTree("values", param.KindNumber, []any{1.0, 2.0, 3.0})
	require.NoError(t, err)
	scale, err := NewDataTree("scale", param.KindNumber, []any{2.0})
	require.NoError(t, err)

	output, err := transport.Solve(ctx, &Schema{Values: []DataTree{values, scale}})
	require.NoError(t, err)
	assert.Equal(t, []string{"scaled"}, output.Warnings)

	tree, ok := output.Value("total")
	require.True(t, ok)
	assert.Equal(t, "12", tree.InnerTree[DefaultPath][0].Data)
}

func TestMCPTransport_ToolError(t *testing.T) {
	server := newTestMCPServer(t)
	ctx := context.Background()

	transport, err := DialMCPEndpoint(ctx, server.URL, server.Client(), "area")
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	input, err := NewDataTree("Radius", param.KindString, []any{"wide"})
	require.NoError(t, err)

	output, err := transport.Solve(ctx, &Schema{Values: []DataTree{input}})
	require.NoError(t, err)
	require.Len(t, output.Errors, 1)
	assert.Contains(t, output.Errors[0], "Radius")
}

func TestMCPTransport_UnknownTool(t *testing.T) {
	server := newTestMCPServer(t)
	ctx := context.Background()

	transport, err := DialMCPEndpoint(ctx, server.URL, server.Client(), "volume")
	require.NoError(t, err)
	defer func() { _ = transport.Close() }()

	_, err = transport.Describe(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefinitionNotFound))
}

func TestFindTool_FallsBackToCaseInsensitive(t *testing.T) {
	tools := []*mcp.Tool{{Name: "Area"}, {Name: "area"}}
	assert.Same(t, tools[1], findTool(tools, "area"))
	assert.Same(t, tools[0], findTool(tools[:1], "AREA"))
	assert.Nil(t, findTool(tools, "volume"))
}

func TestDeclarationsFromSchema_HonorsKindAnnotation(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"origin": map[string]any{"type": "object", SchemaKindKey: "Point"},
			"points": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "object"},
				SchemaKindKey: "point",
			},
			"label": map[string]any{"type": "string", SchemaKindKey: "Pointy"},
		},
		"required": []string{"origin"},
	}

	declarations, err := declarationsFromSchema(schema)
	require.NoError(t, err)
	require.Len(t, declarations, 3)

	assert.Equal(t, "origin", declarations[0].Name)
	assert.Equal(t, param.KindPoint, declarations[0].Kind)
	assert.True(t, declarations[0].IsItem())

	assert.Equal(t, "label", declarations[1].Name)
	assert.Equal(t, param.KindString, declarations[1].Kind)

	assert.Equal(t, "points", declarations[2].Name)
	assert.Equal(t, param.KindPoint, declarations[2].Kind)
	assert.Equal(t, param.Unbounded, declarations[2].AtMost)
}
