package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hops/internal/host"
	"github.com/dorcha-inc/hops/internal/param"
)

// mockTransport is a Transport with overridable behaviour
type mockTransport struct {
	pointer      string
	describeFunc func(ctx context.Context) (*IOResponse, error)
	solveFunc    func(ctx context.Context, input *Schema) (*Schema, error)
	closeFunc    func() error

	describeCalls atomic.Int32
	solveCalls    atomic.Int32
}

var _ Transport = &mockTransport{}

func (m *mockTransport) Pointer() string {
	return m.pointer
}

func (m *mockTransport) Describe(ctx context.Context) (*IOResponse, error) {
	m.describeCalls.Add(1)
	if m.describeFunc != nil {
		return m.describeFunc(ctx)
	}
	return &IOResponse{}, nil
}

func (m *mockTransport) Solve(ctx context.Context, input *Schema) (*Schema, error) {
	m.solveCalls.Add(1)
	if m.solveFunc != nil {
		return m.solveFunc(ctx, input)
	}
	return &Schema{Pointer: input.Pointer}, nil
}

func (m *mockTransport) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func areaTransport() *mockTransport {
	return &mockTransport{
		pointer: "area",
		describeFunc: func(ctx context.Context) (*IOResponse, error) {
			return &IOResponse{
				Description: "Area of a circle",
				Inputs: []param.Declaration{
					{Name: "Radius", Kind: param.KindNumber, AtLeast: 1, AtMost: 1},
				},
				Outputs: []param.Declaration{
					{Name: "Area", Kind: param.KindNumber, AtLeast: 1, AtMost: param.Unbounded},
				},
			}, nil
		},
		solveFunc: func(ctx context.Context, input *Schema) (*Schema, error) {
			tree, err := NewDataTree("Area", param.KindNumber, []any{78.5})
			if err != nil {
				return nil, err
			}
			return &Schema{Pointer: input.Pointer, Values: []DataTree{tree}}, nil
		},
	}
}

func areaHost(t *testing.T) *host.Memory {
	t.Helper()
	memory := host.NewMemory()
	_, err := memory.CreateInputSlots().Add(param.SlotSpec{Name: "Radius", Kind: param.KindNumber, Type: param.TypeNumber})
	require.NoError(t, err)
	_, err = memory.CreateOutputSlots().Add(param.SlotSpec{Name: "Area", Kind: param.KindNumber, Type: param.TypeNumber, Access: param.AccessTree})
	require.NoError(t, err)
	return memory
}

func TestHandle_DescribesOnce(t *testing.T) {
	transport := areaTransport()
	handle := NewHandle("area", transport)

	description, icon, err := handle.GetDescription(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Area of a circle", description)
	assert.Nil(t, icon)

	inputs, err := handle.GetInputParams(context.Background())
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "Radius", inputs[0].Name)

	outputs, err := handle.GetOutputParams(context.Background())
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	assert.Equal(t, int32(1), transport.describeCalls.Load())

	handle.Invalidate()
	_, err = handle.GetInputParams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), transport.describeCalls.Load())
}

func TestHandle_DescribeFailureIsRemoteUnavailable(t *testing.T) {
	transport := &mockTransport{
		describeFunc: func(ctx context.Context) (*IOResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	handle := NewHandle("area", transport)

	_, err := handle.GetInputParams(context.Background())
	require.Error(t, err)
	assert.True(t, IsRemoteUnavailable(err))
	assert.Contains(t, err.Error(), "connection refused")

	// failures are not remembered
	_, _ = handle.GetInputParams(context.Background())
	assert.Equal(t, int32(2), transport.describeCalls.Load())
}

func TestHandle_CreateSolveInput(t *testing.T) {
	handle := NewHandle("area", areaTransport())
	memory := areaHost(t)
	radius, _ := memory.Input("Radius")
	radius.SetValues(5.0)

	input, warnings, err := handle.CreateSolveInput(context.Background(), memory.Access(0), true)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "area", input.Pointer)
	assert.True(t, input.CacheSolve)

	tree, ok := input.Value("Radius")
	require.True(t, ok)
	assert.Equal(t, []Item{{Type: "System.Double", Data: "5"}}, tree.InnerTree[DefaultPath])
}

func TestHandle_CreateSolveInput_Warnings(t *testing.T) {
	handle := NewHandle("area", areaTransport())

	// no Radius slot at all
	input, warnings, err := handle.CreateSolveInput(context.Background(), host.NewMemory().Access(0), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Input parameter Radius is missing"}, warnings)
	assert.Empty(t, input.Values)

	// slot present but empty
	memory := areaHost(t)
	_, warnings, err = handle.CreateSolveInput(context.Background(), memory.Access(0), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Input parameter Radius failed to collect data"}, warnings)
}

func TestHandle_SolveCachesInMemory(t *testing.T) {
	transport := areaTransport()
	handle := NewHandle("area", transport)
	input := radiusSchema(t, 5)

	first, cached, err := handle.Solve(context.Background(), input, true)
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := handle.Solve(context.Background(), radiusSchema(t, 5), true)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), transport.solveCalls.Load())

	_, cached, err = handle.Solve(context.Background(), radiusSchema(t, 6), true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), transport.solveCalls.Load())
}

func TestHandle_SolveDoesNotCacheRemoteErrors(t *testing.T) {
	transport := &mockTransport{
		solveFunc: func(ctx context.Context, input *Schema) (*Schema, error) {
			return &Schema{Pointer: input.Pointer, Errors: []string{"definition crashed"}}, nil
		},
	}
	handle := NewHandle("area", transport)

	for range 2 {
		output, cached, err := handle.Solve(context.Background(), radiusSchema(t, 5), true)
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, []string{"definition crashed"}, output.Errors)
	}
	assert.Equal(t, int32(2), transport.solveCalls.Load())
}

func TestHandle_SolveWithoutCache(t *testing.T) {
	transport := areaTransport()
	handle := NewHandle("area", transport)

	for range 3 {
		_, cached, err := handle.Solve(context.Background(), radiusSchema(t, 5), false)
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, int32(3), transport.solveCalls.Load())
}

func TestHandle_InvalidateClearsCache(t *testing.T) {
	transport := areaTransport()
	handle := NewHandle("area", transport)

	fingerprint, err := Fingerprint(radiusSchema(t, 5))
	require.NoError(t, err)
	handle.Remember(fingerprint, &Schema{})

	_, ok := handle.Cached(fingerprint)
	require.True(t, ok)

	handle.Invalidate()
	_, ok = handle.Cached(fingerprint)
	assert.False(t, ok)
}

func TestHandle_SolveFailureIsRemoteUnavailable(t *testing.T) {
	transport := &mockTransport{
		solveFunc: func(ctx context.Context, input *Schema) (*Schema, error) {
			return nil, errors.New("solver error: 500 - boom")
		},
	}
	handle := NewHandle("area", transport)

	_, _, err := handle.Solve(context.Background(), &Schema{}, true)
	require.Error(t, err)
	assert.True(t, IsRemoteUnavailable(err))
}

func TestHandle_SetOutputs(t *testing.T) {
	handle := NewHandle("area", areaTransport())
	memory := areaHost(t)

	area, err := NewDataTree("Area", param.KindNumber, []any{78.5})
	require.NoError(t, err)
	stray, err := NewDataTree("Perimeter", param.KindNumber, []any{31.4})
	require.NoError(t, err)

	written, err := handle.SetOutputs(&Schema{Values: []DataTree{area, stray}}, memory.Access(0))
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	slot, ok := memory.Output("Area")
	require.True(t, ok)
	assert.Equal(t, map[string][]any{DefaultPath: {78.5}}, slot.Tree())
}

func TestHandle_WatchInvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "area.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: area\n"), 0o600))

	transport := areaTransport()
	handle := NewHandle(Identity(path), transport)
	defer func() { _ = handle.Close() }()

	_, err := handle.GetInputParams(context.Background())
	require.NoError(t, err)

	var changes atomic.Int32
	require.NoError(t, handle.Watch(func() { changes.Add(1) }))

	require.NoError(t, os.WriteFile(path, []byte("name: area\ndescription: changed\n"), 0o600))

	require.Eventually(t, func() bool { return changes.Load() > 0 }, 5*time.Second, 10*time.Millisecond)

	_, err = handle.GetInputParams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), transport.describeCalls.Load())
}

func TestHandle_WatchIgnoresNonFiles(t *testing.T) {
	handle := NewHandle("http://localhost:5000/area", areaTransport())
	require.NoError(t, handle.Watch(func() {}))
	assert.Nil(t, handle.watcher)

	handle = NewHandle("mcp:area", areaTransport())
	require.NoError(t, handle.Watch(func() {}))
	assert.Nil(t, handle.watcher)
}

func TestHandle_CloseClosesTransport(t *testing.T) {
	closed := false
	transport := areaTransport()
	transport.closeFunc = func() error {
		closed = true
		return nil
	}

	require.NoError(t, NewHandle("area", transport).Close())
	assert.True(t, closed)
}
