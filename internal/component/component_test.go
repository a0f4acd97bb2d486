package component

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hops/internal/host"
	"github.com/dorcha-inc/hops/internal/param"
	"github.com/dorcha-inc/hops/internal/persist"
	"github.com/dorcha-inc/hops/internal/remote"
	"github.com/dorcha-inc/hops/internal/solve"
)

// mockTransport serves a schema that tests can swap out
type mockTransport struct {
	mu          sync.Mutex
	pointer     string
	described   *remote.IOResponse
	describeErr error
	solveCalls  int
	solveErrors []string
	closed      bool
}

var _ remote.Transport = &mockTransport{}

func newAreaTransport(pointer string) *mockTransport {
	return &mockTransport{
		pointer: pointer,
		described: &remote.IOResponse{
			Description: "Area of a circle",
			Inputs: []param.Declaration{
				{Name: "Radius", Kind: param.KindNumber, AtLeast: 1, AtMost: 1, Default: 5.0},
			},
			Outputs: []param.Declaration{
				{Name: "Area", Kind: param.KindNumber, AtLeast: 1, AtMost: param.Unbounded},
			},
		},
	}
}

func (m *mockTransport) Pointer() string {
	return m.pointer
}

func (m *mockTransport) Describe(ctx context.Context) (*remote.IOResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.describeErr != nil {
		return nil, m.describeErr
	}
	return m.described, nil
}

func (m *mockTransport) Solve(ctx context.Context, input *remote.Schema) (*remote.Schema, error) {
	m.mu.Lock()
	m.solveCalls++
	solveErrors := m.solveErrors
	m.mu.Unlock()

	if len(solveErrors) > 0 {
		return &remote.Schema{Pointer: input.Pointer, Errors: solveErrors}, nil
	}

	area, err := remote.NewDataTree("Area", param.KindNumber, []any{78.5})
	if err != nil {
		return nil, err
	}
	return &remote.Schema{Values: []remote.DataTree{area}}, nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) setDescribed(described *remote.IOResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.described = described
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockTransport) solves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.solveCalls
}

// mockDialer hands out one transport per identity
type mockDialer struct {
	mu         sync.Mutex
	dialFunc   func(ctx context.Context, identity remote.Identity) (remote.Transport, error)
	dialed     []remote.Identity
	transports []*mockTransport
}

var _ remote.Dialer = &mockDialer{}

func (d *mockDialer) Dial(ctx context.Context, identity remote.Identity) (remote.Transport, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, identity)
	d.mu.Unlock()

	if d.dialFunc != nil {
		return d.dialFunc(ctx, identity)
	}

	transport := newAreaTransport(identity.String())
	d.mu.Lock()
	d.transports = append(d.transports, transport)
	d.mu.Unlock()
	return transport, nil
}

func (d *mockDialer) last() *mockTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[len(d.transports)-1]
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

func newTestComponent(t *testing.T, opts Options) (*Component, *host.Memory, *mockDialer) {
	t.Helper()
	memory := host.NewMemory()
	dialer := &mockDialer{}
	if opts.Dialer == nil {
		opts.Dialer = dialer
	}
	c := New(memory, opts)
	t.Cleanup(func() { _ = c.Close() })
	return c, memory, dialer
}

func TestSetIdentity_BuildsSlots(t *testing.T) {
	c, memory, _ := newTestComponent(t, DefaultOptions(nil))

	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	assert.Equal(t, remote.Identity("area"), c.Identity())

	radius, ok := memory.Input("Radius")
	require.True(t, ok)
	assert.Equal(t, param.AccessItem, radius.Access())
	assert.Equal(t, 5.0, radius.Spec().Default)

	area, ok := memory.Output("Area")
	require.True(t, ok)
	assert.Equal(t, param.AccessTree, area.Access())

	assert.Equal(t, "Area of a circle", memory.Description())
	assert.Equal(t, 1, memory.Counters().NewPasses)
	assert.NotEmpty(t, c.ID())
}

func TestSetIdentity_CaseInsensitiveNoOp(t *testing.T) {
	c, memory, dialer := newTestComponent(t, DefaultOptions(nil))

	require.NoError(t, c.SetIdentity(context.Background(), "Foo"))
	before := memory.Counters()

	require.NoError(t, c.SetIdentity(context.Background(), "foo"))
	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, before, memory.Counters())
	assert.False(t, dialer.last().isClosed())
	assert.Equal(t, remote.Identity("Foo"), c.Identity())
}

func TestSetIdentity_ReplacesHandle(t *testing.T) {
	c, _, dialer := newTestComponent(t, DefaultOptions(nil))

	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	first := dialer.last()

	require.NoError(t, c.SetIdentity(context.Background(), "volume"))
	assert.True(t, first.isClosed())
	assert.False(t, dialer.last().isClosed())
	assert.Equal(t, 2, dialer.dialCount())
}

func TestSetIdentity_ClearClosesHandle(t *testing.T) {
	c, memory, dialer := newTestComponent(t, DefaultOptions(nil))

	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	require.NoError(t, c.SetIdentity(context.Background(), ""))
	assert.True(t, dialer.last().isClosed())

	memory.ClearRuntimeMessages()
	err := c.OnSolveRequested(context.Background(), memory.Access(0), false)
	var configErr *solve.ConfigurationError
	require.True(t, errors.As(err, &configErr))
	assert.Equal(t, []host.Message{{Level: host.LevelWarning, Text: "No URL or path defined for definition"}}, memory.Messages())
}

func TestSetIdentity_ResolvesRegisteredNames(t *testing.T) {
	c, memory, dialer := newTestComponent(t, DefaultOptions(nil))
	memory.Register("area", "http://localhost:5000/area")

	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	assert.Equal(t, []remote.Identity{"http://localhost:5000/area"}, dialer.dialed)
	assert.Equal(t, remote.Identity("area"), c.Identity())
}

func TestSetIdentity_UnsupportedKindKeepsSlots(t *testing.T) {
	c, memory, dialer := newTestComponent(t, DefaultOptions(nil))
	require.NoError(t, c.SetIdentity(context.Background(), "area"))

	dialer.last().setDescribed(&remote.IOResponse{
		Inputs: []param.Declaration{{Name: "Id", Kind: param.KindGuid, AtLeast: 1, AtMost: 1}},
	})

	err := c.Rebuild(context.Background())
	var unsupported *param.UnsupportedParameterKindError
	require.True(t, errors.As(err, &unsupported))

	_, ok := memory.Input("Radius")
	assert.True(t, ok)

	messages := memory.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, host.LevelError, messages[0].Level)
}

func TestSetIdentity_DialFailureRetriesOnSolve(t *testing.T) {
	memory := host.NewMemory()
	fail := true
	transport := newAreaTransport("area")
	dialer := &mockDialer{dialFunc: func(ctx context.Context, identity remote.Identity) (remote.Transport, error) {
		if fail {
			return nil, remote.NewRemoteUnavailableError(identity, errors.New("connection refused"))
		}
		return transport, nil
	}}
	c := New(memory, DefaultOptions(dialer))
	defer func() { _ = c.Close() }()

	err := c.SetIdentity(context.Background(), "area")
	require.Error(t, err)
	assert.True(t, remote.IsRemoteUnavailable(err))
	assert.Equal(t, remote.Identity("area"), c.Identity())
	require.NotEmpty(t, memory.Messages())
	assert.Equal(t, host.LevelWarning, memory.Messages()[0].Level)

	fail = false
	require.NoError(t, c.Rebuild(context.Background()))
	_, ok := memory.Input("Radius")
	assert.True(t, ok)
}

func TestOnSolveRequested_WritesOutputs(t *testing.T) {
	c, memory, dialer := newTestComponent(t, DefaultOptions(nil))
	require.NoError(t, c.SetIdentity(context.Background(), "area"))

	require.NoError(t, c.OnSolveRequested(context.Background(), memory.Access(0), false))

	area, _ := memory.Output("Area")
	assert.Equal(t, map[string][]any{remote.DefaultPath: {78.5}}, area.Tree())

	// identical inputs come from the memo cache
	require.NoError(t, c.OnSolveRequested(context.Background(), memory.Access(0), false))
	assert.Equal(t, 1, dialer.last().solves())
}

func TestOnSolveRequested_PreSolveThenSolve(t *testing.T) {
	c, memory, dialer := newTestComponent(t, DefaultOptions(nil))
	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	ctx := context.Background()

	require.NoError(t, c.OnSolveRequested(ctx, memory.Access(0), true))
	require.NoError(t, c.Wait(ctx))
	require.NoError(t, c.OnSolveRequested(ctx, memory.Access(0), false))

	area, _ := memory.Output("Area")
	assert.Equal(t, map[string][]any{remote.DefaultPath: {78.5}}, area.Tree())
	assert.Equal(t, 1, dialer.last().solves())
}

func TestImmutablePolicy_LocksAfterFirstSolve(t *testing.T) {
	opts := DefaultOptions(nil)
	opts.Policy.AllowSchemaChange = false
	c, memory, dialer := newTestComponent(t, opts)

	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	assert.False(t, c.IsDefined())

	require.NoError(t, c.OnSolveRequested(context.Background(), memory.Access(0), false))
	assert.True(t, c.IsDefined())

	dialer.last().setDescribed(&remote.IOResponse{
		Inputs:  []param.Declaration{{Name: "Diameter", Kind: param.KindNumber, AtLeast: 1, AtMost: 1}},
		Outputs: []param.Declaration{{Name: "Area", Kind: param.KindNumber}},
	})
	require.NoError(t, c.Rebuild(context.Background()))

	_, ok := memory.Input("Radius")
	assert.True(t, ok)
	_, ok = memory.Input("Diameter")
	assert.False(t, ok)

	messages := memory.Messages()
	require.NotEmpty(t, messages)
	assert.Equal(t, host.LevelRemark, messages[len(messages)-1].Level)

	record := persist.NewRecord()
	c.Write(record)
	defined, ok := record.TryGetBoolean(persist.TagIsDefined)
	assert.True(t, ok)
	assert.True(t, defined)
}

func TestImmutablePolicy_IncompleteInputsDoNotLock(t *testing.T) {
	opts := DefaultOptions(nil)
	opts.Policy.AllowSchemaChange = false
	c, memory, dialer := newTestComponent(t, opts)
	dialer.dialFunc = func(ctx context.Context, identity remote.Identity) (remote.Transport, error) {
		transport := newAreaTransport(identity.String())
		transport.described.Inputs[0].Default = nil
		return transport, nil
	}

	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	require.NoError(t, c.OnSolveRequested(context.Background(), memory.Access(0), false))
	assert.False(t, c.IsDefined())

	messages := memory.Messages()
	require.NotEmpty(t, messages)
	assert.Equal(t, host.LevelWarning, messages[len(messages)-1].Level)
	assert.Contains(t, messages[len(messages)-1].Text, "Radius")

	record := persist.NewRecord()
	c.Write(record)
	defined, _ := record.TryGetBoolean(persist.TagIsDefined)
	assert.False(t, defined)
}

func TestImmutablePolicy_RemoteErrorsDoNotLock(t *testing.T) {
	opts := DefaultOptions(nil)
	opts.Policy.AllowSchemaChange = false
	c, memory, dialer := newTestComponent(t, opts)

	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	transport := dialer.last()
	transport.mu.Lock()
	transport.solveErrors = []string{"definition crashed"}
	transport.mu.Unlock()

	require.NoError(t, c.OnSolveRequested(context.Background(), memory.Access(0), false))
	assert.False(t, c.IsDefined())
	assert.Equal(t, 1, transport.solves())

	transport.mu.Lock()
	transport.solveErrors = nil
	transport.mu.Unlock()

	require.NoError(t, c.OnSolveRequested(context.Background(), memory.Access(0), false))
	assert.True(t, c.IsDefined())
	assert.Equal(t, 2, transport.solves())
}

func TestMutablePolicy_DoesNotWriteIsDefined(t *testing.T) {
	c, memory, _ := newTestComponent(t, DefaultOptions(nil))
	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	require.NoError(t, c.OnSolveRequested(context.Background(), memory.Access(0), false))
	assert.False(t, c.IsDefined())

	record := persist.NewRecord()
	c.Write(record)
	_, ok := record.TryGetBoolean(persist.TagIsDefined)
	assert.False(t, ok)
}

func TestWriteRead_RestoresComponent(t *testing.T) {
	c, _, _ := newTestComponent(t, DefaultOptions(nil))
	require.NoError(t, c.SetIdentity(context.Background(), "area"))
	c.SetCachePolicy(solve.CachePolicy{CacheInMemory: false, CacheOnServer: true})

	record := persist.NewRecord()
	c.Write(record)

	restored, memory, dialer := newTestComponent(t, DefaultOptions(nil))
	require.NoError(t, restored.Read(context.Background(), record))

	assert.Equal(t, remote.Identity("area"), restored.Identity())
	assert.Equal(t, solve.CachePolicy{CacheInMemory: false, CacheOnServer: true}, restored.CachePolicy())
	assert.Equal(t, 1, dialer.dialCount())
	_, ok := memory.Input("Radius")
	assert.True(t, ok)
}

func TestRead_SwallowsRemoteFailures(t *testing.T) {
	record := persist.NewRecord()
	persist.Write(record, persist.State{Version: persist.CurrentVersion, Path: "area", CacheInMemory: true})

	dialer := &mockDialer{dialFunc: func(ctx context.Context, identity remote.Identity) (remote.Transport, error) {
		return nil, remote.NewRemoteUnavailableError(identity, errors.New("connection refused"))
	}}
	c := New(host.NewMemory(), DefaultOptions(dialer))
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Read(context.Background(), record))
	assert.Equal(t, remote.Identity("area"), c.Identity())
	assert.False(t, c.CachePolicy().CacheOnServer)
}

func TestRead_RestoresIsDefinedForImmutable(t *testing.T) {
	record := persist.NewRecord()
	persist.Write(record, persist.State{Path: "area", Immutable: true, IsDefined: true})

	opts := DefaultOptions(nil)
	opts.Policy.AllowSchemaChange = false
	c, memory, _ := newTestComponent(t, opts)

	require.NoError(t, c.Read(context.Background(), record))
	assert.True(t, c.IsDefined())

	// the first build after a restore still happens
	_, ok := memory.Input("Radius")
	assert.True(t, ok)
}

func TestOnScheduleRebuild_RebuildsOnIdle(t *testing.T) {
	c, memory, dialer := newTestComponent(t, DefaultOptions(nil))
	require.NoError(t, c.SetIdentity(context.Background(), "area"))

	dialer.last().setDescribed(&remote.IOResponse{
		Inputs:  []param.Declaration{{Name: "Diameter", Kind: param.KindNumber, AtLeast: 1, AtMost: 1}},
		Outputs: []param.Declaration{{Name: "Area", Kind: param.KindNumber}},
	})

	c.OnScheduleRebuild()
	c.OnScheduleRebuild()
	_, ok := memory.Input("Radius")
	assert.True(t, ok)

	memory.SetEvaluating(true)
	memory.Idle()
	_, ok = memory.Input("Radius")
	assert.True(t, ok)

	memory.SetEvaluating(false)
	memory.Idle()
	_, ok = memory.Input("Diameter")
	assert.True(t, ok)
	assert.Equal(t, 0, memory.IdleHandlerCount())
}

func TestClose_ReleasesHandle(t *testing.T) {
	c, _, dialer := newTestComponent(t, DefaultOptions(nil))
	require.NoError(t, c.SetIdentity(context.Background(), "area"))

	require.NoError(t, c.Close())
	assert.True(t, dialer.last().isClosed())
	require.NoError(t, c.Close())
}
