package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/host"
	"github.com/dorcha-inc/hops/internal/param"
)

// Handle is the single owner of a remote definition. It is replaced wholesale
// when a component's identity changes.
type Handle struct {
	identity  Identity
	transport Transport

	mu        sync.Mutex
	described *IOResponse

	cache *xsync.MapOf[string, *Schema]

	watchMu sync.Mutex
	watcher *Watcher
}

// NewHandle creates a handle for identity, solving through transport
func NewHandle(identity Identity, transport Transport) *Handle {
	return &Handle{
		identity:  identity,
		transport: transport,
		cache:     xsync.NewMapOf[string, *Schema](),
	}
}

// Identity returns the identity the handle was created for
func (h *Handle) Identity() Identity {
	return h.identity
}

// describe fetches the definition's interface once and keeps it until Invalidate
func (h *Handle) describe(ctx context.Context) (*IOResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.described != nil {
		return h.described, nil
	}

	described, err := h.transport.Describe(ctx)
	if err != nil {
		return nil, NewRemoteUnavailableError(h.identity, err)
	}

	h.described = described
	return described, nil
}

// Invalidate drops the fetched interface and every memoized result
func (h *Handle) Invalidate() {
	h.mu.Lock()
	h.described = nil
	h.mu.Unlock()
	h.cache.Clear()
}

// GetDescription returns the definition's description and custom icon
func (h *Handle) GetDescription(ctx context.Context) (string, []byte, error) {
	described, err := h.describe(ctx)
	if err != nil {
		return "", nil, err
	}
	return described.Description, described.IconBytes(), nil
}

// GetInputParams returns the declared inputs in declaration order
func (h *Handle) GetInputParams(ctx context.Context) ([]param.Declaration, error) {
	described, err := h.describe(ctx)
	if err != nil {
		return nil, err
	}
	return described.Inputs, nil
}

// GetOutputParams returns the declared outputs in declaration order
func (h *Handle) GetOutputParams(ctx context.Context) ([]param.Declaration, error) {
	described, err := h.describe(ctx)
	if err != nil {
		return nil, err
	}
	return described.Outputs, nil
}

// CreateSolveInput builds the payload for the current input values. Inputs
// that do not hold enough values produce warnings; a payload with warnings
// must not be solved.
func (h *Handle) CreateSolveInput(ctx context.Context, access host.DataAccess, cacheOnServer bool) (*Schema, []string, error) {
	inputs, err := h.GetInputParams(ctx)
	if err != nil {
		return nil, nil, err
	}

	schema := &Schema{
		Pointer:    h.transport.Pointer(),
		CacheSolve: cacheOnServer,
		Values:     make([]DataTree, 0, len(inputs)),
	}

	var warnings []string
	for _, decl := range inputs {
		values, ok := access.Input(decl.Name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("Input parameter %s is missing", decl.Name))
			continue
		}

		if len(values) < decl.AtLeast {
			warnings = append(warnings, fmt.Sprintf("Input parameter %s failed to collect data", decl.Name))
			continue
		}

		tree, err := NewDataTree(decl.Name, decl.Kind, values)
		if err != nil {
			return nil, nil, err
		}
		schema.Values = append(schema.Values, tree)
	}

	return schema, warnings, nil
}

// Cached returns a memoized result for the fingerprint
func (h *Handle) Cached(fingerprint string) (*Schema, bool) {
	return h.cache.Load(fingerprint)
}

// Remember memoizes a result under the fingerprint
func (h *Handle) Remember(fingerprint string, output *Schema) {
	h.cache.Store(fingerprint, output)
}

// SolveRemote sends the payload to the solver without consulting the cache
func (h *Handle) SolveRemote(ctx context.Context, input *Schema) (*Schema, error) {
	output, err := h.transport.Solve(ctx, input)
	if err != nil {
		return nil, NewRemoteUnavailableError(h.identity, err)
	}
	return output, nil
}

// Solve solves the payload, reusing and recording memoized results when
// cacheInMemory is set. The second return value reports a cache hit.
func (h *Handle) Solve(ctx context.Context, input *Schema, cacheInMemory bool) (*Schema, bool, error) {
	if !cacheInMemory {
		output, err := h.SolveRemote(ctx, input)
		return output, false, err
	}

	fingerprint, err := Fingerprint(input)
	if err != nil {
		return nil, false, err
	}

	if output, ok := h.Cached(fingerprint); ok {
		return output, true, nil
	}

	output, err := h.SolveRemote(ctx, input)
	if err != nil {
		return nil, false, err
	}

	if len(output.Errors) == 0 {
		h.Remember(fingerprint, output)
	}
	return output, false, nil
}

// SetOutputs distributes a solve result to output slots by name and returns
// how many outputs were written. Values for outputs that have no slot are dropped.
func (h *Handle) SetOutputs(output *Schema, access host.DataAccess) (int, error) {
	written := 0
	for _, tree := range output.Values {
		decoded, err := tree.Decode()
		if err != nil {
			return written, err
		}

		if !access.SetOutput(tree.ParamName, decoded) {
			zap.L().Debug("Dropping value for unknown output",
				zap.String("definition", h.identity.String()),
				zap.String("output", tree.ParamName))
			continue
		}
		written++
	}
	return written, nil
}

// Watch calls onChange whenever the file behind a path identity changes.
// Identities that are not local files are not watched.
func (h *Handle) Watch(onChange func()) error {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	if h.watcher != nil {
		return nil
	}

	path := pointerFor(h.identity)
	if h.identity.IsEndpoint() || !isRegularFile(path) {
		return nil
	}

	watcher, err := WatchFile(path, func() {
		h.Invalidate()
		onChange()
	})
	if err != nil {
		return err
	}

	h.watcher = watcher
	return nil
}

// Close releases the transport, the file watcher and the memoized results
func (h *Handle) Close() error {
	h.watchMu.Lock()
	watcher := h.watcher
	h.watcher = nil
	h.watchMu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			zap.L().Warn("Failed to stop definition watcher", zap.Error(err))
		}
	}

	h.cache.Clear()
	return h.transport.Close()
}
