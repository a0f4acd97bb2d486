// Package server implements the hops local solver. It hosts the definitions
// found in the definitions directory and exposes them over HTTP, in the
// shape the remote transports expect, and as MCP tools.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/config"
	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/definition"
	"github.com/dorcha-inc/hops/internal/remote"
)

// Version is reported to MCP clients
const Version = "1.0.0"

// Executor runs a definition program on a JSON object of inputs
type Executor interface {
	ExecuteJSON(ctx context.Context, entry *core.Entrypoint, input map[string]any) (map[string]any, error)
}

var _ Executor = &core.DefinitionExecutor{}

// Server stores the state and dependencies of the local solver
type Server struct {
	configPath string

	mu              sync.RWMutex
	config          *config.HopsConfig
	executor        Executor
	registry        *definition.Registry
	mcpServer       *mcp.Server
	registeredTools mapset.Set[string]

	httpHandler *mcp.StreamableHTTPHandler
	// results caches solve outputs by input fingerprint for cachesolve requests
	results *xsync.MapOf[string, *remote.Schema]
}

// NewServer creates a server for the definitions in cfg.DefinitionsDir
func NewServer(cfg *config.HopsConfig, configPath string) *Server {
	return NewServerWithExecutor(cfg, configPath, core.NewDefinitionExecutor(cfg.SolveTimeout))
}

// NewServerWithExecutor creates a server with a custom executor
func NewServerWithExecutor(cfg *config.HopsConfig, configPath string, executor Executor) *Server {
	s := &Server{
		configPath:      configPath,
		config:          cfg,
		executor:        executor,
		registeredTools: mapset.NewSet[string](),
		results:         xsync.NewMapOf[string, *remote.Schema](),
	}

	s.rebuildServer()

	s.httpHandler = mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return s.mcpServer
		},
		&mcp.StreamableHTTPOptions{Stateless: false},
	)

	return s
}

// rebuildServer rescans the definitions directory and replaces the MCP
// server. Connections already running keep the server they started with.
func (s *Server) rebuildServer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry := definition.NewRegistry()
	if _, err := registry.Scan(s.config.DefinitionsDir); err != nil {
		zap.L().Error("Failed to scan definitions", zap.String("directory", s.config.DefinitionsDir), zap.Error(err))
	}

	if registry.Len() == 0 {
		zap.L().Warn("No definitions found",
			zap.String("directory", s.config.DefinitionsDir),
			zap.String("hint", "Add a directory containing a definition.yaml to the definitions directory"))
	} else {
		zap.L().Info("Discovered definitions",
			zap.Int("count", registry.Len()),
			zap.String("directory", s.config.DefinitionsDir))
	}

	s.registry = registry
	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: "hops", Version: Version}, nil)
	s.registeredTools = mapset.NewSet[string]()
	s.results.Clear()

	for _, def := range registry.List() {
		s.registerTool(def)
	}
}

// registerTool publishes one definition as an MCP tool. Callers hold s.mu.
func (s *Server) registerTool(def *definition.Definition) {
	handler := func(ctx context.Context, req *mcp.CallToolRequest, input map[string]any) (
		result *mcp.CallToolResult,
		output map[string]any,
		err error,
	) {
		defer func() {
			if r := recover(); r != nil {
				core.LogPanicRecovery("tool handler", r)
				result = &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{
						&mcp.TextContent{Text: fmt.Sprintf("internal error: panic recovered in definition execution: %v", r)},
					},
				}
				output = nil
				err = nil
			}
		}()
		return s.handleToolCall(ctx, def, input)
	}

	meta := mcp.Meta{
		remote.MetaInputs:  def.Inputs(),
		remote.MetaOutputs: def.Outputs(),
	}
	if icon := def.Describe().Icon; icon != "" {
		meta[remote.MetaIcon] = icon
	}

	tool := &mcp.Tool{
		Name:         def.Name(),
		Description:  def.Manifest.Description,
		InputSchema:  remote.JSONSchema(def.Inputs(), true),
		OutputSchema: remote.JSONSchema(def.Outputs(), false),
		Meta:         meta,
	}

	mcp.AddTool(s.mcpServer, tool, handler)
	s.registeredTools.Add(def.Name())

	zap.L().Debug("Registered definition as MCP tool",
		zap.String("tool", def.Name()),
		zap.String("path", def.Dir))
}

func (s *Server) handleToolCall(ctx context.Context, def *definition.Definition, input map[string]any) (*mcp.CallToolResult, map[string]any, error) {
	start := time.Now()

	output, err := s.execute(ctx, def, input)
	core.LogRequest("tools/call "+def.Name(), time.Since(start).Seconds(), err)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		}, nil, nil
	}

	// the SDK fills StructuredContent from the returned map
	return &mcp.CallToolResult{}, output, nil
}

// execute fills in defaults for missing inputs and runs the definition
func (s *Server) execute(ctx context.Context, def *definition.Definition, arguments map[string]any) (map[string]any, error) {
	input := make(map[string]any, len(arguments))
	for _, decl := range def.Inputs() {
		if value, ok := arguments[decl.Name]; ok {
			input[decl.Name] = value
			continue
		}
		if decl.HasDefault() {
			input[decl.Name] = decl.Default
		}
	}

	s.mu.RLock()
	executor := s.executor
	s.mu.RUnlock()

	return executor.ExecuteJSON(ctx, def.Entrypoint(), input)
}

// Describe returns the interface of the definition a pointer refers to
func (s *Server) Describe(pointer string) (*remote.IOResponse, error) {
	def, err := s.resolve(pointer)
	if err != nil {
		return nil, err
	}
	return def.Describe(), nil
}

// Solve runs the definition named by input.Pointer. Failures of the
// definition itself are reported in the result's Errors; only a missing
// definition or an undecodable payload is returned as an error.
func (s *Server) Solve(ctx context.Context, input *remote.Schema) (*remote.Schema, error) {
	def, err := s.resolve(input.Pointer)
	if err != nil {
		return nil, err
	}

	var fingerprint string
	if input.CacheSolve {
		if fingerprint, err = remote.Fingerprint(input); err != nil {
			return nil, err
		}
		if cached, ok := s.results.Load(fingerprint); ok {
			zap.L().Debug("Serving cached solve", zap.String("definition", def.Name()))
			return cached, nil
		}
	}

	arguments, err := remote.Arguments(input, def.Inputs())
	if err != nil {
		return nil, NewBadRequestError(err)
	}

	output, err := s.execute(ctx, def, arguments)
	if err != nil {
		return &remote.Schema{Pointer: input.Pointer, Errors: []string{err.Error()}}, nil
	}

	result, err := remote.SchemaFromOutput(input.Pointer, output, def.Outputs())
	if err != nil {
		return &remote.Schema{Pointer: input.Pointer, Errors: []string{err.Error()}}, nil
	}

	if input.CacheSolve && len(result.Errors) == 0 {
		s.results.Store(fingerprint, result)
	}
	return result, nil
}

func (s *Server) resolve(pointer string) (*definition.Definition, error) {
	s.mu.RLock()
	registry := s.registry
	s.mu.RUnlock()
	return registry.Resolve(pointer)
}

// Definitions returns the registered definition names
func (s *Server) Definitions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, s.registry.Len())
	for _, def := range s.registry.List() {
		names = append(names, def.Name())
	}
	return names
}

// Reload reloads configuration and rescans the definitions directory
func (s *Server) Reload() error {
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("reload", r)
		}
	}()

	if s.configPath != "" {
		cfg, err := config.LoadConfig(s.configPath)
		if err != nil {
			return fmt.Errorf("failed to reload configuration: %w", err)
		}

		s.mu.Lock()
		s.config = cfg
		s.executor = core.NewDefinitionExecutor(cfg.SolveTimeout)
		s.mu.Unlock()
	}

	s.rebuildServer()
	return nil
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /definitions", s.handleList)
	mux.HandleFunc("GET /definitions/{name}", s.handleDescribeEndpoint)
	mux.HandleFunc("POST /definitions/{name}", s.handleSolveEndpoint)
	mux.HandleFunc("POST /io", s.handleIO)
	mux.HandleFunc("POST /solve", s.handleSolve)
	// MCP endpoint that handles both POST (client requests) and GET (SSE stream)
	mux.Handle("/mcp", s.httpHandler)
	return mux
}

// Serve listens on addr and serves until ctx is done. When announce is set
// the server's base URL is written to it as a hello line once listening.
func (s *Server) Serve(ctx context.Context, addr string, announce func(baseURL string) error) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	baseURL := "http://" + listener.Addr().String()
	zap.L().Info("Server listening", zap.String("address", baseURL))

	if announce != nil {
		if err := announce(baseURL); err != nil {
			core.LogDeferredError(listener.Close)
			return fmt.Errorf("failed to announce server: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Server shutdown error", zap.Error(err))
		}
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// ServeStdio serves MCP over stdin and stdout
func (s *Server) ServeStdio(ctx context.Context) error {
	s.mu.RLock()
	server := s.mcpServer
	s.mu.RUnlock()
	return server.Run(ctx, &mcp.StdioTransport{})
}
