package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/param"
)

const (
	// MetaInputs and MetaOutputs carry exact declarations in a tool's _meta
	MetaInputs  = "hops/inputs"
	MetaOutputs = "hops/outputs"
	// MetaIcon carries a base64 icon in a tool's _meta
	MetaIcon = "hops/icon"
	// SchemaKindKey annotates a JSON schema property with its parameter kind
	SchemaKindKey = "x-hops-kind"
)

// MCPTransport solves a definition exposed as a tool by an MCP server.
// Tools published by `hops serve` carry their declarations in _meta; any
// other tool is described from its JSON schemas.
type MCPTransport struct {
	tool    string
	session *mcp.ClientSession
	cmd     *exec.Cmd

	mu        sync.Mutex
	described *IOResponse
}

var _ Transport = &MCPTransport{}

func newMCPClient() *mcp.Client {
	return mcp.NewClient(&mcp.Implementation{
		Name:    "hops",
		Version: "1.0.0",
	}, nil)
}

// DialMCPCommand starts an MCP solver process and connects to it over stdio
func DialMCPCommand(ctx context.Context, command []string, tool string) (*MCPTransport, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty MCP solver command")
	}

	// #nosec G204 -- the solver command comes from the user's configuration
	cmd := exec.Command(command[0], command[1:]...)
	session, err := newMCPClient().Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP solver: %w", err)
	}

	zap.L().Debug("Connected to MCP solver", zap.Strings("command", command), zap.String("tool", tool))
	return &MCPTransport{tool: tool, session: session, cmd: cmd}, nil
}

// DialMCPEndpoint connects to a streamable HTTP MCP solver
func DialMCPEndpoint(ctx context.Context, endpoint string, client *http.Client, tool string) (*MCPTransport, error) {
	transport := &mcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: client,
	}

	session, err := newMCPClient().Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP solver: %w", err)
	}

	zap.L().Debug("Connected to MCP solver", zap.String("endpoint", endpoint), zap.String("tool", tool))
	return &MCPTransport{tool: tool, session: session}, nil
}

func (t *MCPTransport) Pointer() string {
	return mcpScheme + t.tool
}

func (t *MCPTransport) Describe(ctx context.Context) (*IOResponse, error) {
	result, err := t.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tool := findTool(result.Tools, t.tool)
	if tool == nil {
		return nil, fmt.Errorf("%w: tool %s", ErrDefinitionNotFound, t.tool)
	}

	response, err := describeTool(tool)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.described = response
	t.mu.Unlock()

	return response, nil
}

func (t *MCPTransport) Solve(ctx context.Context, input *Schema) (*Schema, error) {
	t.mu.Lock()
	described := t.described
	t.mu.Unlock()

	if described == nil {
		var err error
		if described, err = t.Describe(ctx); err != nil {
			return nil, err
		}
	}

	arguments, err := Arguments(input, described.Inputs)
	if err != nil {
		return nil, err
	}

	result, err := t.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.tool,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	if result.IsError {
		return &Schema{Pointer: t.Pointer(), Errors: []string{textContent(result)}}, nil
	}

	structured, err := structuredOutput(result)
	if err != nil {
		return nil, err
	}

	return SchemaFromOutput(t.Pointer(), structured, described.Outputs)
}

func (t *MCPTransport) Close() error {
	var errs []error
	if t.session != nil {
		if err := t.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session: %w", err))
		}
	}

	if t.cmd != nil && t.cmd.Process != nil && t.cmd.ProcessState == nil {
		if err := t.cmd.Process.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill solver: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing MCP transport: %v", errs)
	}
	return nil
}

func findTool(tools []*mcp.Tool, name string) *mcp.Tool {
	for _, tool := range tools {
		if tool.Name == name {
			return tool
		}
	}
	for _, tool := range tools {
		if strings.EqualFold(tool.Name, name) {
			return tool
		}
	}
	return nil
}

// jsonSchema is the subset of JSON schema used to derive declarations
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *jsonSchema            `json:"items"`
	Default     any                    `json:"default"`
	MinItems    *int                   `json:"minItems"`
	MaxItems    *int                   `json:"maxItems"`
	// HopsKind names the parameter kind when the JSON type is too coarse
	HopsKind string `json:"x-hops-kind"`
}

func describeTool(tool *mcp.Tool) (*IOResponse, error) {
	response := &IOResponse{Description: tool.Description}

	if icon, ok := tool.Meta[MetaIcon].(string); ok {
		response.Icon = icon
	}

	inputs, err := declarationsFromMeta(tool.Meta, MetaInputs)
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		if inputs, err = declarationsFromSchema(tool.InputSchema); err != nil {
			return nil, fmt.Errorf("failed to read input schema of %s: %w", tool.Name, err)
		}
	}

	outputs, err := declarationsFromMeta(tool.Meta, MetaOutputs)
	if err != nil {
		return nil, err
	}
	if outputs == nil {
		if outputs, err = declarationsFromSchema(tool.OutputSchema); err != nil {
			return nil, fmt.Errorf("failed to read output schema of %s: %w", tool.Name, err)
		}
	}

	response.Inputs = inputs
	response.Outputs = outputs
	return response, nil
}

func declarationsFromMeta(meta mcp.Meta, key string) ([]param.Declaration, error) {
	raw, ok := meta[key]
	if !ok {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}

	declarations := []param.Declaration{}
	if err := json.Unmarshal(data, &declarations); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return declarations, nil
}

func declarationsFromSchema(schema any) ([]param.Declaration, error) {
	declarations := []param.Declaration{}
	if schema == nil {
		return declarations, nil
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var parsed jsonSchema
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		names = append(names, name)
	}
	// required properties first, each group alphabetically
	slices.SortFunc(names, func(a, b string) int {
		ra, rb := slices.Contains(parsed.Required, a), slices.Contains(parsed.Required, b)
		if ra != rb {
			if ra {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})

	for _, name := range names {
		declarations = append(declarations, declarationFromProperty(name, parsed.Properties[name]))
	}
	return declarations, nil
}

func declarationFromProperty(name string, property *jsonSchema) param.Declaration {
	decl := param.Declaration{
		Name:        name,
		Description: property.Description,
		AtLeast:     1,
		AtMost:      1,
		Default:     property.Default,
		Kind:        kindForJSONType(property.Type),
	}

	if property.Type == "array" {
		decl.AtLeast = 0
		decl.AtMost = param.Unbounded
		if property.MinItems != nil {
			decl.AtLeast = *property.MinItems
		}
		if property.MaxItems != nil {
			decl.AtMost = *property.MaxItems
		}
		decl.Kind = param.KindGenericObject
		if property.Items != nil {
			decl.Kind = kindForJSONType(property.Items.Type)
		}
	}

	if property.HopsKind != "" {
		if kind, err := param.ParseKind(property.HopsKind); err == nil {
			decl.Kind = kind
		} else {
			zap.L().Debug("Ignoring unknown x-hops-kind",
				zap.String("property", name),
				zap.String("kind", property.HopsKind),
				zap.Error(err))
		}
	}

	decl.ResultType = param.ResultType(decl.Kind)
	return decl
}

func structuredOutput(result *mcp.CallToolResult) (map[string]any, error) {
	var data []byte
	if result.StructuredContent != nil {
		encoded, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return nil, fmt.Errorf("failed to encode structured content: %w", err)
		}
		data = encoded
	} else {
		data = []byte(textContent(result))
	}

	output := map[string]any{}
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("tool output is not a JSON object: %w", err)
	}
	return output, nil
}

func textContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
