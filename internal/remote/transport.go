package remote

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Transport carries requests for one definition to the solver hosting it
type Transport interface {
	// Pointer is how the solver refers to the definition in payloads
	Pointer() string
	Describe(ctx context.Context) (*IOResponse, error)
	Solve(ctx context.Context, input *Schema) (*Schema, error)
	Close() error
}

// Dialer opens a Transport for an identity
type Dialer interface {
	Dial(ctx context.Context, identity Identity) (Transport, error)
}

// DialerOptions configures the default dialer
type DialerOptions struct {
	// Servers are compute server base URLs, tried in order for path identities
	Servers []string
	// HTTPTimeout bounds every HTTP request
	HTTPTimeout time.Duration
	// MCPCommand starts an MCP solver speaking stdio, used for mcp: identities
	MCPCommand []string
	// MCPEndpoint is a streamable HTTP MCP solver, used when MCPCommand is empty
	MCPEndpoint string
}

// DefaultDialer picks a transport from the shape of the identity
type DefaultDialer struct {
	opts   DialerOptions
	client *http.Client
}

// NewDialer creates a dialer with the given options
func NewDialer(opts DialerOptions) *DefaultDialer {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &DefaultDialer{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
	}
}

var _ Dialer = &DefaultDialer{}

func (d *DefaultDialer) Dial(ctx context.Context, identity Identity) (Transport, error) {
	if identity.IsEmpty() {
		return nil, fmt.Errorf("cannot dial an empty identity")
	}

	if tool, ok := identity.MCPTool(); ok {
		var (
			transport *MCPTransport
			err       error
		)
		switch {
		case len(d.opts.MCPCommand) > 0:
			transport, err = DialMCPCommand(ctx, d.opts.MCPCommand, tool)
		case d.opts.MCPEndpoint != "":
			transport, err = DialMCPEndpoint(ctx, d.opts.MCPEndpoint, d.client, tool)
		default:
			err = fmt.Errorf("no MCP solver configured")
		}
		if err != nil {
			return nil, NewRemoteUnavailableError(identity, err)
		}
		return transport, nil
	}

	if identity.IsEndpoint() {
		return NewEndpointTransport(strings.TrimSpace(string(identity)), d.client), nil
	}

	if len(d.opts.Servers) == 0 {
		return nil, NewRemoteUnavailableError(identity, fmt.Errorf("no compute server configured"))
	}

	return NewComputeTransport(d.opts.Servers[0], pointerFor(identity), d.client), nil
}

// pointerFor makes local paths absolute so the server sees the same file
// regardless of the caller's working directory. Anything that is not an
// existing file is passed through as a name.
func pointerFor(identity Identity) string {
	pointer := strings.TrimSpace(string(identity))
	if _, err := os.Stat(pointer); err != nil {
		return pointer
	}
	if abs, err := filepath.Abs(pointer); err == nil {
		return abs
	}
	return pointer
}
