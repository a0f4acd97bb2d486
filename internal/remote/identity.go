// Package remote talks to the solvers that host remote definitions.
//
// A Handle owns one definition identity. It lazily fetches the definition's
// declared parameters, solves input payloads through a Transport and memoizes
// results by input fingerprint.
package remote

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
)

const mcpScheme = "mcp:"

// Identity names a remote definition: an http(s) endpoint, a path or registry
// name the compute server understands, or mcp:<tool>.
type Identity string

// Equal compares identities with Unicode case folding
func (i Identity) Equal(other Identity) bool {
	// a Caser is stateful, so each comparison gets its own
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(string(i))) == fold.String(strings.TrimSpace(string(other)))
}

// IsEmpty reports whether the identity is unset
func (i Identity) IsEmpty() bool {
	return strings.TrimSpace(string(i)) == ""
}

func (i Identity) String() string {
	return string(i)
}

// IsEndpoint reports whether the identity is an http(s) URL served directly
func (i Identity) IsEndpoint() bool {
	u, err := url.Parse(strings.TrimSpace(string(i)))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// MCPTool returns the tool name of an mcp:<tool> identity
func (i Identity) MCPTool() (string, bool) {
	trimmed := strings.TrimSpace(string(i))
	if len(trimmed) <= len(mcpScheme) || !strings.EqualFold(trimmed[:len(mcpScheme)], mcpScheme) {
		return "", false
	}
	return trimmed[len(mcpScheme):], true
}
