package remote

import (
	"encoding/base64"
	"fmt"
	"slices"

	"github.com/dorcha-inc/hops/internal/param"
)

// DefaultPath is the tree path single-branch values are written to
const DefaultPath = "0"

// Item is one encoded value in a data tree
type Item struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// DataTree holds the values of one parameter, grouped by path
type DataTree struct {
	ParamName string            `json:"ParamName"`
	InnerTree map[string][]Item `json:"InnerTree"`
}

// Paths returns the tree's paths in a stable order
func (t DataTree) Paths() []string {
	paths := make([]string, 0, len(t.InnerTree))
	for path := range t.InnerTree {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

// Decode turns every item in the tree into a native value
func (t DataTree) Decode() (map[string][]any, error) {
	decoded := make(map[string][]any, len(t.InnerTree))
	for path, items := range t.InnerTree {
		values := make([]any, 0, len(items))
		for _, item := range items {
			value, err := param.DecodeValue(item.Type, item.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode %s at path %s: %w", t.ParamName, path, err)
			}
			values = append(values, value)
		}
		decoded[path] = values
	}
	return decoded, nil
}

// NewDataTree encodes values of the given kind into a single-branch tree
func NewDataTree(name string, kind param.Kind, values []any) (DataTree, error) {
	items := make([]Item, 0, len(values))
	for _, value := range values {
		resultType, data, err := param.EncodeValue(kind, value)
		if err != nil {
			return DataTree{}, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		items = append(items, Item{Type: resultType, Data: data})
	}

	return DataTree{
		ParamName: name,
		InnerTree: map[string][]Item{DefaultPath: items},
	}, nil
}

// Schema is the payload exchanged with a solver, in both directions
type Schema struct {
	Pointer    string     `json:"pointer,omitempty"`
	Algo       string     `json:"algo,omitempty"`
	CacheSolve bool       `json:"cachesolve"`
	Values     []DataTree `json:"values"`
	Warnings   []string   `json:"warnings,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
}

// Value returns the tree for the named parameter
func (s *Schema) Value(name string) (DataTree, bool) {
	for _, tree := range s.Values {
		if tree.ParamName == name {
			return tree, true
		}
	}
	return DataTree{}, false
}

// IORequest asks a compute server to describe a definition
type IORequest struct {
	Pointer string `json:"pointer"`
}

// IOResponse is a definition's declared interface
type IOResponse struct {
	Description string              `json:"Description"`
	Icon        string              `json:"Icon,omitempty"`
	Inputs      []param.Declaration `json:"Inputs"`
	Outputs     []param.Declaration `json:"Outputs"`
}

// IconBytes decodes the icon. Icons are usually base64 encoded images; SVG
// text is passed through as is.
func (r *IOResponse) IconBytes() []byte {
	if r.Icon == "" {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(r.Icon); err == nil {
		return decoded
	}
	return []byte(r.Icon)
}
