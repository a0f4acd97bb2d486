package param

import (
	"encoding/json"
	"fmt"
)

// Declaration is one named parameter as a remote definition declares it
type Declaration struct {
	Name        string `json:"Name" yaml:"name" validate:"required"`
	Nickname    string `json:"Nickname,omitempty" yaml:"nickname,omitempty"`
	Description string `json:"Description,omitempty" yaml:"description,omitempty"`
	Kind        Kind   `json:"ParamType" yaml:"kind" validate:"required"`
	ResultType  string `json:"ResultType,omitempty" yaml:"-"`
	AtLeast     int    `json:"AtLeast" yaml:"at_least" validate:"gte=0"`
	AtMost      int    `json:"AtMost" yaml:"at_most" validate:"gte=0"`
	Default     any    `json:"Default,omitempty" yaml:"default,omitempty"`
}

// HasDefault reports whether the declaration carries a default value
func (d Declaration) HasDefault() bool {
	return d.Default != nil
}

// IsItem reports whether the declaration describes exactly one value
func (d Declaration) IsItem() bool {
	return InputAccess(d.AtLeast, d.AtMost) == AccessItem
}

// UnmarshalJSON applies the wire defaults: a missing AtLeast means 1 and a
// missing AtMost means unbounded. Kind names are resolved case-insensitively
// but kept verbatim when unknown so classification can report them.
func (d *Declaration) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name        string `json:"Name"`
		Nickname    string `json:"Nickname"`
		Description string `json:"Description"`
		ParamType   string `json:"ParamType"`
		ResultType  string `json:"ResultType"`
		AtLeast     *int   `json:"AtLeast"`
		AtMost      *int   `json:"AtMost"`
		Default     any    `json:"Default"`
	}

	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to decode parameter declaration: %w", err)
	}

	*d = Declaration{
		Name:        wire.Name,
		Nickname:    wire.Nickname,
		Description: wire.Description,
		Kind:        Kind(wire.ParamType),
		ResultType:  wire.ResultType,
		AtLeast:     1,
		AtMost:      Unbounded,
		Default:     wire.Default,
	}

	if kind, err := ParseKind(wire.ParamType); err == nil {
		d.Kind = kind
	}
	if wire.AtLeast != nil {
		d.AtLeast = *wire.AtLeast
	}
	if wire.AtMost != nil {
		d.AtMost = *wire.AtMost
	}

	return nil
}
