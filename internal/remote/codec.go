package remote

import (
	"fmt"

	"github.com/dorcha-inc/hops/internal/param"
)

// Keys of an output object that carry solver messages rather than values
const (
	OutputWarnings = "warnings"
	OutputErrors   = "errors"
)

// Arguments flattens a solve payload into a JSON object keyed by parameter
// name. Item parameters become a single value, all others a list.
func Arguments(input *Schema, declarations []param.Declaration) (map[string]any, error) {
	arguments := make(map[string]any, len(input.Values))
	for _, decl := range declarations {
		tree, ok := input.Value(decl.Name)
		if !ok {
			continue
		}

		decoded, err := tree.Decode()
		if err != nil {
			return nil, err
		}

		var values []any
		for _, path := range tree.Paths() {
			values = append(values, decoded[path]...)
		}

		if decl.IsItem() {
			if len(values) > 0 {
				arguments[decl.Name] = values[0]
			}
			continue
		}
		arguments[decl.Name] = values
	}
	return arguments, nil
}

// SchemaFromOutput builds a solve result from a JSON object keyed by
// output name. Keys that name no declared output are ignored.
func SchemaFromOutput(pointer string, output map[string]any, declarations []param.Declaration) (*Schema, error) {
	schema := &Schema{
		Pointer:  pointer,
		Warnings: messages(output[OutputWarnings]),
		Errors:   messages(output[OutputErrors]),
	}

	for _, decl := range declarations {
		value, ok := output[decl.Name]
		if !ok {
			continue
		}

		values, isList := value.([]any)
		if !isList {
			values = []any{value}
		}

		tree, err := NewDataTree(decl.Name, decl.Kind, values)
		if err != nil {
			return nil, err
		}
		schema.Values = append(schema.Values, tree)
	}

	return schema, nil
}

func messages(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, m := range v {
			out = append(out, fmt.Sprint(m))
		}
		return out
	case []string:
		return v
	default:
		return []string{fmt.Sprint(v)}
	}
}

// JSONSchema describes declarations as a JSON schema object. Every property
// carries its kind under SchemaKindKey. With required set, inputs that need
// a value and have no default are listed as required.
func JSONSchema(declarations []param.Declaration, required bool) map[string]any {
	properties := make(map[string]any, len(declarations))
	requiredNames := []string{}

	for _, decl := range declarations {
		property := map[string]any{SchemaKindKey: string(decl.Kind)}
		if decl.Description != "" {
			property["description"] = decl.Description
		}

		jsonType := JSONType(decl.Kind)
		if decl.IsItem() {
			if jsonType != "" {
				property["type"] = jsonType
			}
		} else {
			property["type"] = "array"
			items := map[string]any{}
			if jsonType != "" {
				items["type"] = jsonType
			}
			property["items"] = items
			if decl.AtLeast > 0 {
				property["minItems"] = decl.AtLeast
			}
			if decl.AtMost != param.Unbounded {
				property["maxItems"] = decl.AtMost
			}
		}

		if decl.HasDefault() {
			property["default"] = decl.Default
		} else if required && decl.AtLeast > 0 {
			requiredNames = append(requiredNames, decl.Name)
		}

		properties[decl.Name] = property
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(requiredNames) > 0 {
		schema["required"] = requiredNames
	}
	return schema
}

// JSONType returns the JSON schema type of a kind's values, or "" when the
// values are structured
func JSONType(kind param.Kind) string {
	switch kind {
	case param.KindNumber:
		return "number"
	case param.KindInteger:
		return "integer"
	case param.KindBoolean:
		return "boolean"
	case param.KindString:
		return "string"
	default:
		return ""
	}
}

func kindForJSONType(jsonType string) param.Kind {
	switch jsonType {
	case "number":
		return param.KindNumber
	case "integer":
		return param.KindInteger
	case "boolean":
		return param.KindBoolean
	case "string":
		return param.KindString
	default:
		return param.KindGenericObject
	}
}
