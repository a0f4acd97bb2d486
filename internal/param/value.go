package param

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoResultType is returned when encoding a value for a kind with no wire type
var ErrNoResultType = errors.New("kind has no wire result type")

// EncodeValue returns the wire type and JSON data for a value of the given kind.
// json.RawMessage values are passed through untouched.
func EncodeValue(kind Kind, value any) (string, string, error) {
	resultType := ResultType(kind)
	if resultType == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoResultType, kind)
	}

	if raw, ok := value.(json.RawMessage); ok {
		return resultType, string(raw), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode %s value: %w", kind, err)
	}
	return resultType, string(data), nil
}

// DecodeValue turns wire data back into a native value. Types without a native
// representation come back as json.RawMessage, or as the raw string when the
// data is not JSON at all.
func DecodeValue(resultType, data string) (any, error) {
	switch resultType {
	case "System.Boolean":
		return decodeAs[bool](data)
	case "System.Int32":
		return decodeAs[int](data)
	case "System.Double":
		return decodeAs[float64](data)
	case "System.String":
		var s string
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			// some solvers send strings unquoted
			return data, nil
		}
		return s, nil
	case "Rhino.Geometry.Point3d":
		return decodeAs[Point3d](data)
	case "Rhino.Geometry.Vector3d":
		return decodeAs[Vector3d](data)
	case "Rhino.Geometry.Plane":
		return decodeAs[Plane](data)
	case "Rhino.Geometry.Line":
		return decodeAs[Line](data)
	case "Rhino.Geometry.Interval":
		return decodeAs[Interval](data)
	case "System.Drawing.Color":
		return decodeAs[Colour](data)
	}

	if json.Valid([]byte(data)) {
		return json.RawMessage(data), nil
	}
	return data, nil
}

func decodeAs[T any](data string) (any, error) {
	var value T
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", value, err)
	}
	return value, nil
}

// ParseValue converts a user supplied value into the native value of a kind,
// using the same conversion rules as defaults. Kinds without a native
// representation accept JSON text and keep it opaque.
func ParseValue(kind Kind, raw any) (any, error) {
	entry, ok := kindTable[kind]
	if !ok {
		return nil, NewUnsupportedParameterKindError("", kind, DirectionInput)
	}

	if entry.parseDefault != nil {
		return entry.parseDefault(raw)
	}

	if s, ok := raw.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("%s values must be JSON", kind)
		}
		return json.RawMessage(s), nil
	}
	return raw, nil
}
