package param

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConcreteType is the typed slot a host builds for a parameter
type ConcreteType string

const (
	TypeArc           ConcreteType = "Arc"
	TypeBoolean       ConcreteType = "Boolean"
	TypeBox           ConcreteType = "Box"
	TypeBrep          ConcreteType = "Brep"
	TypeCircle        ConcreteType = "Circle"
	TypeColour        ConcreteType = "Colour"
	TypeComplex       ConcreteType = "Complex"
	TypeCulture       ConcreteType = "Culture"
	TypeCurve         ConcreteType = "Curve"
	TypeField         ConcreteType = "Field"
	TypeGeometry      ConcreteType = "Geometry"
	TypeInteger       ConcreteType = "Integer"
	TypeInterval      ConcreteType = "Interval"
	TypeInterval2D    ConcreteType = "Interval2D"
	TypeLine          ConcreteType = "Line"
	TypeMatrix        ConcreteType = "Matrix"
	TypeMesh          ConcreteType = "Mesh"
	TypeMeshFace      ConcreteType = "MeshFace"
	TypeNumber        ConcreteType = "Number"
	TypePlane         ConcreteType = "Plane"
	TypePoint         ConcreteType = "Point"
	TypeRectangle     ConcreteType = "Rectangle"
	TypeStructurePath ConcreteType = "StructurePath"
	TypeSubD          ConcreteType = "SubD"
	TypeSurface       ConcreteType = "Surface"
	TypeText          ConcreteType = "Text"
	TypeTime          ConcreteType = "Time"
	TypeTransform     ConcreteType = "Transform"
	TypeVector        ConcreteType = "Vector"
)

// SlotSpec is everything a host needs to build one typed slot
type SlotSpec struct {
	Name        string
	Nickname    string
	Description string
	Direction   Direction
	Access      Access
	Kind        Kind
	Type        ConcreteType
	Default     any
	HasDefault  bool
}

// defaultParser converts an opaque default into the native value of a kind
type defaultParser func(raw any) (any, error)

type kindEntry struct {
	concrete   ConcreteType
	resultType string
	// nil when the kind has no native default; the raw value is then dropped
	parseDefault defaultParser
}

var kindTable = map[Kind]kindEntry{
	KindArc:           {TypeArc, "Rhino.Geometry.Arc", nil},
	KindBoolean:       {TypeBoolean, "System.Boolean", parseBool},
	KindBox:           {TypeBox, "Rhino.Geometry.Box", nil},
	KindBrep:          {TypeBrep, "Rhino.Geometry.Brep", nil},
	KindCircle:        {TypeCircle, "Rhino.Geometry.Circle", nil},
	KindColour:        {TypeColour, "System.Drawing.Color", structured[Colour]},
	KindComplex:       {TypeComplex, "Grasshopper.Kernel.Types.Complex", nil},
	KindCulture:       {TypeCulture, "System.Globalization.CultureInfo", nil},
	KindCurve:         {TypeCurve, "Rhino.Geometry.Curve", nil},
	KindField:         {TypeField, "Grasshopper.Kernel.Types.GH_Field", nil},
	KindFilePath:      {TypeText, "System.String", parseText},
	KindGeometry:      {TypeGeometry, "Rhino.Geometry.GeometryBase", nil},
	KindInteger:       {TypeInteger, "System.Int32", parseInt},
	KindInterval:      {TypeInterval, "Rhino.Geometry.Interval", structured[Interval]},
	KindInterval2D:    {TypeInterval2D, "Grasshopper.Kernel.Types.UVInterval", nil},
	KindLine:          {TypeLine, "Rhino.Geometry.Line", structured[Line]},
	KindMatrix:        {TypeMatrix, "Rhino.Geometry.Matrix", nil},
	KindMesh:          {TypeMesh, "Rhino.Geometry.Mesh", nil},
	KindMeshFace:      {TypeMeshFace, "Rhino.Geometry.MeshFace", nil},
	KindNumber:        {TypeNumber, "System.Double", parseNumber},
	KindPlane:         {TypePlane, "Rhino.Geometry.Plane", structured[Plane]},
	KindPoint:         {TypePoint, "Rhino.Geometry.Point3d", structured[Point3d]},
	KindRectangle:     {TypeRectangle, "Rhino.Geometry.Rectangle3d", nil},
	KindString:        {TypeText, "System.String", parseText},
	KindStructurePath: {TypeStructurePath, "Grasshopper.Kernel.Data.GH_Path", nil},
	KindSubD:          {TypeSubD, "Rhino.Geometry.SubD", nil},
	KindSurface:       {TypeSurface, "Rhino.Geometry.Brep", nil},
	KindTime:          {TypeTime, "System.DateTime", nil},
	KindTransform:     {TypeTransform, "Rhino.Geometry.Transform", nil},
	KindVector:        {TypeVector, "Rhino.Geometry.Vector3d", structured[Vector3d]},
}

// Classify maps a declaration onto the slot the host should build for it.
// Inputs take item or list cardinality from AtLeast/AtMost; outputs are always
// tree-shaped.
func Classify(decl Declaration, direction Direction) (SlotSpec, error) {
	entry, ok := kindTable[decl.Kind]
	if !ok {
		if _, unsupported := UnsupportedKinds()[decl.Kind]; unsupported {
			return SlotSpec{}, NewUnsupportedParameterKindError(decl.Name, decl.Kind, direction)
		}
		kind, err := ParseKind(string(decl.Kind))
		if err != nil {
			return SlotSpec{}, fmt.Errorf("%s parameter %q: %w", direction, decl.Name, err)
		}
		decl.Kind = kind
		return Classify(decl, direction)
	}

	spec := SlotSpec{
		Name:        decl.Name,
		Nickname:    decl.Nickname,
		Description: decl.Description,
		Direction:   direction,
		Kind:        decl.Kind,
		Type:        entry.concrete,
	}

	if spec.Nickname == "" {
		spec.Nickname = decl.Name
	}
	if spec.Description == "" {
		spec.Description = decl.Name
	}

	if direction == DirectionOutput {
		spec.Access = AccessTree
		return spec, nil
	}

	spec.Access = InputAccess(decl.AtLeast, decl.AtMost)

	if decl.HasDefault() && entry.parseDefault != nil {
		value, err := entry.parseDefault(decl.Default)
		if err != nil {
			return SlotSpec{}, NewMalformedDefaultError(decl.Name, decl.Kind, err)
		}
		spec.Default = value
		spec.HasDefault = true
	}

	return spec, nil
}

// ResultType returns the wire type name used when encoding values of a kind
func ResultType(kind Kind) string {
	return kindTable[kind].resultType
}

func parseBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to boolean", v)
		}
		return b, nil
	}

	if f, ok := toFloat(raw); ok {
		return f != 0, nil
	}
	return nil, fmt.Errorf("cannot convert %T to boolean", raw)
}

func parseInt(raw any) (any, error) {
	var f float64
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to integer", v)
		}
		f = parsed
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		converted, ok := toFloat(raw)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to integer", raw)
		}
		f = converted
	}

	rounded := math.RoundToEven(f)
	if math.IsNaN(rounded) || rounded > math.MaxInt32 || rounded < math.MinInt32 {
		return nil, fmt.Errorf("value %v is out of range for an integer", f)
	}
	return int(rounded), nil
}

func parseNumber(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to number", v)
		}
		return f, nil
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	}

	if f, ok := toFloat(raw); ok {
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to number", raw)
}

func parseText(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return fmt.Sprint(raw), nil
}

// structured decodes either a JSON object or a JSON-encoded string into T
func structured[T any](raw any) (any, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case json.RawMessage:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = encoded
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
