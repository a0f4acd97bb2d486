// Package param maps remote parameter declarations onto typed parameter slots.
//
// A declaration names a capability kind (Number, Point, Brep, ...) and a
// cardinality. Classify turns it into a SlotSpec the host can build, converting
// any default value into the kind's native representation on the way.
package param

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Kind is the capability tag a remote definition declares for a parameter
type Kind string

const (
	KindArc            Kind = "Arc"
	KindBoolean        Kind = "Boolean"
	KindBox            Kind = "Box"
	KindBrep           Kind = "Brep"
	KindCircle         Kind = "Circle"
	KindColour         Kind = "Colour"
	KindComplex        Kind = "Complex"
	KindCulture        Kind = "Culture"
	KindCurve          Kind = "Curve"
	KindField          Kind = "Field"
	KindFilePath       Kind = "FilePath"
	KindGeometry       Kind = "Geometry"
	KindInteger        Kind = "Integer"
	KindInterval       Kind = "Interval"
	KindInterval2D     Kind = "Interval2D"
	KindLine           Kind = "Line"
	KindMatrix         Kind = "Matrix"
	KindMesh           Kind = "Mesh"
	KindMeshFace       Kind = "MeshFace"
	KindNumber         Kind = "Number"
	KindPlane          Kind = "Plane"
	KindPoint          Kind = "Point"
	KindRectangle      Kind = "Rectangle"
	KindString         Kind = "String"
	KindStructurePath  Kind = "StructurePath"
	KindSubD           Kind = "SubD"
	KindSurface        Kind = "Surface"
	KindTime           Kind = "Time"
	KindTransform      Kind = "Transform"
	KindVector         Kind = "Vector"
	KindGenericObject  Kind = "GenericObject"
	KindGroup          Kind = "Group"
	KindGuid           Kind = "Guid"
	KindLatLonLocation Kind = "LatLonLocation"
	KindMeshParameters Kind = "MeshParameters"
)

// UnsupportedKinds returns the kinds that are recognised but can never be
// turned into a slot.
func UnsupportedKinds() map[Kind]struct{} {
	return map[Kind]struct{}{
		KindGenericObject:  {},
		KindGroup:          {},
		KindGuid:           {},
		KindLatLonLocation: {},
		KindMeshParameters: {},
	}
}

// ValidKinds returns the kinds that can be classified into a slot
func ValidKinds() map[Kind]struct{} {
	kinds := make(map[Kind]struct{}, len(kindTable))
	for kind := range kindTable {
		kinds[kind] = struct{}{}
	}
	return kinds
}

// Supported reports whether the kind maps onto a concrete slot type
func (k Kind) Supported() bool {
	_, ok := kindTable[k]
	return ok
}

// aliases lets wire names from other solvers resolve to the canonical kind
var aliases = map[string]Kind{
	"text":   KindString,
	"color":  KindColour,
	"path":   KindStructurePath,
	"object": KindGenericObject,
}

// ParseKind resolves a wire name to a Kind, ignoring case. Unsupported kinds
// parse successfully; Classify is the place that rejects them.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))

	if kind, ok := aliases[normalized]; ok {
		return kind, nil
	}

	for _, kind := range allKinds() {
		if strings.ToLower(string(kind)) == normalized {
			return kind, nil
		}
	}

	return "", NewUnknownKindError(name, suggestKind(normalized))
}

func allKinds() []Kind {
	kinds := make([]Kind, 0, len(kindTable)+len(UnsupportedKinds()))
	for kind := range kindTable {
		kinds = append(kinds, kind)
	}
	for kind := range UnsupportedKinds() {
		kinds = append(kinds, kind)
	}
	return kinds
}

// suggestKind returns the closest known kind name, if any is near enough
func suggestKind(normalized string) string {
	const maxDistance = 3

	best := ""
	bestDistance := maxDistance + 1
	for _, kind := range allKinds() {
		distance := levenshtein.ComputeDistance(normalized, strings.ToLower(string(kind)))
		if distance < bestDistance || (distance == bestDistance && string(kind) < best) {
			best = string(kind)
			bestDistance = distance
		}
	}

	if bestDistance > maxDistance {
		return ""
	}
	return best
}
