package param

import "fmt"

// UnsupportedParameterKindError is returned when a declaration uses a kind that
// can never become a slot. It aborts the whole rebuild.
type UnsupportedParameterKindError struct {
	Name      string
	Kind      Kind
	Direction Direction
}

func NewUnsupportedParameterKindError(name string, kind Kind, direction Direction) *UnsupportedParameterKindError {
	return &UnsupportedParameterKindError{Name: name, Kind: kind, Direction: direction}
}

func (e *UnsupportedParameterKindError) Error() string {
	return fmt.Sprintf("%s parameter %q uses unsupported kind %q", e.Direction, e.Name, e.Kind)
}

var _ error = &UnsupportedParameterKindError{}

// DuplicateParameterError is returned when a definition declares two
// parameters with the same name in one direction
type DuplicateParameterError struct {
	Name      string
	Direction Direction
}

func NewDuplicateParameterError(name string, direction Direction) *DuplicateParameterError {
	return &DuplicateParameterError{Name: name, Direction: direction}
}

func (e *DuplicateParameterError) Error() string {
	return fmt.Sprintf("%s parameter %q is declared more than once", e.Direction, e.Name)
}

var _ error = &DuplicateParameterError{}

// UnknownKindError is returned when a kind name is not recognised at all
type UnknownKindError struct {
	Kind       string
	Suggestion string
}

func NewUnknownKindError(kind, suggestion string) *UnknownKindError {
	return &UnknownKindError{Kind: kind, Suggestion: suggestion}
}

func (e *UnknownKindError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown parameter kind %q (did you mean %q?)", e.Kind, e.Suggestion)
	}
	return fmt.Sprintf("unknown parameter kind %q", e.Kind)
}

var _ error = &UnknownKindError{}

// MalformedDefaultError is returned when a default value cannot be converted to
// the kind's native representation
type MalformedDefaultError struct {
	Name string
	Kind Kind
	Err  error
}

func NewMalformedDefaultError(name string, kind Kind, err error) *MalformedDefaultError {
	return &MalformedDefaultError{Name: name, Kind: kind, Err: err}
}

func (e *MalformedDefaultError) Error() string {
	return fmt.Sprintf("malformed default for %s parameter %q: %v", e.Kind, e.Name, e.Err)
}

func (e *MalformedDefaultError) Unwrap() error {
	return e.Err
}

var _ error = &MalformedDefaultError{}
