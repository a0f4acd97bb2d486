package definition

import (
	"fmt"

	"github.com/dorcha-inc/hops/internal/remote"
)

// NotFoundError is returned when no definition is registered under a name
type NotFoundError struct {
	Name       string
	Suggestion string
}

func NewNotFoundError(name, suggestion string) *NotFoundError {
	return &NotFoundError{Name: name, Suggestion: suggestion}
}

func (e *NotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("definition not found: %s (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("definition not found: %s", e.Name)
}

// Unwrap lets callers match with errors.Is(err, remote.ErrDefinitionNotFound)
func (e *NotFoundError) Unwrap() error {
	return remote.ErrDefinitionNotFound
}

var _ error = &NotFoundError{}

// DuplicateDefinitionError is returned when two definitions share a name.
// Names are compared case-insensitively.
type DuplicateDefinitionError struct {
	Name string
}

func NewDuplicateDefinitionError(name string) *DuplicateDefinitionError {
	return &DuplicateDefinitionError{Name: name}
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("duplicate definition name: %s", e.Name)
}

var _ error = &DuplicateDefinitionError{}

// InvalidManifestError wraps anything wrong with a definition.yaml
type InvalidManifestError struct {
	Dir string
	Err error
}

func NewInvalidManifestError(dir string, err error) *InvalidManifestError {
	return &InvalidManifestError{Dir: dir, Err: err}
}

func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("invalid definition in %s: %v", e.Dir, e.Err)
}

func (e *InvalidManifestError) Unwrap() error {
	return e.Err
}

var _ error = &InvalidManifestError{}
