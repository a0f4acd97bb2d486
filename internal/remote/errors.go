package remote

import (
	"errors"
	"fmt"
)

// ErrDefinitionNotFound is returned when a solver does not know the requested definition
var ErrDefinitionNotFound = errors.New("definition not found")

// RemoteUnavailableError wraps any failure to reach or query a solver
type RemoteUnavailableError struct {
	Identity Identity
	Err      error
}

func NewRemoteUnavailableError(identity Identity, err error) *RemoteUnavailableError {
	return &RemoteUnavailableError{Identity: identity, Err: err}
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("remote definition %s is unavailable: %v", e.Identity, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

var _ error = &RemoteUnavailableError{}

// IsRemoteUnavailable reports whether err is, or wraps, a RemoteUnavailableError
func IsRemoteUnavailable(err error) bool {
	var unavailable *RemoteUnavailableError
	return errors.As(err, &unavailable)
}
