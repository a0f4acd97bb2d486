package solve

import "fmt"

// ConfigurationError is reported when a component has nothing to solve against
type ConfigurationError struct {
	Message string
}

func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{Message: message}
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

var _ error = &ConfigurationError{}

// DisallowedExecutionContextError is reported when solving is not permitted in
// the current process, for example when running headless inside another solver.
type DisallowedExecutionContextError struct {
	Reason string
}

func NewDisallowedExecutionContextError(reason string) *DisallowedExecutionContextError {
	return &DisallowedExecutionContextError{Reason: reason}
}

func (e *DisallowedExecutionContextError) Error() string {
	return fmt.Sprintf("solving is not allowed here: %s", e.Reason)
}

var _ error = &DisallowedExecutionContextError{}
