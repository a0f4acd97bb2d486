package server

import "fmt"

// BadRequestError is returned when a request payload cannot be used
type BadRequestError struct {
	Err error
}

func NewBadRequestError(err error) *BadRequestError {
	return &BadRequestError{Err: err}
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %v", e.Err)
}

func (e *BadRequestError) Unwrap() error {
	return e.Err
}

var _ error = &BadRequestError{}
