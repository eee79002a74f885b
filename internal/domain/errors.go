package domain

import (
	"errors"
	"fmt"
)

// ValidationError signals bad input shape or an invariant violation. It
// surfaces synchronously to the caller attempting the mutation. Pipeline
// rejection and waiting are states, not errors.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
