package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation wraps every input rejection. The wrapped message names
	// the offending field.
	ErrValidation = errors.New("validation failed")
	// ErrUnavailable is returned when an optional backend is not configured.
	ErrUnavailable = errors.New("service unavailable")
)

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, fmt.Sprintf(format, args...))
}
