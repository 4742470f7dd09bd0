package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceMissing is returned when a job's uploaded file no longer exists
	ErrSourceMissing = errors.New("source file no longer exists")

	// ErrResultUnavailable is returned when a job has no downloadable output
	ErrResultUnavailable = errors.New("job result not available")
)

// ValidationError reports invalid client input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is or wraps a ValidationError
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
