package converter

import "fmt"

// ValidationError reports inputs or options the caller can correct.
type ValidationError struct {
	Field string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Cause)
}

// ConversionError wraps a failure inside a conversion primitive. Callers
// should surface a generic message; the wrapped error is for logs.
type ConversionError struct {
	Op  string
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
