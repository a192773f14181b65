package core

import "errors"

// ValidationError reports a business-rule violation on a single field.
// It unwraps to the sentinel describing the rule, so callers can use both
// errors.As (for the field) and errors.Is (for the rule).
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Invalid wraps err as a ValidationError on field.
func Invalid(field string, err error) error {
	return invalid(field, err)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
