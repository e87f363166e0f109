package attendance

import (
	"errors"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccessDenied       = errors.New("access denied: you are not an authorized faculty member")
	ErrConflict           = errors.New("already exists")
)

// FieldError points a validation failure at a single input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is returned when input is rejected before touching the store.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

// NewValidationError wraps err with optional field details.
func NewValidationError(err error, fields ...FieldError) error {
	return &ValidationError{Err: err, Fields: fields}
}

// Invalid is shorthand for a validation error with a plain message.
func Invalid(msg string, fields ...FieldError) error {
	return NewValidationError(errors.New(msg), fields...)
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		if len(e.Fields) == 0 {
			return "validation failed"
		}
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Error)
		}
		return strings.Join(parts, "; ")
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
