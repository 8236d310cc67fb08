package logs

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when message, level or owner is empty after trimming.
	ErrMissingField = errors.New("missing required field")

	// ErrFieldTooLong is returned when message or level exceeds its byte limit.
	ErrFieldTooLong = errors.New("field too long")

	// ErrInvalidCursor is returned for an "after" value that is not an entry id.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidLimit is returned for a negative page size.
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// FieldError names the field a validation error applies to.
type FieldError struct {
	Field string
	Kind  error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Kind.Error())
}

func (e FieldError) Unwrap() error { return e.Kind }

func missing(field string) error {
	return FieldError{Field: field, Kind: ErrMissingField}
}

func tooLong(field string) error {
	return FieldError{Field: field, Kind: ErrFieldTooLong}
}
