package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingField is returned when a required input is empty after trimming.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidUsername is returned for usernames that are too long or contain control characters.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrUsernameTaken is returned when the normalized username is already registered.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrInvalidCredentials is the single login failure seen by callers.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrThrottled is returned when a username has too many recent login failures.
	ErrThrottled = errors.New("too many failed login attempts")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// FieldError names the missing field.
type FieldError struct {
	Field string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField.Error(), e.Field)
}

func (e FieldError) Unwrap() error { return ErrMissingField }

// ThrottledError carries retry metadata for login throttling.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	if e.RetryAfter <= 0 {
		return ErrThrottled.Error()
	}
	return fmt.Sprintf("%s: retry after %s", ErrThrottled.Error(), e.RetryAfter)
}

func (e ThrottledError) Unwrap() error { return ErrThrottled }
