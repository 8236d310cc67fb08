package password

import (
	"errors"
	"fmt"
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")
)

// PolicyError is returned by Validate. It unwraps to one of the
// ErrPassword*/ErrWeakPassword sentinels and its message is safe to show
// to the client that chose the password.
type PolicyError struct {
	Kind  error
	Limit int    // the violated bound, 0 for weak-pattern rejections
	Unit  string // "characters" or "bytes"
}

func (e PolicyError) Error() string {
	if e.Limit == 0 {
		return e.Kind.Error()
	}
	bound := "max"
	if errors.Is(e.Kind, ErrPasswordTooShort) {
		bound = "min"
	}
	return fmt.Sprintf("%s (%s %d %s)", e.Kind, bound, e.Limit, e.Unit)
}

func (e PolicyError) Unwrap() error { return e.Kind }
