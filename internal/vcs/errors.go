package vcs

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorUnknown means blame produced nothing usable. It is an expected
	// outcome: callers continue without authorship.
	ErrAuthorUnknown = errors.New("author unknown")

	// ErrMalformedBlame matches any *MalformedBlameError.
	ErrMalformedBlame = errors.New("malformed blame output")
)

// MalformedBlameError means blame output was present but the name could not be parsed.
type MalformedBlameError struct {
	Line string
}

func (e *MalformedBlameError) Error() string {
	return fmt.Sprintf("malformed blame output: %q", e.Line)
}

func (e *MalformedBlameError) Is(target error) bool {
	return target == ErrMalformedBlame
}
