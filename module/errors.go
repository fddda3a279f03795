package module

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty indicates a zero-length module file.
	ErrEmpty = errors.New("module file is empty")

	// ErrNotRegular indicates a path that is not a regular file.
	ErrNotRegular = errors.New("not a regular file")

	// ErrTooLarge indicates a module that does not fit in memory on this host.
	ErrTooLarge = errors.New("module file too large to map")
)

// Error reports a failure to stat, open or map a module file.
type Error struct {
	// Op is "stat", "open", "map" or "unmap"
	Op string

	// Path is the module file path
	Path string

	// Err is the underlying error
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("problem %s'ing %q: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
