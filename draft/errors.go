package draft

import (
	"errors"
	"fmt"
)

var (
	// ErrPath reports a path segment that does not match the value it addresses.
	ErrPath = errors.New("invalid path")
	// ErrIndex reports a slice or array index outside the current length.
	ErrIndex = errors.New("index out of range")
	// ErrType reports a value that cannot be assigned to its target.
	ErrType = errors.New("type mismatch")
	// ErrUnexported reports an attempt to address an unexported struct field.
	ErrUnexported = errors.New("unexported field")
)

// PathError is the panic value raised by Draft operations that cannot be
// applied. It wraps one of the sentinel errors above.
type PathError struct {
	Op   string
	Path Path
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("draft: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func fail(op string, path Path, err error) {
	panic(&PathError{Op: op, Path: append(Path(nil), path...), Err: err})
}

func failf(op string, path Path, sentinel error, format string, args ...any) {
	fail(op, path, fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}
