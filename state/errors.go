package state

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProvider is raised when a hook runs without a Provider for its
	// Context in the context chain.
	ErrNoProvider = errors.New("no provider in context")
	// ErrClosed is raised when a hook runs against a Provider that was closed.
	ErrClosed = errors.New("provider closed")
)

// HookError is the panic value of a hook called outside an active Provider.
type HookError struct {
	Hook    string
	Context string
	Err     error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("state: %s(%s): %v", e.Hook, e.Context, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
