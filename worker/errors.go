package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRegistered is returned when a worker name is registered twice.
	ErrAlreadyRegistered = errors.New("worker already registered")

	// ErrNotRegistered is returned for unknown worker names.
	ErrNotRegistered = errors.New("worker not registered")

	// ErrRegistryFrozen is returned when the registry is changed after Freeze.
	ErrRegistryFrozen = errors.New("worker registry is frozen")

	// ErrInvalidCount is returned when registering fewer than one instance.
	ErrInvalidCount = errors.New("worker count must be at least 1")

	// ErrInvalidClass is returned when a class has no constructor.
	ErrInvalidClass = errors.New("worker class has no constructor")
)

// AlreadyRegisteredError names the duplicate. It matches ErrAlreadyRegistered.
type AlreadyRegisteredError struct {
	// Name is the worker name that was already taken
	Name string
}

// Error returns the error message.
func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("worker %q already registered", e.Name)
}

// Is makes errors.Is match ErrAlreadyRegistered.
func (e *AlreadyRegisteredError) Is(target error) bool {
	return target == ErrAlreadyRegistered
}

// terminalError wraps errors marked with Terminal.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks err as not worth retrying. The supervisor stops the worker on the
// first terminal error regardless of attempts left.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err or anything it wraps was marked with Terminal.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}

// PanicError is a recovered panic from Setup or Handle.
type PanicError struct {
	// Value is what was passed to panic
	Value any

	// Stack is the goroutine stack at the time of the panic
	Stack []byte
}

// Error returns the error message. The stack is left out.
func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panicked: %v", e.Value)
}

// FailedError is returned by Supervisor.Run when a worker stops in error.
type FailedError struct {
	// Worker is the instance name, such as "orders-1"
	Worker string

	// Attempts is the number of attempts made, including the failed one
	Attempts int

	// Err is the error of the last attempt
	Err error
}

// Error returns the error message.
func (e *FailedError) Error() string {
	return fmt.Sprintf("worker %s failed after %d attempt(s): %v", e.Worker, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *FailedError) Unwrap() error {
	return e.Err
}
