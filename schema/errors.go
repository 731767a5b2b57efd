package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrResourceRequired indicates no resource was supplied.
	ErrResourceRequired = errors.New("resource required")
	// ErrResourceNotFound indicates a local resource could not be stat'ed.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrWindowNotFound indicates the window is not registered.
	ErrWindowNotFound = errors.New("window not found")
	// ErrNotLocal indicates a server operation on a window without a local resource.
	ErrNotLocal = errors.New("window does not show a local resource")
	// ErrServerRunning indicates the window already has a bound server process.
	ErrServerRunning = errors.New("server already running")
	// ErrEmptyCommand indicates a launch command without an executable.
	ErrEmptyCommand = errors.New("empty launch command")
	// ErrDialogClosed indicates a dialog window closed without an answer.
	ErrDialogClosed = errors.New("dialog closed")
	// ErrDisplayClosed indicates the display is no longer available.
	ErrDisplayClosed = errors.New("display closed")
)

// SpawnError reports a server process that could not be started.
// Code is the errno name (ENOENT, EACCES, ...) when one is known.
type SpawnError struct {
	Code string
	Err  error
}

// NewSpawnError constructs a spawn error.
func NewSpawnError(code string, err error) *SpawnError {
	return &SpawnError{Code: code, Err: err}
}

func (e *SpawnError) Error() string {
	if e == nil {
		return "spawn error"
	}
	if e.Err == nil {
		return fmt.Sprintf("spawn failed: %s", e.Code)
	}
	return e.Err.Error()
}

func (e *SpawnError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
