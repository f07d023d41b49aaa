package supervisor

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotStarted     = errors.New("backend not started")
	ErrAlreadyStarted = errors.New("backend already started")
	ErrStopped        = errors.New("backend stopped")
)

// SpawnError means the OS refused to create the backend process.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("backend could not start: %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ReadinessTimeoutError means the backend was spawned but never became
// reachable at Address within the bound.
type ReadinessTimeoutError struct {
	Address string
	Elapsed time.Duration
	Last    error // last probe failure, if any
}

func (e *ReadinessTimeoutError) Error() string {
	msg := fmt.Sprintf("backend at %s not ready after %s", e.Address, e.Elapsed.Round(time.Millisecond))
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *ReadinessTimeoutError) Unwrap() error { return e.Last }

// EarlyExitError means the backend exited on its own, before or after
// becoming ready. Code is -1 when it was killed by a signal.
type EarlyExitError struct {
	Code       int
	AfterReady bool
	Err        error
}

func (e *EarlyExitError) Error() string {
	when := "before becoming ready"
	if e.AfterReady {
		when = "after becoming ready"
	}
	return fmt.Sprintf("backend exited %s with code %d", when, e.Code)
}

func (e *EarlyExitError) Unwrap() error { return e.Err }
