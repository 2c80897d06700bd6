package pvm

import (
	"errors"
	"fmt"
)

// ErrIllegalReentrancy indicates a step chain was requested on an execution
// that already has one in flight. It signals an integration error and is never
// queued or retried.
var ErrIllegalReentrancy = errors.New("illegal reentrancy: execution already has a step chain in flight")

// ErrMaxStepsExceeded indicates a step chain ran more atomic operations than
// the configured limit.
var ErrMaxStepsExceeded = errors.New("step chain exceeded maximum steps limit")

// ErrExecutionEnded indicates an operation was requested on an ended execution.
var ErrExecutionEnded = errors.New("execution has ended")

// ErrNotWaiting indicates Signal was called on an execution that is not
// parked in a wait activity.
var ErrNotWaiting = errors.New("execution is not waiting")

// EngineError represents an error from Engine operations.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ListenerError reports a listener that failed during event notification.
// The activity instance opened before the listener ran stays open.
type ListenerError struct {
	ActivityID  string
	ExecutionID string
	Event       EventKind
	Cause       error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("%s listener on activity %s (execution %s) failed: %v",
		e.Event, e.ActivityID, e.ExecutionID, e.Cause)
}

// Unwrap returns the listener's error.
func (e *ListenerError) Unwrap() error {
	return e.Cause
}

// MappingError reports an input mapping, output mapping or transition
// condition that could not be compiled or evaluated.
type MappingError struct {
	ActivityID  string
	ExecutionID string
	Target      string
	Expression  string
	Cause       error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %q -> %s on activity %s (execution %s) failed: %v",
		e.Expression, e.Target, e.ActivityID, e.ExecutionID, e.Cause)
}

// Unwrap returns the compile or evaluation error.
func (e *MappingError) Unwrap() error {
	return e.Cause
}
