package event

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when a non-blocking hand-off finds the queue full.
	ErrQueueFull = errors.New("event: queue full")
	// ErrNotDuplicable is wrapped by Duplicate when a value cannot be cloned.
	ErrNotDuplicable = errors.New("event: value cannot be duplicated")
	// ErrTestEvent is returned when duplicating a test event.
	ErrTestEvent = errors.New("event: test events cannot be duplicated")
	// ErrNotTestEvent is returned when waiting on a production event.
	ErrNotTestEvent = errors.New("event: only test events can be awaited")
	// ErrUnflattened is returned when a pipeline reference is executed directly.
	ErrUnflattened = errors.New("event: sub-pipeline executed without flattening")
)

// ProcessingError is raised by a processor rejecting an event. It aborts the
// rest of the chain and is accounted as a processing failure.
type ProcessingError struct {
	EventID string
	Message string
	cause   error
}

// NewProcessingError builds a ProcessingError for ev. cause may be nil.
func NewProcessingError(ev Event, message string, cause error) *ProcessingError {
	pe := &ProcessingError{Message: message, cause: cause}
	if ev != nil {
		pe.EventID = ev.ID()
	}
	return pe
}

func (e *ProcessingError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("processing event %s: %s: %v", e.EventID, e.Message, e.cause)
	}
	return fmt.Sprintf("processing event %s: %s", e.EventID, e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.cause }
