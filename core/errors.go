package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Agent-related errors
	ErrAgentNotFound = errors.New("agent not found")

	// Event-related errors
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrMissingPayloadKey = errors.New("missing required payload key")

	// Delivery errors
	ErrHandlerFailed      = errors.New("subscriber handler failed")
	ErrHandlerPanic       = errors.New("subscriber handler panicked")
	ErrReentrantBroadcast = errors.New("broadcast invoked from within a handler of the same subject")

	// Communication errors
	ErrCommunicationFailed = errors.New("communication failed")
	ErrMaxRetriesExceeded  = errors.New("maximum retries exceeded")

	// Scheduling errors
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Operation errors
	ErrTimeout         = errors.New("operation timeout")
	ErrContextCanceled = errors.New("context canceled")
)

// FrameworkError provides structured error information with context
// It implements the error interface and supports error wrapping
type FrameworkError struct {
	Op      string // Operation that failed (e.g., "bus.Broadcast")
	Kind    string // Error kind (e.g., "event", "config", "communication")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		msg := e.Err.Error()
		if e.Message != "" {
			msg = e.Message + ": " + msg
		}
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %s", e.Op, e.ID, msg)
		}
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// NewFrameworkError creates a new FrameworkError
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// CommunicationError is the transient failure raised by a message send.
// It matches ErrCommunicationFailed under errors.Is.
type CommunicationError struct {
	Target string
	Reason string
	Err    error
}

func (e *CommunicationError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if reason == "" {
		reason = "unknown"
	}
	if e.Target == "" {
		return fmt.Sprintf("communication failed: %s", reason)
	}
	return fmt.Sprintf("communication with %s failed: %s", e.Target, reason)
}

// Is reports ErrCommunicationFailed as a match.
func (e *CommunicationError) Is(target error) bool {
	return target == ErrCommunicationFailed
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is retryable
// Retryable errors are typically transient communication issues
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCommunicationFailed) ||
		errors.Is(err, ErrTimeout)
}

// IsCommunicationError checks if an error originated from a failed send
func IsCommunicationError(err error) bool {
	return errors.Is(err, ErrCommunicationFailed)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsEventError checks if an error was raised while constructing an event
func IsEventError(err error) bool {
	return errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrMissingPayloadKey)
}
