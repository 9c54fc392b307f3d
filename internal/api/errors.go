package api

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError represents a resource not found error with contextual
// information. It is the standard error for lookups of instances,
// configurations, and runtime info that do not exist.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g., "instance", "configuration", "runtime info")
	ResourceType string

	// ResourceName is the specific identifier of the resource
	ResourceName string

	// Message provides a custom error message if the default format is
	// insufficient
	Message string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
//
// Example:
//
//	inst, err := store.Get(id)
//	if api.IsNotFound(err) {
//	    // Handle not found case
//	}
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError with the specified resource
// type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

// Specific NotFoundError constructors for each resource type.
var (
	// NewInstanceNotFoundError creates an instance not found error.
	NewInstanceNotFoundError = func(id string) *NotFoundError {
		return NewNotFoundError("instance", id)
	}

	// NewConfigurationNotFoundError creates a declared-configuration not
	// found error.
	NewConfigurationNotFoundError = func(id string) *NotFoundError {
		return NewNotFoundError("configuration for instance", id)
	}

	// NewRuntimeNotFoundError creates a runtime-info not found error.
	// Absence of runtime info means the instance never started (or the
	// store was restarted).
	NewRuntimeNotFoundError = func(id string) *NotFoundError {
		return NewNotFoundError("runtime info for instance", id)
	}
)

// ConflictError indicates an operation that is invalid in the instance's
// current state, such as starting without a declared configuration.
type ConflictError struct {
	ResourceName string
	Reason       string
}

func (e *ConflictError) Error() string {
	if e.ResourceName == "" {
		return e.Reason
	}
	return fmt.Sprintf("conflict on %s: %s", e.ResourceName, e.Reason)
}

// IsConflict checks if an error is a ConflictError.
func IsConflict(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}

// NewConflictError creates a new ConflictError.
func NewConflictError(resourceName, reason string) *ConflictError {
	return &ConflictError{ResourceName: resourceName, Reason: reason}
}

// ValidationError indicates malformed input: a bad patch document, an
// out-of-range port, an unknown platform kind.
type ValidationError struct {
	Field  string
	Reason string
}

// Error returns the reason verbatim when no field is set, so errors
// reconstructed from a wire form do not pick up a second prefix.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// TimeoutError indicates a bus request whose reply did not arrive within
// the deadline. The reply subscription is already released when this is
// returned.
type TimeoutError struct {
	Channel string
	Timeout time.Duration

	// Message overrides the formatted text, carrying the original
	// description when the error crossed an HTTP boundary.
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request on %s timed out after %s", e.Channel, e.Timeout)
}

// IsTimeout checks if an error is a TimeoutError.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(channel string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{Channel: channel, Timeout: timeout}
}

// TransportError wraps a failure of the underlying bus transport during
// publish or subscribe.
type TransportError struct {
	Op      string
	Channel string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s on %s: %v", e.Op, e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport checks if an error is a TransportError.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// NewTransportError wraps err as a TransportError for the given operation
// and channel.
func NewTransportError(op, channel string, err error) *TransportError {
	return &TransportError{Op: op, Channel: channel, Err: err}
}

// PlatformError wraps a platform driver failure (subprocess, container, or
// pod operation). Workers convert these to success=false responses; no
// error crosses the bus as a panic or a dropped message.
type PlatformError struct {
	Platform   PlatformKind
	Op         string
	InstanceID string
	Err        error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s %s failed for instance %s: %v", e.Platform, e.Op, e.InstanceID, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// IsPlatformError checks if an error is a PlatformError.
func IsPlatformError(err error) bool {
	var platformErr *PlatformError
	return errors.As(err, &platformErr)
}

// NewPlatformError wraps err as a PlatformError.
func NewPlatformError(platform PlatformKind, op, instanceID string, err error) *PlatformError {
	return &PlatformError{Platform: platform, Op: op, InstanceID: instanceID, Err: err}
}

// Error kind labels carried in Response.ErrorKind.
const (
	ErrorKindNotFound   = "NotFound"
	ErrorKindValidation = "Validation"
	ErrorKindConflict   = "Conflict"
	ErrorKindTimeout    = "Timeout"
	ErrorKindTransport  = "Transport"
	ErrorKindPlatform   = "Platform"
)

// ErrorKindOf labels err with its error kind for wire transport. An
// unclassified error yields the empty string.
func ErrorKindOf(err error) string {
	switch {
	case IsNotFound(err):
		return ErrorKindNotFound
	case IsValidation(err):
		return ErrorKindValidation
	case IsConflict(err):
		return ErrorKindConflict
	case IsTimeout(err):
		return ErrorKindTimeout
	case IsTransport(err):
		return ErrorKindTransport
	case IsPlatformError(err):
		return ErrorKindPlatform
	default:
		return ""
	}
}
