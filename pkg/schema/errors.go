package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUser                 = "USER_ERROR"
	ErrCodeTimeout              = "TIMEOUT_ERROR"
	ErrCodeNonRecoverable       = "NON_RECOVERABLE"
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeCapacityExceeded     = "CAPACITY_EXCEEDED"
	ErrCodeAlreadyRegistered    = "ALREADY_REGISTERED"
	ErrCodeMissingBody          = "MISSING_BODY"
	ErrCodeBarrierTimeout       = "BARRIER_TIMEOUT"
	ErrCodeSchedulerUnavailable = "SCHEDULER_UNAVAILABLE"
	ErrCodeChannelClosed        = "CHANNEL_CLOSED"
	ErrCodeChannelFull          = "CHANNEL_FULL"
	ErrCodeUnavailable          = "UNAVAILABLE"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodeCycleDetected        = "CYCLE_DETECTED"
)

// TaskchainError is the structured error type returned by actions, programs and
// the engine. A nil error is a successful ActionResult.
type TaskchainError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	ActionID string         `json:"action_id,omitempty"`
	Cause    error          `json:"-"`
}

func (e *TaskchainError) Error() string {
	if e.ActionID != "" {
		return fmt.Sprintf("[%s] action %s: %s", e.Code, e.ActionID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TaskchainError) Unwrap() error {
	return e.Cause
}

// NewError creates a new TaskchainError.
func NewError(code, message string) *TaskchainError {
	return &TaskchainError{Code: code, Message: message}
}

// NewErrorf creates a new TaskchainError with a formatted message.
func NewErrorf(code, format string, args ...any) *TaskchainError {
	return &TaskchainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UserError creates a USER_ERROR carrying an application-defined code.
func UserError(userCode int, message string) *TaskchainError {
	return &TaskchainError{
		Code:    ErrCodeUser,
		Message: message,
		Details: map[string]any{"user_code": userCode},
	}
}

// WithAction attaches an action ID to the error.
func (e *TaskchainError) WithAction(actionID string) *TaskchainError {
	e.ActionID = actionID
	return e
}

// WithCause attaches an underlying cause.
func (e *TaskchainError) WithCause(err error) *TaskchainError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *TaskchainError) WithDetails(details map[string]any) *TaskchainError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first TaskchainError in err's chain, or "" if
// there is none.
func CodeOf(err error) string {
	var te *TaskchainError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsCode reports whether err's chain contains a TaskchainError with the given code.
func IsCode(err error, code string) bool {
	for err != nil {
		var te *TaskchainError
		if !errors.As(err, &te) {
			return false
		}
		if te.Code == code {
			return true
		}
		err = te.Cause
	}
	return false
}
