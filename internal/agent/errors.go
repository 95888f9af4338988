// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// ErrorCode is a string type used for structured error reporting from the
// dispatch pipeline. Using a custom type ensures that only predefined
// constants can be used where an ErrorCode is expected, preventing a class
// of bugs.
type ErrorCode string

const (
	// -- Routing Errors --
	// ErrCodeUnroutableAction indicates the model emitted an action that
	// matches neither a builtin computer operation nor a declared tool.
	ErrCodeUnroutableAction  ErrorCode = "UNROUTABLE_ACTION"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"

	// -- Safety Errors --
	// ErrCodeSafetyBlocked indicates the safety gate refused the action. It is
	// always surfaced as an outcome in the conversation, never as a turn
	// failure.
	ErrCodeSafetyBlocked ErrorCode = "SAFETY_BLOCKED"

	// -- Execution Errors --
	ErrCodeExecutionTarget ErrorCode = "EXECUTION_TARGET_ERROR"
	ErrCodeSearchExhausted ErrorCode = "SEARCH_EXHAUSTED"

	// -- Turn Control Errors --
	ErrCodeModelRequest ErrorCode = "MODEL_REQUEST_FAILED"
	ErrCodeCancelled    ErrorCode = "CANCELLATION_REQUESTED"
	ErrCodeTurnLimit    ErrorCode = "TURN_LIMIT_EXCEEDED"
)

// CodedError attaches an ErrorCode to an underlying error so callers across
// package boundaries can react to the class of failure without string
// matching. Capabilities return it to steer how their failure is recorded;
// the controller returns it for turn-fatal conditions.
type CodedError struct {
	Code ErrorCode
	Err  error
}

func (e *CodedError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CodedError) Unwrap() error { return e.Err }

// Coded wraps err with a structured code.
func Coded(code ErrorCode, err error) *CodedError {
	return &CodedError{Code: code, Err: err}
}

// Codef wraps a formatted message with a structured code.
func Codef(code ErrorCode, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the structured code from an error chain, falling back to
// the generic execution code for plain errors.
func CodeOf(err error) ErrorCode {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrCodeExecutionTarget
}
