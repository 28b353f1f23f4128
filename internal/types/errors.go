package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, machine-readable failure category surfaced in the
// response envelope. Codes are part of the external contract.
type ErrorCode string

const (
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	CodeCompletionBlocked   ErrorCode = "COMPLETION_BLOCKED"
	CodeReviewCycleExceeded ErrorCode = "REVIEW_CYCLE_EXCEEDED"
	CodeForceRequiresReason ErrorCode = "FORCE_REQUIRES_REASON"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeSelfLink            ErrorCode = "SELF_LINK"
	CodeDuplicateLink       ErrorCode = "DUPLICATE_LINK"
	CodeLinkNotFound        ErrorCode = "LINK_NOT_FOUND"
	CodeProtectedField      ErrorCode = "PROTECTED_FIELD"
	CodeReservedType        ErrorCode = "RESERVED_TYPE"
	CodeLockTimeout         ErrorCode = "LOCK_TIMEOUT"
	CodePayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeAlreadyArchived     ErrorCode = "ALREADY_ARCHIVED"
	CodeNotArchived         ErrorCode = "NOT_ARCHIVED"
	CodeNothingToClaim      ErrorCode = "NOTHING_TO_CLAIM"
	CodeIntegrityError      ErrorCode = "INTEGRITY_ERROR"
	CodeCommentNotFound     ErrorCode = "COMMENT_NOT_FOUND"
	CodeInvalidField        ErrorCode = "INVALID_FIELD"
	CodePathNotFound        ErrorCode = "PATH_NOT_FOUND"
	CodeNotInitialized      ErrorCode = "NOT_INITIALIZED"
)

// Error is the structured error carried across the verb boundary.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError constructs an Error without details.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf constructs an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches a detail map and returns the error for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// AsError extracts a structured Error from err, wrapping anything else as
// INTEGRITY_ERROR so callers always get a coded envelope.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	return &Error{Code: CodeIntegrityError, Message: err.Error()}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var le *Error
	return errors.As(err, &le) && le.Code == code
}
