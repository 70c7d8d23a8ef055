package engine

import (
	"errors"
	"fmt"
)

// Error is a categorized engine error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Rule names the rule the error belongs to, if any.
	Rule string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidDefinition marks a malformed rule, device, alias or
	// alarm definition. Returned from the registration call.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"

	// ErrCodeConditionFailure marks an error raised by a rule condition.
	ErrCodeConditionFailure ErrorCode = "CONDITION_FAILURE"

	// ErrCodeActionFailure marks an error raised by a fired rule's action.
	ErrCodeActionFailure ErrorCode = "ACTION_FAILURE"

	// ErrCodeUnknownRule marks a reference to a rule that was never defined.
	ErrCodeUnknownRule ErrorCode = "UNKNOWN_RULE"

	// ErrCodeUnknownCell marks an unresolvable cell path or alias.
	ErrCodeUnknownCell ErrorCode = "UNKNOWN_CELL"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Rule != "" {
		msg += fmt.Sprintf(" (rule=%s)", e.Rule)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsInvalidDefinition reports whether err is an invalid definition error.
func IsInvalidDefinition(err error) bool {
	return hasCode(err, ErrCodeInvalidDefinition)
}

// IsActionFailure reports whether err is an action failure.
func IsActionFailure(err error) bool {
	return hasCode(err, ErrCodeActionFailure)
}

// IsUnknownRule reports whether err refers to an undefined rule.
func IsUnknownRule(err error) bool {
	return hasCode(err, ErrCodeUnknownRule)
}

// NewInvalidDefinition creates an invalid definition error for subject.
func NewInvalidDefinition(subject, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidDefinition,
		Message: fmt.Sprintf("%s: %s", subject, fmt.Sprintf(format, args...)),
	}
}

func newRuleError(code ErrorCode, rule string, err error) *Error {
	msg := "condition raised an error"
	if code == ErrCodeActionFailure {
		msg = "action raised an error"
	}
	return &Error{Code: code, Rule: rule, Message: msg, Err: err}
}
