package slackbot

import (
	"errors"
	"fmt"
)

// Error codes for workflow failures.
const (
	ErrCodeConfig       = "CONFIG"
	ErrCodePayload      = "PAYLOAD"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeUpstream     = "UPSTREAM"
	ErrCodeInternal     = "INTERNAL"
)

// Error is a structured workflow error carrying a stable code and
// optional diagnostic context.
type Error struct {
	Code    string
	Message string
	Err     error
	Context map[string]interface{}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a structured error with the given code and message.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithContext attaches a diagnostic key/value pair.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ErrorCode extracts the workflow code from an error chain, or INTERNAL
// when the error carries none.
func ErrorCode(err error) string {
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return ErrCodeInternal
}
