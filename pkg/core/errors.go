package core

import (
	"errors"
	"fmt"
)

// Error is the error type shared by every hypley-live component.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s (code: %s)", msg, e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrAPI            ErrorType = "api_error"

	// ErrDevice: microphone or speaker unavailable, permission denied.
	ErrDevice ErrorType = "device_error"
	// ErrDecode: malformed inbound payload (base64, PCM framing, MIME type).
	ErrDecode ErrorType = "decode_error"
	// ErrTransport: live connection failure. Never retried by the session.
	ErrTransport ErrorType = "transport_error"
	// ErrQuota: rate limited or quota exhausted on completion calls.
	ErrQuota ErrorType = "quota_error"
	// ErrUnknownTool: function call with an unregistered name.
	ErrUnknownTool ErrorType = "unknown_tool_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewAPIError creates a generic upstream error.
func NewAPIError(message string, cause error) *Error {
	return &Error{Type: ErrAPI, Message: message, Cause: cause}
}

func NewDeviceError(message string, cause error) *Error {
	return &Error{Type: ErrDevice, Message: message, Cause: cause}
}

func NewDecodeError(message string, cause error) *Error {
	return &Error{Type: ErrDecode, Message: message, Cause: cause}
}

func NewTransportError(op string, cause error) *Error {
	return &Error{Type: ErrTransport, Message: op, Cause: cause}
}

// NewQuotaError creates a quota error. retryAfter <= 0 means unknown.
func NewQuotaError(message string, retryAfter int, cause error) *Error {
	e := &Error{Type: ErrQuota, Message: message, Cause: cause}
	if retryAfter > 0 {
		e.RetryAfter = &retryAfter
	}
	return e
}

func NewUnknownToolError(name string) *Error {
	return &Error{Type: ErrUnknownTool, Message: fmt.Sprintf("unknown function %q", name), Param: name}
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrQuota, ErrAPI:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType reports whether err (or anything it wraps) is a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
