package live

import (
	"fmt"
	"strings"
)

// Error is a classified session error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrorType categorizes session errors.
type ErrorType string

const (
	ErrConnection         ErrorType = "connection_error"
	ErrAuthentication     ErrorType = "authentication_error"
	ErrSessionExpired     ErrorType = "session_expired"
	ErrReconnectExhausted ErrorType = "reconnect_exhausted"
	ErrPersistence        ErrorType = "persistence_error"
)

// NewConnectionError creates a retryable connection error.
func NewConnectionError(message string, cause error) *Error {
	return &Error{Type: ErrConnection, Message: message, Cause: cause}
}

// NewReconnectExhaustedError signals that all reconnect attempts failed.
func NewReconnectExhaustedError(attempts int, cause error) *Error {
	return &Error{
		Type:    ErrReconnectExhausted,
		Message: fmt.Sprintf("gave up after %d reconnect attempts", attempts),
		Cause:   cause,
	}
}

// NewPersistenceError wraps a snapshot or handle storage failure.
func NewPersistenceError(message string, cause error) *Error {
	return &Error{Type: ErrPersistence, Message: message, Cause: cause}
}

// IsRetryable returns true if a reconnect attempt may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrConnection, ErrSessionExpired:
		return true
	default:
		return false
	}
}

// classifyDialError maps a transport dial failure onto the taxonomy.
// Credential problems will not heal with retries; everything else might.
func classifyDialError(err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "permission"):
		return &Error{Type: ErrAuthentication, Message: "agent rejected credentials", Cause: err}
	case strings.Contains(msg, "handle") && (strings.Contains(msg, "expired") || strings.Contains(msg, "invalid")):
		return &Error{Type: ErrSessionExpired, Message: "resumption handle rejected", Cause: err}
	default:
		return NewConnectionError("dial failed", err)
	}
}
