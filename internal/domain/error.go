package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrOrderTerminal     = errors.New("payment order already reached a terminal status")
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrPendingExists     = errors.New("a pending payment already exists for this plan")
	ErrLockBusy          = errors.New("checkout is being created by another request")
	ErrUnauthenticated   = errors.New("missing or invalid credential")

	// ErrTimeoutExceeded marks the polling ceiling. It is a state, not a failure:
	// the order stays pending and a manual re-check remains available.
	ErrTimeoutExceeded = errors.New("payment status polling ceiling reached")

	// Storage errors
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)

// ValidationError is bad input from the caller. Never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// GatewayError means the gateway answered but rejected the request.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: http %d: %s", e.Op, e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrNotFound) match a gateway 404.
func (e *GatewayError) Unwrap() error {
	if e.StatusCode == 404 {
		return ErrNotFound
	}
	return nil
}

// TransportError means no usable response came back (network, timeout, garbled body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether a user-initiated retry may succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrTimeoutExceeded) || errors.Is(err, ErrLockBusy)
}

// UserMessage turns an error into the text shown next to the retry affordance.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		if ge.Message != "" {
			return ge.Message
		}
		return "The payment service rejected the request. Please try again."
	}
	var te *TransportError
	if errors.As(err, &te) {
		return "Could not reach the payment service. Check your connection and try again."
	}
	switch {
	case errors.Is(err, ErrTimeoutExceeded):
		return "We have not received a confirmation yet. Use \"check now\" to refresh the status."
	case errors.Is(err, ErrNotFound):
		return "The requested item was not found."
	case errors.Is(err, ErrLockBusy):
		return "A checkout for this plan is already being prepared. Please wait a moment."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in again."
	}
	return "Something went wrong. Please try again."
}
