package errors

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrNotConfigured   = errors.New("provider credentials not configured")
	ErrUnknownProvider = errors.New("unknown payment provider")

	// Validation errors
	ErrValidationFailed    = errors.New("validation failed")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrUnsupportedCountry  = errors.New("unsupported country")
	ErrNoStrategyAvailable = errors.New("no payment strategy supports this payment")

	// Provider errors
	ErrProviderRejected    = errors.New("payment rejected by provider")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderTimeout     = errors.New("provider request timeout")

	// Booking and transaction errors
	ErrBookingNotFound        = errors.New("booking not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Command errors
	ErrCommandInFlight = errors.New("a command is already executing")
	ErrNothingToUndo   = errors.New("no command to undo")
	ErrNotUndoable     = errors.New("command cannot be undone")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrRequestInProgress       = errors.New("request with this idempotency key is in progress")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation error with ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsProviderFailure reports whether err originates from an external provider
// rather than from the caller's input.
func IsProviderFailure(err error) bool {
	return errors.Is(err, ErrProviderRejected) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrProviderTimeout)
}
