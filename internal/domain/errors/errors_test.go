package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "refund_failed",
				Message: "refund could not be issued",
				Err:     errors.New("provider timeout"),
			},
			expected: "refund could not be issued: provider timeout",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "cannot refund transaction in current state",
			},
			expected: "cannot refund transaction in current state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	domainErr := NewDomainError("provider_error", "provider call failed", ErrProviderTimeout)

	assert.ErrorIs(t, domainErr, ErrProviderTimeout)
	assert.Equal(t, "provider_error", domainErr.Code)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("currency", "must be a 3-letter ISO code")

	assert.Equal(t, "validation failed for field currency: must be a 3-letter ISO code", err.Error())
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestIsProviderFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", fmt.Errorf("confirm: %w", ErrProviderTimeout), true},
		{"unavailable", ErrProviderUnavailable, true},
		{"rejected", NewDomainError("card_declined", "declined", ErrProviderRejected), true},
		{"validation", NewValidationError("amount", "must be positive"), false},
		{"unknown provider", ErrUnknownProvider, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsProviderFailure(tt.err))
		})
	}
}
