package booking

import (
	"strings"
	"time"

	"github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// ParseStatus matches s case-insensitively against the known booking statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(s)); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", errors.NewDomainError("invalid_status", "unknown booking status "+s, errors.ErrInvalidStatus)
}

// Booking is a customer's reservation of a provider's service.
type Booking struct {
	ID              uuid.UUID
	CustomerID      string
	ProviderID      string
	ServiceID       string
	BeneficiaryID   *string
	Amount          float64
	Currency        string
	Status          Status
	TransactionID   *uuid.UUID
	PaymentProvider *payment.Provider
	ScheduledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewBooking(customerID, providerID, serviceID string, amount float64, currency string) (*Booking, error) {
	if customerID == "" {
		return nil, errors.NewValidationError("customer_id", "cannot be empty")
	}
	if providerID == "" {
		return nil, errors.NewValidationError("provider_id", "cannot be empty")
	}
	if serviceID == "" {
		return nil, errors.NewValidationError("service_id", "cannot be empty")
	}
	if amount <= 0 {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(currency) != 3 {
		return nil, errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	now := time.Now()
	return &Booking{
		ID:         uuid.New(),
		CustomerID: customerID,
		ProviderID: providerID,
		ServiceID:  serviceID,
		Amount:     amount,
		Currency:   payment.NormalizeCurrency(currency),
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// SetStatus writes status unconditionally. Compensating actions restore an
// earlier status, so no transition table is enforced here.
func (b *Booking) SetStatus(status Status) {
	b.Status = status
	b.UpdatedAt = time.Now()
}

// AttachTransaction links the booking to the transaction that paid for it.
func (b *Booking) AttachTransaction(id uuid.UUID, provider payment.Provider) {
	b.TransactionID = &id
	b.PaymentProvider = &provider
	b.UpdatedAt = time.Now()
}

func (b *Booking) IsCancelled() bool {
	return b.Status == StatusCancelled
}
