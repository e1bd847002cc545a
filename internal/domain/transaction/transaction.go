package transaction

import (
	"strings"
	"time"

	"github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(s)); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return st, nil
	}
	return "", errors.NewDomainError("invalid_status", "unknown transaction status "+s, errors.ErrInvalidStatus)
}

// Transaction records one charge against a provider.
type Transaction struct {
	ID                    uuid.UUID
	BookingID             *uuid.UUID
	CustomerID            string
	Provider              payment.Provider
	Amount                float64
	Currency              string
	Status                Status
	ProviderTransactionID *string
	PaymentIntentID       *string
	RefundID              *string
	RefundedAmount        float64
	FailureReason         *string
	Metadata              map[string]string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func NewTransaction(customerID string, provider payment.Provider, amount float64, currency string) (*Transaction, error) {
	if customerID == "" {
		return nil, errors.NewValidationError("customer_id", "cannot be empty")
	}
	if amount <= 0 {
		return nil, errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(currency) != 3 {
		return nil, errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	now := time.Now()
	return &Transaction{
		ID:         uuid.New(),
		CustomerID: customerID,
		Provider:   provider,
		Amount:     amount,
		Currency:   payment.NormalizeCurrency(currency),
		Status:     StatusPending,
		Metadata:   make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ApplyPaymentResult copies a strategy outcome onto the transaction.
func (t *Transaction) ApplyPaymentResult(res payment.PaymentResult) {
	if res.TransactionID != "" {
		id := res.TransactionID
		t.ProviderTransactionID = &id
	}
	if res.PaymentIntentID != "" {
		id := res.PaymentIntentID
		t.PaymentIntentID = &id
	}
	switch {
	case res.Success:
		t.Status = StatusCompleted
		t.FailureReason = nil
	case res.RequiresAction, res.Pending:
		t.Status = StatusProcessing
	default:
		t.Status = StatusFailed
		reason := res.Error
		t.FailureReason = &reason
	}
	t.UpdatedAt = time.Now()
}

// SetStatus writes status unconditionally; used for status write-backs.
func (t *Transaction) SetStatus(status Status) {
	t.Status = status
	t.UpdatedAt = time.Now()
}

// RefundableAmount is what remains after earlier partial refunds.
func (t *Transaction) RefundableAmount() float64 {
	return payment.FromMinorUnits(payment.ToMinorUnits(t.Amount) - payment.ToMinorUnits(t.RefundedAmount))
}

// CanRefund reports whether the transaction holds captured funds.
func (t *Transaction) CanRefund() bool {
	return t.Status == StatusCompleted && t.ProviderTransactionID != nil && t.RefundableAmount() > 0
}

// RecordRefund adds a refunded amount; a fully refunded transaction becomes REFUNDED.
func (t *Transaction) RecordRefund(refundID string, amount float64) error {
	if !t.CanRefund() {
		return errors.NewDomainError("invalid_refund",
			"cannot refund transaction in status "+string(t.Status), errors.ErrInvalidStateTransition)
	}
	if payment.ToMinorUnits(amount) > payment.ToMinorUnits(t.RefundableAmount()) {
		return errors.NewValidationError("amount", "exceeds refundable amount")
	}
	t.RefundedAmount = payment.FromMinorUnits(payment.ToMinorUnits(t.RefundedAmount) + payment.ToMinorUnits(amount))
	if refundID != "" {
		t.RefundID = &refundID
	}
	if t.RefundableAmount() <= 0 {
		t.Status = StatusRefunded
	}
	t.UpdatedAt = time.Now()
	return nil
}
