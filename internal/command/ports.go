package command

import (
	"context"

	"github.com/diaspomoney/payments/internal/domain/booking"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/diaspomoney/payments/internal/service"
	"github.com/google/uuid"
)

// The services commands delegate to. The concrete types live in
// internal/service.

type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req service.ProcessPaymentRequest) (*service.PaymentOutcome, error)
	ConfirmPayment(ctx context.Context, transactionID uuid.UUID, paymentMethodID string) (*service.PaymentOutcome, error)
	Refund(ctx context.Context, transactionID uuid.UUID, amount *float64, reason string) (payment.RefundResult, error)
}

type BookingPayments interface {
	CreateBookingWithPayment(ctx context.Context, req service.BookingPaymentRequest) (*service.BookingWithPayment, error)
	CancelWithRefund(ctx context.Context, bookingID uuid.UUID, reason string) (bool, error)
}

type BookingStatusWriter interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status booking.Status) (booking.Status, error)
}

type TransactionStore interface {
	Create(ctx context.Context, req service.CreateTransactionRequest) (*transaction.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status transaction.Status) (transaction.Status, error)
	Refund(ctx context.Context, id uuid.UUID, amount *float64, reason string) (*transaction.Transaction, payment.RefundResult, error)
	Cancel(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
}
