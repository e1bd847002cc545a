package service

import (
	"context"
	"fmt"

	"github.com/diaspomoney/payments/internal/domain/booking"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/diaspomoney/payments/pkg/saga"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingFacade coordinates a booking with the payment that pays for it.
type BookingFacade struct {
	bookings     *BookingService
	payments     *PaymentService
	transactions *TransactionService
	txManager    TransactionManager
	logger       zerolog.Logger
}

func NewBookingFacade(
	bookings *BookingService,
	payments *PaymentService,
	transactions *TransactionService,
	txManager TransactionManager,
	logger zerolog.Logger,
) *BookingFacade {
	return &BookingFacade{
		bookings:     bookings,
		payments:     payments,
		transactions: transactions,
		txManager:    txManager,
		logger:       logger.With().Str("component", "booking_facade").Logger(),
	}
}

type BookingPaymentRequest struct {
	Booking         CreateBookingRequest
	Provider        payment.Provider
	Country         string
	PaymentMethodID string
	Description     string
	ReturnURL       string
	CancelURL       string
	Metadata        map[string]string
}

type BookingWithPayment struct {
	Booking *booking.Booking `json:"booking"`
	Payment *PaymentOutcome  `json:"payment"`
}

// Paid reports whether the booking's payment settled.
func (r *BookingWithPayment) Paid() bool {
	return r != nil && r.Payment.Succeeded()
}

// CreateBookingWithPayment books the service and charges the customer. A
// declined payment leaves the booking PENDING with the failed transaction
// attached. An error from any step rolls back the steps before it.
func (f *BookingFacade) CreateBookingWithPayment(ctx context.Context, req BookingPaymentRequest) (*BookingWithPayment, error) {
	var (
		b       *booking.Booking
		outcome *PaymentOutcome
	)

	s := saga.New("create_booking_with_payment").
		AddStep(saga.Step{
			Name: "create_booking",
			Execute: func(ctx context.Context) error {
				var err error
				b, err = f.bookings.Create(ctx, req.Booking)
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := f.bookings.UpdateStatus(ctx, b.ID, booking.StatusCancelled)
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "process_payment",
			Execute: func(ctx context.Context) error {
				metadata := map[string]string{
					"booking_id":  b.ID.String(),
					"provider_id": b.ProviderID,
					"service_id":  b.ServiceID,
				}
				for k, v := range req.Metadata {
					metadata[k] = v
				}

				var err error
				outcome, err = f.payments.ProcessPayment(ctx, ProcessPaymentRequest{
					Provider:  req.Provider,
					Country:   req.Country,
					BookingID: &b.ID,
					Data: payment.PaymentData{
						Amount:          b.Amount,
						Currency:        b.Currency,
						CustomerID:      b.CustomerID,
						PaymentMethodID: req.PaymentMethodID,
						Description:     req.Description,
						Metadata:        metadata,
						ReturnURL:       req.ReturnURL,
						CancelURL:       req.CancelURL,
					},
				})
				return err
			},
			Compensate: func(ctx context.Context) error {
				return f.releasePayment(ctx, outcome.Transaction, "booking could not be completed")
			},
		}).
		AddStep(saga.Step{
			Name: "link_transaction",
			Execute: func(ctx context.Context) error {
				return f.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
					linked, err := f.bookings.AttachTransaction(txCtx, b.ID, outcome.Transaction.ID,
						outcome.Transaction.Provider, outcome.Succeeded())
					if err != nil {
						return err
					}
					b = linked
					return nil
				})
			},
		})

	result, err := s.Run(ctx)
	if err != nil {
		f.logger.Error().
			Err(err).
			Str("failed_step", result.Failed).
			Strs("compensated", result.Compensated).
			Msg("booking with payment rolled back")
		return nil, err
	}

	f.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("transaction_id", outcome.Transaction.ID.String()).
		Bool("paid", outcome.Succeeded()).
		Bool("requires_action", outcome.Result.RequiresAction).
		Msg("booking with payment created")

	return &BookingWithPayment{Booking: b, Payment: outcome}, nil
}

// CancelWithRefund cancels a booking and releases its payment: a settled
// transaction is refunded, an unsettled one is cancelled, a failed one is
// left alone. It reports whether a refund was issued.
func (f *BookingFacade) CancelWithRefund(ctx context.Context, bookingID uuid.UUID, reason string) (bool, error) {
	b, err := f.bookings.Get(ctx, bookingID)
	if err != nil {
		return false, err
	}

	if !b.IsCancelled() {
		if _, err := f.bookings.UpdateStatus(ctx, bookingID, booking.StatusCancelled); err != nil {
			return false, err
		}
	}

	if b.TransactionID == nil {
		return false, nil
	}

	t, err := f.transactions.Get(ctx, *b.TransactionID)
	if err != nil {
		return false, fmt.Errorf("load booking transaction: %w", err)
	}
	refunded := t.Status == transaction.StatusCompleted
	return refunded, f.releasePayment(ctx, t, reason)
}

func (f *BookingFacade) releasePayment(ctx context.Context, t *transaction.Transaction, reason string) error {
	if t == nil {
		return nil
	}
	switch t.Status {
	case transaction.StatusCompleted:
		_, _, err := f.transactions.Refund(ctx, t.ID, nil, reason)
		return err
	case transaction.StatusPending, transaction.StatusProcessing:
		_, err := f.transactions.Cancel(ctx, t.ID)
		return err
	default:
		f.logger.Debug().Str("transaction_id", t.ID.String()).Str("status", string(t.Status)).Msg("nothing to release")
		return nil
	}
}
