package command

import (
	"context"

	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	NameCreatePayment  = "CreatePayment"
	NameConfirmPayment = "ConfirmPayment"
)

type CreatePaymentData struct {
	Provider        payment.Provider  `json:"provider,omitempty"`
	Country         string            `json:"country,omitempty"`
	BookingID       *uuid.UUID        `json:"bookingId,omitempty"`
	Amount          float64           `json:"amount"`
	Currency        string            `json:"currency"`
	CustomerID      string            `json:"customerId"`
	PaymentMethodID string            `json:"paymentMethodId,omitempty"`
	Description     string            `json:"description,omitempty"`
	ReturnURL       string            `json:"returnUrl,omitempty"`
	CancelURL       string            `json:"cancelUrl,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Deferred        bool              `json:"deferred,omitempty"`
}

// CreatePayment charges a customer. Undo refunds the whole transaction.
type CreatePayment struct {
	Base[CreatePaymentData]
	payments PaymentProcessor
	logger   zerolog.Logger

	outcome *service.PaymentOutcome
}

func NewCreatePayment(data CreatePaymentData, payments PaymentProcessor, logger zerolog.Logger) *CreatePayment {
	return &CreatePayment{
		Base:     NewBase(NameCreatePayment, data),
		payments: payments,
		logger:   logger,
	}
}

func (c *CreatePayment) Execute(ctx context.Context) (any, error) {
	in := c.Input()
	out, err := c.payments.ProcessPayment(ctx, service.ProcessPaymentRequest{
		Provider:  in.Provider,
		Country:   in.Country,
		BookingID: in.BookingID,
		Data: payment.PaymentData{
			Amount:          in.Amount,
			Currency:        in.Currency,
			CustomerID:      in.CustomerID,
			PaymentMethodID: in.PaymentMethodID,
			Description:     in.Description,
			Metadata:        in.Metadata,
			ReturnURL:       in.ReturnURL,
			CancelURL:       in.CancelURL,
		},
		Deferred: in.Deferred,
	})
	if err != nil {
		return nil, err
	}
	c.outcome = out
	return out, nil
}

func (c *CreatePayment) Undo(ctx context.Context) error {
	if !c.outcome.Succeeded() || c.outcome.Transaction == nil {
		c.logger.Warn().Str("command", c.Name()).Msg("payment did not succeed, nothing to refund")
		return nil
	}
	_, err := c.payments.Refund(ctx, c.outcome.Transaction.ID, nil, "payment command undone")
	return err
}

type ConfirmPaymentData struct {
	TransactionID   uuid.UUID `json:"transactionId"`
	PaymentMethodID string    `json:"paymentMethodId,omitempty"`
}

// ConfirmPayment captures a staged payment. A capture is only reversed by
// an explicit refund, so the command has no undo.
type ConfirmPayment struct {
	NoUndo[ConfirmPaymentData]
	payments PaymentProcessor
}

func NewConfirmPayment(data ConfirmPaymentData, payments PaymentProcessor) *ConfirmPayment {
	return &ConfirmPayment{
		NoUndo:   NewNoUndo(NameConfirmPayment, data),
		payments: payments,
	}
}

func (c *ConfirmPayment) Execute(ctx context.Context) (any, error) {
	in := c.Input()
	return c.payments.ConfirmPayment(ctx, in.TransactionID, in.PaymentMethodID)
}
