package command

import (
	"context"

	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/diaspomoney/payments/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	NameCreateTransaction       = "CreateTransaction"
	NameUpdateTransactionStatus = "UpdateTransactionStatus"
	NameRefundTransaction       = "RefundTransaction"
)

type CreateTransactionData struct {
	BookingID  *uuid.UUID        `json:"bookingId,omitempty"`
	CustomerID string            `json:"customerId"`
	Provider   payment.Provider  `json:"provider"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CreateTransaction records a transaction. Undo refunds it once it has
// settled and cancels it while it has not.
type CreateTransaction struct {
	Base[CreateTransactionData]
	transactions TransactionStore
	logger       zerolog.Logger

	createdID *uuid.UUID
}

func NewCreateTransaction(data CreateTransactionData, transactions TransactionStore, logger zerolog.Logger) *CreateTransaction {
	return &CreateTransaction{
		Base:         NewBase(NameCreateTransaction, data),
		transactions: transactions,
		logger:       logger,
	}
}

func (c *CreateTransaction) Execute(ctx context.Context) (any, error) {
	in := c.Input()
	t, err := c.transactions.Create(ctx, service.CreateTransactionRequest{
		BookingID:  in.BookingID,
		CustomerID: in.CustomerID,
		Provider:   in.Provider,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Metadata:   in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	c.createdID = &t.ID
	return t, nil
}

func (c *CreateTransaction) Undo(ctx context.Context) error {
	if c.createdID == nil {
		c.logger.Warn().Str("command", c.Name()).Msg("no transaction was created, nothing to undo")
		return nil
	}
	t, err := c.transactions.Get(ctx, *c.createdID)
	if err != nil {
		return err
	}

	switch t.Status {
	case transaction.StatusCompleted:
		_, _, err = c.transactions.Refund(ctx, t.ID, nil, "transaction command undone")
	case transaction.StatusPending, transaction.StatusProcessing:
		_, err = c.transactions.Cancel(ctx, t.ID)
	default:
		c.logger.Warn().
			Str("command", c.Name()).
			Str("transaction_id", t.ID.String()).
			Str("status", string(t.Status)).
			Msg("transaction holds no funds, nothing to undo")
	}
	return err
}

// TransactionStatusChange is the result of UpdateTransactionStatus.
type TransactionStatusChange struct {
	TransactionID uuid.UUID          `json:"transactionId"`
	Previous      transaction.Status `json:"previousStatus"`
	Current       transaction.Status `json:"status"`
}

type UpdateTransactionStatusData struct {
	TransactionID uuid.UUID          `json:"transactionId"`
	Status        transaction.Status `json:"status"`
}

// UpdateTransactionStatus overwrites a transaction's status; undo writes the
// previous one back.
type UpdateTransactionStatus struct {
	Base[UpdateTransactionStatusData]
	transactions TransactionStore
	logger       zerolog.Logger

	previous transaction.Status
}

func NewUpdateTransactionStatus(data UpdateTransactionStatusData, transactions TransactionStore, logger zerolog.Logger) *UpdateTransactionStatus {
	return &UpdateTransactionStatus{
		Base:         NewBase(NameUpdateTransactionStatus, data),
		transactions: transactions,
		logger:       logger,
	}
}

func (c *UpdateTransactionStatus) Execute(ctx context.Context) (any, error) {
	in := c.Input()
	prev, err := c.transactions.UpdateStatus(ctx, in.TransactionID, in.Status)
	if err != nil {
		return nil, err
	}
	c.previous = prev
	return &TransactionStatusChange{TransactionID: in.TransactionID, Previous: prev, Current: in.Status}, nil
}

func (c *UpdateTransactionStatus) Undo(ctx context.Context) error {
	if c.previous == "" {
		c.logger.Warn().Str("command", c.Name()).Msg("no previous status captured, nothing to undo")
		return nil
	}
	_, err := c.transactions.UpdateStatus(ctx, c.Input().TransactionID, c.previous)
	return err
}

type RefundTransactionData struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Amount        *float64  `json:"amount,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// RefundOutcome is the result of RefundTransaction.
type RefundOutcome struct {
	Transaction *transaction.Transaction `json:"transaction"`
	Refund      payment.RefundResult     `json:"refund"`
}

// RefundTransaction refunds a settled transaction. Refunds are final.
type RefundTransaction struct {
	NoUndo[RefundTransactionData]
	transactions TransactionStore
}

func NewRefundTransaction(data RefundTransactionData, transactions TransactionStore) *RefundTransaction {
	return &RefundTransaction{
		NoUndo:       NewNoUndo(NameRefundTransaction, data),
		transactions: transactions,
	}
}

func (c *RefundTransaction) Execute(ctx context.Context) (any, error) {
	in := c.Input()
	t, res, err := c.transactions.Refund(ctx, in.TransactionID, in.Amount, in.Reason)
	if err != nil {
		return nil, err
	}
	return &RefundOutcome{Transaction: t, Refund: res}, nil
}
