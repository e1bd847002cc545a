package service

import (
	"context"
	"fmt"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransactionService owns the lifecycle of payment transactions.
type TransactionService struct {
	repo       transaction.Repository
	strategies StrategyResolver
	logger     zerolog.Logger
}

func NewTransactionService(repo transaction.Repository, strategies StrategyResolver, logger zerolog.Logger) *TransactionService {
	return &TransactionService{
		repo:       repo,
		strategies: strategies,
		logger:     logger.With().Str("component", "transaction_service").Logger(),
	}
}

type CreateTransactionRequest struct {
	BookingID  *uuid.UUID
	CustomerID string
	Provider   payment.Provider
	Amount     float64
	Currency   string
	Metadata   map[string]string
}

// Create records a new PENDING transaction.
func (s *TransactionService) Create(ctx context.Context, req CreateTransactionRequest) (*transaction.Transaction, error) {
	if _, err := payment.ParseProvider(string(req.Provider)); err != nil {
		return nil, err
	}

	t, err := transaction.NewTransaction(req.CustomerID, req.Provider, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	t.BookingID = req.BookingID
	for k, v := range req.Metadata {
		t.Metadata[k] = v
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.Info().Str("transaction_id", t.ID.String()).Str("provider", string(t.Provider)).Msg("transaction created")
	return t, nil
}

func (s *TransactionService) Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

// Save persists t as it is.
func (s *TransactionService) Save(ctx context.Context, t *transaction.Transaction) error {
	if err := s.repo.Update(ctx, t); err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return nil
}

// UpdateStatus writes status and returns the status it replaced.
func (s *TransactionService) UpdateStatus(ctx context.Context, id uuid.UUID, status transaction.Status) (transaction.Status, error) {
	status, err := transaction.ParseStatus(string(status))
	if err != nil {
		return "", err
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	previous := t.Status
	t.SetStatus(status)
	if err := s.Save(ctx, t); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("transaction_id", id.String()).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("transaction status updated")
	return previous, nil
}

// Refund refunds a completed transaction through its provider. A nil amount
// refunds whatever has not been refunded yet.
func (s *TransactionService) Refund(ctx context.Context, id uuid.UUID, amount *float64, reason string) (*transaction.Transaction, payment.RefundResult, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, payment.RefundResult{}, err
	}

	if !t.CanRefund() {
		return nil, payment.RefundResult{}, domainErrors.NewDomainError(
			"invalid_refund",
			fmt.Sprintf("cannot refund transaction in status %s", t.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	if amount != nil && payment.ToMinorUnits(*amount) > payment.ToMinorUnits(t.RefundableAmount()) {
		return nil, payment.RefundResult{}, domainErrors.NewValidationError("amount", "exceeds refundable amount")
	}

	strategy, err := s.strategies.Get(t.Provider)
	if err != nil {
		return nil, payment.RefundResult{}, err
	}

	// After a partial refund the remainder is sent explicitly.
	requested := amount
	if requested == nil && t.RefundedAmount > 0 {
		left := t.RefundableAmount()
		requested = &left
	}

	res := strategy.Refund(ctx, payment.RefundData{
		TransactionID: *t.ProviderTransactionID,
		Amount:        requested,
		Currency:      t.Currency,
		Reason:        reason,
		Metadata:      map[string]string{"transaction_id": t.ID.String()},
	})
	if !res.Success {
		return nil, res, domainErrors.NewDomainError("refund_failed", "refund failed: "+res.Error, domainErrors.ErrProviderRejected)
	}

	refunded := t.RefundableAmount()
	if requested != nil {
		refunded = *requested
	}
	if err := t.RecordRefund(res.RefundID, refunded); err != nil {
		return nil, res, err
	}
	if err := s.Save(ctx, t); err != nil {
		return nil, res, err
	}

	s.logger.Info().
		Str("transaction_id", t.ID.String()).
		Str("refund_id", res.RefundID).
		Float64("amount", refunded).
		Msg("transaction refunded")
	return t, res, nil
}

// Cancel moves a transaction that never settled to CANCELLED.
func (s *TransactionService) Cancel(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != transaction.StatusPending && t.Status != transaction.StatusProcessing {
		return nil, domainErrors.NewDomainError(
			"invalid_cancel",
			fmt.Sprintf("cannot cancel transaction in status %s", t.Status),
			domainErrors.ErrInvalidStateTransition,
		)
	}
	t.SetStatus(transaction.StatusCancelled)
	if err := s.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Sync reconciles an unsettled transaction with its provider. Settled
// transactions are returned as stored without a provider call.
func (s *TransactionService) Sync(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != transaction.StatusPending && t.Status != transaction.StatusProcessing {
		return t, nil
	}

	ref := t.PaymentIntentID
	if ref == nil {
		ref = t.ProviderTransactionID
	}
	if ref == nil {
		return t, nil
	}

	strategy, err := s.strategies.Get(t.Provider)
	if err != nil {
		return nil, err
	}

	res := strategy.TransactionStatus(ctx, *ref)
	if !res.Success && res.ProviderStatus() == "" {
		return nil, domainErrors.NewDomainError("status_unavailable",
			"provider status lookup failed: "+res.Error, domainErrors.ErrProviderUnavailable)
	}

	previous := t.Status
	t.ApplyPaymentResult(res)
	if t.Status == previous {
		return t, nil
	}
	if err := s.Save(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transaction_id", t.ID.String()).
		Str("from", string(previous)).
		Str("to", string(t.Status)).
		Str("provider_status", res.ProviderStatus()).
		Msg("transaction synced with provider")
	return t, nil
}
