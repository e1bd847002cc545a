package service

import (
	"context"
	"fmt"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/diaspomoney/payments/internal/providers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentService is the entry point for charging customers. Every charge is
// recorded as a transaction.
type PaymentService struct {
	strategies   StrategyResolver
	transactions *TransactionService
	logger       zerolog.Logger
}

func NewPaymentService(strategies StrategyResolver, transactions *TransactionService, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		strategies:   strategies,
		transactions: transactions,
		logger:       logger.With().Str("component", "payment_service").Logger(),
	}
}

type ProcessPaymentRequest struct {
	// Provider may be empty, in which case the best strategy for the
	// currency and country is used.
	Provider  payment.Provider
	Country   string
	BookingID *uuid.UUID
	Data      payment.PaymentData
	// Deferred only stages the payment with the provider. ConfirmPayment
	// completes it later.
	Deferred bool
}

// PaymentOutcome pairs the stored transaction with the provider result.
type PaymentOutcome struct {
	Transaction *transaction.Transaction `json:"transaction"`
	Result      payment.PaymentResult    `json:"result"`
}

// Succeeded reports whether the provider settled the payment.
func (o *PaymentOutcome) Succeeded() bool {
	return o != nil && o.Result.Success
}

// ProcessPayment charges the customer. Provider declines are reported in the
// outcome, not as errors. Errors mean the request itself was unusable or the
// transaction could not be stored.
func (s *PaymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*PaymentOutcome, error) {
	if err := req.Data.Validate(); err != nil {
		return nil, err
	}

	strategy, err := s.resolve(req.Provider, req.Data.Currency, req.Country)
	if err != nil {
		return nil, err
	}
	if !strategy.CanProcess(req.Data) {
		return nil, domainErrors.NewDomainError("unsupported_currency",
			fmt.Sprintf("%s cannot process %s payments", strategy.Name(), payment.NormalizeCurrency(req.Data.Currency)),
			domainErrors.ErrUnsupportedCurrency)
	}

	t, err := s.transactions.Create(ctx, CreateTransactionRequest{
		BookingID:  req.BookingID,
		CustomerID: req.Data.CustomerID,
		Provider:   strategy.Name(),
		Amount:     req.Data.Amount,
		Currency:   req.Data.Currency,
		Metadata:   req.Data.Metadata,
	})
	if err != nil {
		return nil, err
	}

	data := req.Data
	data.Metadata = make(map[string]string, len(req.Data.Metadata)+2)
	for k, v := range req.Data.Metadata {
		data.Metadata[k] = v
	}
	data.Metadata["transaction_id"] = t.ID.String()
	if req.BookingID != nil {
		data.Metadata["booking_id"] = req.BookingID.String()
	}

	s.logger.Debug().
		Str("transaction_id", t.ID.String()).
		Str("provider", string(strategy.Name())).
		Float64("amount", data.Amount).
		Str("currency", data.Currency).
		Msg("processing payment")

	var res payment.PaymentResult
	if req.Deferred {
		res = strategy.CreatePaymentIntent(ctx, data)
		// A staged intent is not a settled payment.
		if res.Success {
			res.Success = false
			res.RequiresAction = true
		}
	} else {
		res = strategy.ProcessPayment(ctx, data)
	}
	t.ApplyPaymentResult(res)
	if err := s.transactions.Save(ctx, t); err != nil {
		return nil, err
	}

	return &PaymentOutcome{Transaction: t, Result: res}, nil
}

// ConfirmPayment completes the second phase of a staged payment.
func (s *PaymentService) ConfirmPayment(ctx context.Context, transactionID uuid.UUID, paymentMethodID string) (*PaymentOutcome, error) {
	t, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != transaction.StatusPending && t.Status != transaction.StatusProcessing {
		return nil, domainErrors.NewDomainError("invalid_confirm",
			fmt.Sprintf("cannot confirm transaction in status %s", t.Status),
			domainErrors.ErrInvalidStateTransition)
	}
	if t.PaymentIntentID == nil {
		return nil, domainErrors.NewValidationError("transaction_id", "transaction has no payment intent to confirm")
	}

	strategy, err := s.strategies.Get(t.Provider)
	if err != nil {
		return nil, err
	}

	res := strategy.ConfirmPaymentIntent(ctx, *t.PaymentIntentID, paymentMethodID)
	t.ApplyPaymentResult(res)
	if err := s.transactions.Save(ctx, t); err != nil {
		return nil, err
	}
	return &PaymentOutcome{Transaction: t, Result: res}, nil
}

// Refund refunds a transaction. A nil amount refunds the remainder.
func (s *PaymentService) Refund(ctx context.Context, transactionID uuid.UUID, amount *float64, reason string) (payment.RefundResult, error) {
	_, res, err := s.transactions.Refund(ctx, transactionID, amount, reason)
	return res, err
}

func (s *PaymentService) resolve(provider payment.Provider, currency, country string) (providers.Strategy, error) {
	if provider != "" {
		return s.strategies.Get(provider)
	}
	best := s.strategies.Best(currency, country)
	if best == nil {
		return nil, domainErrors.NewDomainError("no_strategy",
			fmt.Sprintf("no payment provider supports %s in %q", payment.NormalizeCurrency(currency), country),
			domainErrors.ErrNoStrategyAvailable)
	}
	return best, nil
}
