package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

var (
	stripeCurrencies = []string{"EUR", "USD", "GBP", "XOF", "XAF"}
	stripeCountries  = []string{"FR", "BE", "CH", "GB", "CI", "SN", "CM", "CD", "BJ", "TG", "ML", "BF", "NE", "GA", "CG"}
)

// Stripe refund reasons accepted by the API. Anything else goes to metadata.
var stripeRefundReasons = map[string]bool{
	string(stripe.RefundReasonDuplicate):           true,
	string(stripe.RefundReasonFraudulent):          true,
	string(stripe.RefundReasonRequestedByCustomer): true,
}

// stripeBackend is the subset of the Stripe API the strategy uses.
type stripeBackend interface {
	CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	ConfirmPaymentIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type sdkBackend struct {
	api *client.API
}

func (b sdkBackend) CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return b.api.PaymentIntents.New(params)
}

func (b sdkBackend) ConfirmPaymentIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	return b.api.PaymentIntents.Confirm(id, params)
}

func (b sdkBackend) GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return b.api.PaymentIntents.Get(id, params)
}

func (b sdkBackend) CreateRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return b.api.Refunds.New(params)
}

type StripeOptions struct {
	SecretKey string
	// APIURL points the client at another API host such as stripe-mock.
	APIURL string
	// HTTPClient is used for API calls when set.
	HTTPClient *http.Client
}

// StripeStrategy processes payments through Stripe PaymentIntents.
type StripeStrategy struct {
	backend stripeBackend
	guard   *guard
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewStripeStrategy fails with ErrNotConfigured when no secret key is given.
func NewStripeStrategy(opts StripeOptions, cfg GuardConfig, obs Observer) (*StripeStrategy, error) {
	if opts.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key: %w", domainErrors.ErrNotConfigured)
	}

	var backends *stripe.Backends
	if opts.APIURL != "" || opts.HTTPClient != nil {
		bc := &stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		}
		if opts.APIURL != "" {
			bc.URL = stripe.String(opts.APIURL)
		}
		if opts.HTTPClient != nil {
			bc.HTTPClient = opts.HTTPClient
		}
		api := stripe.GetBackendWithConfig(stripe.APIBackend, bc)
		backends = &stripe.Backends{API: api, Connect: api, Uploads: api}
	}

	api := &client.API{}
	api.Init(opts.SecretKey, backends)

	return newStripeStrategy(sdkBackend{api: api}, cfg, obs), nil
}

func newStripeStrategy(backend stripeBackend, cfg GuardConfig, obs Observer) *StripeStrategy {
	obs.Logger = obs.Logger.With().Str("component", "stripe_strategy").Logger()
	return &StripeStrategy{
		backend: backend,
		guard:   newGuard(payment.ProviderStripe, cfg, obs),
		logger:  obs.Logger,
		metrics: obs.Metrics,
	}
}

func (s *StripeStrategy) Name() payment.Provider { return payment.ProviderStripe }

func (s *StripeStrategy) SupportedCurrencies() []string { return copyList(stripeCurrencies) }

func (s *StripeStrategy) SupportedCountries() []string { return copyList(stripeCountries) }

func (s *StripeStrategy) CanProcess(data payment.PaymentData) bool {
	return gate(s, data)
}

func (s *StripeStrategy) ProcessPayment(ctx context.Context, data payment.PaymentData) payment.PaymentResult {
	return s.createIntent(ctx, "process_payment", data, true)
}

func (s *StripeStrategy) CreatePaymentIntent(ctx context.Context, data payment.PaymentData) payment.PaymentResult {
	return s.createIntent(ctx, "create_payment_intent", data, false)
}

func (s *StripeStrategy) createIntent(ctx context.Context, op string, data payment.PaymentData, charge bool) payment.PaymentResult {
	currency := payment.NormalizeCurrency(data.Currency)
	if err := rejectUnprocessable(s, data); err != nil {
		return s.guard.paymentFailed(ctx, op, currency, err)
	}

	s.logger.Debug().
		Str("operation", op).
		Float64("amount", data.Amount).
		Str("currency", currency).
		Str("customer_id", data.CustomerID).
		Msg("creating payment intent")

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(payment.ToMinorUnits(data.Amount)),
		Currency:      stripe.String(strings.ToLower(currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if data.Description != "" {
		params.Description = stripe.String(data.Description)
	}
	for k, v := range data.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("customer_id", data.CustomerID)
	params.AddMetadata("amount", strconv.FormatFloat(data.Amount, 'f', -1, 64))

	if charge && data.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(data.PaymentMethodID)
		params.Confirm = stripe.Bool(true)
		if data.ReturnURL != "" {
			params.ReturnURL = stripe.String(data.ReturnURL)
		} else {
			params.AutomaticPaymentMethods.AllowRedirects = stripe.String("never")
		}
	}

	params.SetIdempotencyKey(idempotencyKey(payment.ProviderStripe, op))

	pi, err := guarded(ctx, s.guard, op, func(callCtx context.Context) (*stripe.PaymentIntent, error) {
		params.Context = callCtx
		pi, err := s.backend.CreatePaymentIntent(params)
		return pi, classifyStripeError(err)
	})
	if err != nil {
		return s.guard.paymentFailed(ctx, op, currency, err)
	}

	if !charge {
		res := intentResult(pi)
		res.Success = true
		res.Error = ""
		s.logger.Info().Str("payment_intent_id", pi.ID).Msg("payment intent created")
		s.metrics.RecordPayment(string(payment.ProviderStripe), currency, "created")
		return res
	}
	return s.settle(op, currency, pi)
}

func (s *StripeStrategy) ConfirmPaymentIntent(ctx context.Context, id, paymentMethodID string) payment.PaymentResult {
	const op = "confirm_payment_intent"
	if id == "" {
		return s.guard.paymentFailed(ctx, op, "", domainErrors.NewValidationError("payment_intent_id", "cannot be empty"))
	}

	s.logger.Debug().Str("payment_intent_id", id).Msg("confirming payment intent")

	params := &stripe.PaymentIntentConfirmParams{}
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}
	params.SetIdempotencyKey(idempotencyKey(payment.ProviderStripe, op))

	pi, err := guarded(ctx, s.guard, op, func(callCtx context.Context) (*stripe.PaymentIntent, error) {
		params.Context = callCtx
		pi, err := s.backend.ConfirmPaymentIntent(id, params)
		return pi, classifyStripeError(err)
	})
	if err != nil {
		return s.guard.paymentFailed(ctx, op, "", err)
	}
	return s.settle(op, strings.ToUpper(string(pi.Currency)), pi)
}

func (s *StripeStrategy) settle(op, currency string, pi *stripe.PaymentIntent) payment.PaymentResult {
	res := intentResult(pi)
	switch {
	case res.Success:
		s.logger.Info().Str("operation", op).Str("payment_intent_id", pi.ID).Msg("payment succeeded")
		s.metrics.RecordPayment(string(payment.ProviderStripe), currency, "succeeded")
	case res.RequiresAction:
		s.logger.Info().Str("operation", op).Str("payment_intent_id", pi.ID).Msg("payment requires customer action")
		s.metrics.RecordPayment(string(payment.ProviderStripe), currency, "requires_action")
	case res.Pending:
		s.logger.Info().Str("operation", op).Str("payment_intent_id", pi.ID).Msg("payment processing")
		s.metrics.RecordPayment(string(payment.ProviderStripe), currency, "pending")
	default:
		s.logger.Warn().Str("operation", op).Str("payment_intent_id", pi.ID).Str("status", string(pi.Status)).Msg("payment not completed")
		s.metrics.RecordPayment(string(payment.ProviderStripe), currency, "failed")
	}
	return res
}

func (s *StripeStrategy) Refund(ctx context.Context, data payment.RefundData) payment.RefundResult {
	if data.TransactionID == "" {
		return s.guard.refundFailed(ctx, domainErrors.NewValidationError("transaction_id", "cannot be empty"))
	}
	if data.Amount != nil && *data.Amount <= 0 {
		return s.guard.refundFailed(ctx, domainErrors.NewValidationError("amount", "must be greater than 0"))
	}

	s.logger.Debug().Str("payment_intent_id", data.TransactionID).Bool("full", data.Amount == nil).Msg("creating refund")

	params := &stripe.RefundParams{PaymentIntent: stripe.String(data.TransactionID)}
	// No amount means Stripe refunds whatever is left on the intent.
	if data.Amount != nil {
		params.Amount = stripe.Int64(payment.ToMinorUnits(*data.Amount))
	}
	if data.Reason != "" {
		if stripeRefundReasons[data.Reason] {
			params.Reason = stripe.String(data.Reason)
		} else {
			params.AddMetadata("reason", data.Reason)
		}
	}
	for k, v := range data.Metadata {
		params.AddMetadata(k, v)
	}
	params.SetIdempotencyKey(idempotencyKey(payment.ProviderStripe, "refund"))

	r, err := guarded(ctx, s.guard, "refund", func(callCtx context.Context) (*stripe.Refund, error) {
		params.Context = callCtx
		r, err := s.backend.CreateRefund(params)
		return r, classifyStripeError(err)
	})
	if err != nil {
		return s.guard.refundFailed(ctx, err)
	}

	amount := payment.FromMinorUnits(r.Amount)
	res := payment.RefundResult{RefundID: r.ID, Amount: &amount}
	switch r.Status {
	case stripe.RefundStatusSucceeded, stripe.RefundStatusPending:
		res.Success = true
		s.logger.Info().Str("refund_id", r.ID).Str("status", string(r.Status)).Msg("refund issued")
		s.metrics.RecordRefund(string(payment.ProviderStripe), strings.ToUpper(string(r.Currency)))
	default:
		res.Error = "refund " + string(r.Status)
		s.guard.fail(ctx, "refund", fmt.Errorf("refund %s: %s: %w", r.ID, r.Status, domainErrors.ErrProviderRejected))
	}
	return res
}

func (s *StripeStrategy) TransactionStatus(ctx context.Context, id string) payment.PaymentResult {
	const op = "transaction_status"
	if id == "" {
		return s.guard.paymentFailed(ctx, op, "", domainErrors.NewValidationError("payment_intent_id", "cannot be empty"))
	}

	pi, err := guarded(ctx, s.guard, op, func(callCtx context.Context) (*stripe.PaymentIntent, error) {
		params := &stripe.PaymentIntentParams{}
		params.Context = callCtx
		pi, err := s.backend.GetPaymentIntent(id, params)
		return pi, classifyStripeError(err)
	})
	if err != nil {
		return s.guard.paymentFailed(ctx, op, "", err)
	}
	return intentResult(pi)
}

// intentResult maps a PaymentIntent onto the provider-neutral result.
func intentResult(pi *stripe.PaymentIntent) payment.PaymentResult {
	res := payment.PaymentResult{
		TransactionID:   pi.ID,
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Metadata:        map[string]string{"status": string(pi.Status)},
	}
	for k, v := range pi.Metadata {
		res.Metadata[k] = v
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Success = true
	case stripe.PaymentIntentStatusRequiresAction:
		res.RequiresAction = true
		res.NextAction = &payment.NextAction{Type: "redirect_to_url"}
		if na := pi.NextAction; na != nil {
			res.NextAction.Type = string(na.Type)
			if na.RedirectToURL != nil {
				res.NextAction.URL = na.RedirectToURL.URL
			}
		}
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		res.Pending = true
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusRequiresConfirmation:
		// The customer still has to confirm client side with the client secret.
		res.RequiresAction = true
		res.NextAction = &payment.NextAction{
			Type: "confirm_payment",
			Data: map[string]string{"client_secret": pi.ClientSecret},
		}
	default:
		res.Error = "payment intent " + string(pi.Status)
	}
	return res
}

// classifyStripeError maps SDK errors onto the provider sentinels.
func classifyStripeError(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if !errors.As(err, &se) {
		return domainErrors.NewDomainError("stripe_network", "stripe request failed", fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err))
	}

	sentinel := domainErrors.ErrProviderRejected
	if se.HTTPStatusCode >= http.StatusInternalServerError ||
		se.HTTPStatusCode == http.StatusTooManyRequests ||
		se.Type == stripe.ErrorTypeAPI {
		sentinel = domainErrors.ErrProviderUnavailable
	}

	code := string(se.Code)
	if code == "" {
		code = string(se.Type)
	}
	return domainErrors.NewDomainError(code, se.Msg, sentinel)
}

// rejectUnprocessable explains why CanProcess would refuse data.
func rejectUnprocessable(s Strategy, data payment.PaymentData) error {
	if data.Amount <= 0 {
		return domainErrors.NewDomainError("invalid_amount", "amount must be greater than 0", domainErrors.ErrInvalidAmount)
	}
	if !SupportsCurrency(s, data.Currency) {
		return domainErrors.NewDomainError("unsupported_currency",
			fmt.Sprintf("%s does not support currency %q", s.Name(), data.Currency),
			domainErrors.ErrUnsupportedCurrency)
	}
	return nil
}
