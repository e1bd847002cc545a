package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	paypalCurrencies = []string{"EUR", "USD", "GBP"}
	paypalCountries  = []string{"FR", "BE", "CH", "DE", "GB", "US", "CA", "IT", "ES", "NL"}

	errPayPalNotConfigured = fmt.Errorf("paypal %w", domainErrors.ErrNotConfigured)
)

const defaultPayPalBaseURL = "https://api-m.sandbox.paypal.com"

type PayPalOptions struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	ReturnURL    string
	CancelURL    string
	// HTTPClient carries both token and API requests when set.
	HTTPClient *http.Client
}

// PayPalStrategy processes payments through the PayPal Orders v2 API.
// The OAuth token is fetched with the client-credentials grant and reused
// until it expires.
type PayPalStrategy struct {
	baseURL   string
	returnURL string
	cancelURL string

	// cc is nil when credentials are missing.
	cc         *clientcredentials.Config
	httpClient *http.Client
	guard      *guard
	logger     zerolog.Logger
	metrics    *observability.Metrics

	tokenMu sync.Mutex
	token   *oauth2.Token
}

func NewPayPalStrategy(opts PayPalOptions, cfg GuardConfig, obs Observer) *PayPalStrategy {
	obs.Logger = obs.Logger.With().Str("component", "paypal_strategy").Logger()

	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultPayPalBaseURL
	}

	p := &PayPalStrategy{
		baseURL:   base,
		returnURL: opts.ReturnURL,
		cancelURL: opts.CancelURL,
		guard:     newGuard(payment.ProviderPayPal, cfg, obs),
		logger:    obs.Logger,
		metrics:   obs.Metrics,
	}

	if opts.ClientID == "" || opts.ClientSecret == "" {
		obs.Logger.Warn().Msg("paypal credentials missing, strategy disabled")
		return p
	}

	p.cc = &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	p.httpClient = opts.HTTPClient
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: p.guard.cfg.Timeout}
	}

	return p
}

func (p *PayPalStrategy) Name() payment.Provider { return payment.ProviderPayPal }

func (p *PayPalStrategy) SupportedCurrencies() []string { return copyList(paypalCurrencies) }

func (p *PayPalStrategy) SupportedCountries() []string { return copyList(paypalCountries) }

func (p *PayPalStrategy) Configured() bool { return p.cc != nil }

func (p *PayPalStrategy) CanProcess(data payment.PaymentData) bool {
	return p.Configured() && gate(p, data)
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type paypalCapture struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Amount *paypalAmount `json:"amount,omitempty"`
}

type paypalPayments struct {
	Captures []paypalCapture `json:"captures"`
}

type paypalPurchaseUnit struct {
	ReferenceID string          `json:"reference_id,omitempty"`
	Description string          `json:"description,omitempty"`
	CustomID    string          `json:"custom_id,omitempty"`
	Amount      *paypalAmount   `json:"amount,omitempty"`
	Payments    *paypalPayments `json:"payments,omitempty"`
}

type paypalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
	Links         []paypalLink         `json:"links"`
}

type paypalAppContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type paypalOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext *paypalAppContext    `json:"application_context,omitempty"`
}

type paypalRefundRequest struct {
	Amount      *paypalAmount `json:"amount,omitempty"`
	NoteToPayer string        `json:"note_to_payer,omitempty"`
}

type paypalRefund struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Amount *paypalAmount `json:"amount,omitempty"`
}

type paypalErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (o *paypalOrder) approveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func (o *paypalOrder) capture() *paypalCapture {
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			return &pu.Payments.Captures[0]
		}
	}
	return nil
}

func (p *PayPalStrategy) ProcessPayment(ctx context.Context, data payment.PaymentData) payment.PaymentResult {
	const op = "process_payment"
	currency := payment.NormalizeCurrency(data.Currency)
	if err := p.precheck(data); err != nil {
		return p.guard.paymentFailed(ctx, op, currency, err)
	}

	order, err := p.createOrder(ctx, op, data)
	if err != nil {
		return p.guard.paymentFailed(ctx, op, currency, err)
	}

	if data.PaymentMethodID == "" {
		p.logger.Info().Str("order_id", order.ID).Msg("paypal order awaiting approval")
		p.metrics.RecordPayment(string(payment.ProviderPayPal), currency, "requires_action")
		return approvalResult(order)
	}

	captured, err := p.captureOrder(ctx, op, order.ID)
	if err != nil {
		return p.guard.paymentFailed(ctx, op, currency, err)
	}
	return p.settle(op, currency, captured)
}

func (p *PayPalStrategy) CreatePaymentIntent(ctx context.Context, data payment.PaymentData) payment.PaymentResult {
	const op = "create_payment_intent"
	currency := payment.NormalizeCurrency(data.Currency)
	if err := p.precheck(data); err != nil {
		return p.guard.paymentFailed(ctx, op, currency, err)
	}

	order, err := p.createOrder(ctx, op, data)
	if err != nil {
		return p.guard.paymentFailed(ctx, op, currency, err)
	}

	p.logger.Info().Str("order_id", order.ID).Msg("paypal order created")
	p.metrics.RecordPayment(string(payment.ProviderPayPal), currency, "created")
	res := approvalResult(order)
	res.Success = true
	return res
}

func (p *PayPalStrategy) ConfirmPaymentIntent(ctx context.Context, id, _ string) payment.PaymentResult {
	const op = "confirm_payment_intent"
	if !p.Configured() {
		return p.guard.paymentFailed(ctx, op, "", errPayPalNotConfigured)
	}
	if id == "" {
		return p.guard.paymentFailed(ctx, op, "", domainErrors.NewValidationError("order_id", "cannot be empty"))
	}

	order, err := p.captureOrder(ctx, op, id)
	if err != nil {
		return p.guard.paymentFailed(ctx, op, "", err)
	}
	currency := ""
	if c := order.capture(); c != nil && c.Amount != nil {
		currency = c.Amount.CurrencyCode
	}
	return p.settle(op, currency, order)
}

func (p *PayPalStrategy) Refund(ctx context.Context, data payment.RefundData) payment.RefundResult {
	if !p.Configured() {
		return p.guard.refundFailed(ctx, errPayPalNotConfigured)
	}
	if data.TransactionID == "" {
		return p.guard.refundFailed(ctx, domainErrors.NewValidationError("transaction_id", "cannot be empty"))
	}

	body := paypalRefundRequest{NoteToPayer: data.Reason}
	if data.Amount != nil {
		if *data.Amount <= 0 {
			return p.guard.refundFailed(ctx, domainErrors.NewValidationError("amount", "must be greater than 0"))
		}
		if data.Currency == "" {
			return p.guard.refundFailed(ctx, domainErrors.NewValidationError("currency", "required for a partial paypal refund"))
		}
		body.Amount = &paypalAmount{
			CurrencyCode: payment.NormalizeCurrency(data.Currency),
			Value:        payment.FormatAmount(*data.Amount),
		}
	}

	p.logger.Debug().Str("capture_id", data.TransactionID).Bool("full", data.Amount == nil).Msg("creating refund")

	// The transaction id must be a capture id, not an order id.
	path := "/v2/payments/captures/" + url.PathEscape(data.TransactionID) + "/refund"
	var r paypalRefund
	if err := p.call(ctx, "refund", http.MethodPost, path, body, &r); err != nil {
		return p.guard.refundFailed(ctx, err)
	}

	res := payment.RefundResult{RefundID: r.ID}
	currency := payment.NormalizeCurrency(data.Currency)
	if r.Amount != nil {
		currency = r.Amount.CurrencyCode
		if v, err := parseAmount(r.Amount.Value); err == nil {
			res.Amount = &v
		}
	}
	switch r.Status {
	case "COMPLETED", "PENDING":
		res.Success = true
		p.logger.Info().Str("refund_id", r.ID).Str("status", r.Status).Msg("refund issued")
		p.metrics.RecordRefund(string(payment.ProviderPayPal), currency)
	default:
		res.Error = "refund " + strings.ToLower(r.Status)
		p.guard.fail(ctx, "refund", fmt.Errorf("refund %s: %s: %w", r.ID, r.Status, domainErrors.ErrProviderRejected))
	}
	return res
}

func (p *PayPalStrategy) TransactionStatus(ctx context.Context, id string) payment.PaymentResult {
	const op = "transaction_status"
	if !p.Configured() {
		return p.guard.paymentFailed(ctx, op, "", errPayPalNotConfigured)
	}
	if id == "" {
		return p.guard.paymentFailed(ctx, op, "", domainErrors.NewValidationError("order_id", "cannot be empty"))
	}

	var order paypalOrder
	if err := p.call(ctx, op, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(id), nil, &order); err != nil {
		return p.guard.paymentFailed(ctx, op, "", err)
	}
	return orderResult(&order)
}

func (p *PayPalStrategy) precheck(data payment.PaymentData) error {
	if !p.Configured() {
		return errPayPalNotConfigured
	}
	return rejectUnprocessable(p, data)
}

func (p *PayPalStrategy) createOrder(ctx context.Context, op string, data payment.PaymentData) (*paypalOrder, error) {
	p.logger.Debug().
		Str("operation", op).
		Float64("amount", data.Amount).
		Str("currency", data.Currency).
		Msg("creating paypal order")

	req := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: data.Metadata["booking_id"],
			Description: data.Description,
			CustomID:    data.CustomerID,
			Amount: &paypalAmount{
				CurrencyCode: payment.NormalizeCurrency(data.Currency),
				Value:        payment.FormatAmount(data.Amount),
			},
		}},
	}
	returnURL, cancelURL := firstNonEmpty(data.ReturnURL, p.returnURL), firstNonEmpty(data.CancelURL, p.cancelURL)
	if returnURL != "" || cancelURL != "" {
		req.ApplicationContext = &paypalAppContext{ReturnURL: returnURL, CancelURL: cancelURL}
	}

	var order paypalOrder
	if err := p.call(ctx, op, http.MethodPost, "/v2/checkout/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (p *PayPalStrategy) captureOrder(ctx context.Context, op, orderID string) (*paypalOrder, error) {
	p.logger.Debug().Str("order_id", orderID).Msg("capturing paypal order")

	var order paypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := p.call(ctx, op, http.MethodPost, path, struct{}{}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (p *PayPalStrategy) settle(op, currency string, order *paypalOrder) payment.PaymentResult {
	res := orderResult(order)
	status := "failed"
	if res.Success {
		status = "succeeded"
		p.logger.Info().Str("operation", op).Str("order_id", order.ID).Str("capture_id", res.TransactionID).Msg("payment captured")
	} else {
		p.logger.Warn().Str("operation", op).Str("order_id", order.ID).Str("status", order.Status).Msg("payment not captured")
	}
	p.metrics.RecordPayment(string(payment.ProviderPayPal), currency, status)
	return res
}

// call issues one guarded JSON request. in may be nil for requests without a body.
func (p *PayPalStrategy) call(ctx context.Context, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode paypal request: %w", err)
		}
		payload = b
	}

	// Retries of a POST replay the same request id so PayPal executes it once.
	var requestID string
	if method == http.MethodPost {
		requestID = idempotencyKey(payment.ProviderPayPal, op)
	}

	_, err := guarded(ctx, p.guard, op, func(callCtx context.Context) (struct{}, error) {
		tok, err := p.accessToken(callCtx)
		if err != nil {
			return struct{}{}, classifyTransportError(err)
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(callCtx, method, p.baseURL+path, body)
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Prefer", "return=representation")
		if requestID != "" {
			req.Header.Set("PayPal-Request-Id", requestID)
		}
		tok.SetAuthHeader(req)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return struct{}{}, classifyTransportError(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return struct{}{}, fmt.Errorf("read paypal response: %w", domainErrors.ErrProviderUnavailable)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return struct{}{}, paypalStatusError(resp.StatusCode, raw)
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return struct{}{}, fmt.Errorf("decode paypal response: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// accessToken returns the cached bearer token, fetching a new one under ctx
// once it is about to expire.
func (p *PayPalStrategy) accessToken(ctx context.Context) (*oauth2.Token, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	src := p.cc.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, p.httpClient))
	tok, err := oauth2.ReuseTokenSource(p.token, src).Token()
	if err != nil {
		return nil, err
	}
	p.token = tok
	return tok, nil
}

func paypalStatusError(status int, raw []byte) error {
	var body paypalErrorBody
	_ = json.Unmarshal(raw, &body)

	code := body.Name
	msg := body.Message
	if len(body.Details) > 0 {
		code = body.Details[0].Issue
		if body.Details[0].Description != "" {
			msg = body.Details[0].Description
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	sentinel := domainErrors.ErrProviderRejected
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		sentinel = domainErrors.ErrProviderUnavailable
	}
	return domainErrors.NewDomainError(code, fmt.Sprintf("paypal %d: %s", status, msg), sentinel)
}

func classifyTransportError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
		return domainErrors.NewDomainError("paypal_auth", "paypal authentication failed", fmt.Errorf("%w: %v", domainErrors.ErrProviderRejected, err))
	}
	return domainErrors.NewDomainError("paypal_network", "paypal request failed", fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err))
}

func approvalResult(order *paypalOrder) payment.PaymentResult {
	return payment.PaymentResult{
		TransactionID:   order.ID,
		PaymentIntentID: order.ID,
		RequiresAction:  true,
		NextAction:      &payment.NextAction{Type: "redirect", URL: order.approveURL()},
		Metadata:        map[string]string{"status": order.Status},
	}
}

// orderResult maps an order onto the provider-neutral result. A completed
// order reports its capture id as the transaction id so refunds can use it.
func orderResult(order *paypalOrder) payment.PaymentResult {
	res := payment.PaymentResult{
		TransactionID:   order.ID,
		PaymentIntentID: order.ID,
		Metadata:        map[string]string{"status": order.Status, "order_id": order.ID},
	}
	if c := order.capture(); c != nil {
		res.TransactionID = c.ID
		res.Metadata["capture_id"] = c.ID
		res.Metadata["capture_status"] = c.Status
	}

	switch order.Status {
	case "COMPLETED":
		res.Success = true
	case "CREATED", "PAYER_ACTION_REQUIRED":
		res.RequiresAction = true
		res.NextAction = &payment.NextAction{Type: "redirect", URL: order.approveURL()}
	case "APPROVED":
		res.RequiresAction = true
		res.NextAction = &payment.NextAction{Type: "capture"}
	default:
		res.Error = "paypal order " + strings.ToLower(order.Status)
	}
	return res
}

func parseAmount(v string) (float64, error) {
	return strconv.ParseFloat(v, 64)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
