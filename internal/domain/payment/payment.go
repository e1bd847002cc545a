package payment

import (
	"math"
	"strconv"
	"strings"

	"github.com/diaspomoney/payments/internal/domain/errors"
)

// Provider names an external payment provider.
type Provider string

const (
	ProviderStripe Provider = "STRIPE"
	ProviderPayPal Provider = "PAYPAL"
)

// Providers returns every known provider in enumeration order.
func Providers() []Provider {
	return []Provider{ProviderStripe, ProviderPayPal}
}

// ParseProvider matches s case-insensitively against the known providers.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers() {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", errors.NewDomainError("unknown_provider", "unknown provider "+strconv.Quote(s), errors.ErrUnknownProvider)
}

// PaymentData is the provider-neutral input to a strategy call.
type PaymentData struct {
	Amount          float64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Description     string
	Metadata        map[string]string
	ReturnURL       string
	CancelURL       string
}

// Validate checks the shape of the data. Currency support is a strategy concern.
func (d PaymentData) Validate() error {
	if d.Amount <= 0 || math.IsNaN(d.Amount) || math.IsInf(d.Amount, 0) {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(d.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	if d.CustomerID == "" {
		return errors.NewValidationError("customer_id", "cannot be empty")
	}
	return nil
}

// NextAction tells the caller where to send the end user before the payment is final.
type NextAction struct {
	Type string            `json:"type"`
	URL  string            `json:"url,omitempty"`
	Data map[string]string `json:"data,omitempty"`
}

// PaymentResult is the outcome of any strategy operation.
// RequiresAction means the payment is not final until the user completes NextAction.
// Pending means the provider accepted the payment and is still settling it.
type PaymentResult struct {
	Success         bool              `json:"success"`
	Pending         bool              `json:"pending,omitempty"`
	TransactionID   string            `json:"transactionId,omitempty"`
	PaymentIntentID string            `json:"paymentIntentId,omitempty"`
	ClientSecret    string            `json:"clientSecret,omitempty"`
	Error           string            `json:"error,omitempty"`
	RequiresAction  bool              `json:"requiresAction,omitempty"`
	NextAction      *NextAction       `json:"nextAction,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ProviderStatus is the provider's own status for the payment. It is empty
// when the provider was never reached.
func (r PaymentResult) ProviderStatus() string {
	return r.Metadata["status"]
}

// Failed builds an unsuccessful result carrying err's message.
func Failed(err error) PaymentResult {
	return PaymentResult{Success: false, Error: err.Error()}
}

// RefundData describes a refund. A nil Amount requests a full refund.
type RefundData struct {
	TransactionID string
	Amount        *float64
	Currency      string
	Reason        string
	Metadata      map[string]string
}

// RefundResult is the outcome of a refund.
type RefundResult struct {
	Success  bool     `json:"success"`
	RefundID string   `json:"refundId,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// RefundFailed builds an unsuccessful refund result carrying err's message.
func RefundFailed(err error) RefundResult {
	return RefundResult{Success: false, Error: err.Error()}
}

// ToMinorUnits converts a decimal amount to the currency's minor unit (cents).
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts minor units back to a decimal amount.
func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}

// FormatAmount renders an amount with two decimals, the format providers expect.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// NormalizeCurrency upper-cases and trims an ISO-4217 code.
func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
