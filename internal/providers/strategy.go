package providers

import (
	"context"
	"strings"

	"github.com/diaspomoney/payments/internal/domain/payment"
)

// Strategy is the uniform contract every payment provider adapter implements.
// Public methods never return Go errors: failures come back as unsuccessful
// result envelopes.
type Strategy interface {
	Name() payment.Provider
	SupportedCurrencies() []string
	SupportedCountries() []string

	// CanProcess reports whether the strategy accepts data without calling the provider.
	CanProcess(data payment.PaymentData) bool

	// ProcessPayment creates a payment and attempts to capture it in one call.
	ProcessPayment(ctx context.Context, data payment.PaymentData) payment.PaymentResult
	// CreatePaymentIntent stages a payment without charging it.
	CreatePaymentIntent(ctx context.Context, data payment.PaymentData) payment.PaymentResult
	// ConfirmPaymentIntent captures a previously staged payment.
	ConfirmPaymentIntent(ctx context.Context, id, paymentMethodID string) payment.PaymentResult
	Refund(ctx context.Context, data payment.RefundData) payment.RefundResult
	TransactionStatus(ctx context.Context, id string) payment.PaymentResult
}

func containsFold(set []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// SupportsCurrency reports whether s lists currency, ignoring case.
func SupportsCurrency(s Strategy, currency string) bool {
	return containsFold(s.SupportedCurrencies(), currency)
}

// SupportsCountry reports whether s lists country, ignoring case.
func SupportsCountry(s Strategy, country string) bool {
	return containsFold(s.SupportedCountries(), country)
}

// gate is the shared part of CanProcess.
func gate(s Strategy, data payment.PaymentData) bool {
	return data.Amount > 0 && SupportsCurrency(s, data.Currency)
}

func copyList(l []string) []string {
	out := make([]string, len(l))
	copy(out, l)
	return out
}
