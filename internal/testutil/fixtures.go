package testutil

import (
	"github.com/diaspomoney/payments/internal/domain/booking"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/internal/domain/transaction"
	"github.com/diaspomoney/payments/internal/providers"
	"github.com/rs/zerolog"
)

func NewTestBooking(amount float64, currency string) *booking.Booking {
	b, err := booking.NewBooking("cus_test", "prov_test", "svc_test", amount, currency)
	if err != nil {
		panic(err)
	}
	return b
}

func NewTestTransaction(provider payment.Provider, amount float64, currency string) *transaction.Transaction {
	t, err := transaction.NewTransaction("cus_test", provider, amount, currency)
	if err != nil {
		panic(err)
	}
	return t
}

// NewCompletedTransaction returns a transaction settled with the given provider id.
func NewCompletedTransaction(provider payment.Provider, amount float64, currency, providerTxID string) *transaction.Transaction {
	t := NewTestTransaction(provider, amount, currency)
	t.ApplyPaymentResult(payment.PaymentResult{Success: true, TransactionID: providerTxID, PaymentIntentID: providerTxID})
	return t
}

// NewMockRegistry returns a registry backed by mock Stripe and PayPal
// strategies that succeed instantly.
func NewMockRegistry() (*providers.Registry, *providers.MockStrategy, *providers.MockStrategy) {
	stripe := providers.NewMockStrategy(payment.ProviderStripe,
		providers.WithCurrencies("EUR", "USD", "GBP", "XOF", "XAF"),
		providers.WithCountries("FR", "BE", "SN", "CI"),
	)
	paypal := providers.NewMockStrategy(payment.ProviderPayPal,
		providers.WithCurrencies("EUR", "USD", "GBP"),
		providers.WithCountries("FR", "DE", "US"),
	)
	r := providers.NewRegistry(map[payment.Provider]providers.Constructor{
		payment.ProviderStripe: func() (providers.Strategy, error) { return stripe, nil },
		payment.ProviderPayPal: func() (providers.Strategy, error) { return paypal, nil },
	}, zerolog.Nop())
	return r, stripe, paypal
}
