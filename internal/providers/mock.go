package providers

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/google/uuid"
)

// MockStrategy simulates a provider for local runs and tests. It records
// every call it receives.
type MockStrategy struct {
	name        payment.Provider
	currencies  []string
	countries   []string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration

	mu       sync.Mutex
	payments []payment.PaymentData
	refunds  []payment.RefundData

	// Optional overrides.
	ProcessFunc func(ctx context.Context, data payment.PaymentData) payment.PaymentResult
	RefundFunc  func(ctx context.Context, data payment.RefundData) payment.RefundResult
	StatusFunc  func(ctx context.Context, id string) payment.PaymentResult
}

type MockOption func(*MockStrategy)

func WithCurrencies(c ...string) MockOption {
	return func(m *MockStrategy) { m.currencies = c }
}

func WithCountries(c ...string) MockOption {
	return func(m *MockStrategy) { m.countries = c }
}

func WithFailureRate(rate float64) MockOption {
	return func(m *MockStrategy) { m.failureRate = rate }
}

func WithLatency(d time.Duration) MockOption {
	return func(m *MockStrategy) { m.latency = d }
}

func NewMockStrategy(name payment.Provider, opts ...MockOption) *MockStrategy {
	m := &MockStrategy{
		name:       name,
		currencies: []string{"EUR", "USD"},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MockStrategy) Name() payment.Provider { return m.name }

func (m *MockStrategy) SupportedCurrencies() []string { return copyList(m.currencies) }

func (m *MockStrategy) SupportedCountries() []string { return copyList(m.countries) }

func (m *MockStrategy) CanProcess(data payment.PaymentData) bool { return gate(m, data) }

// Payments returns the payment calls received so far.
func (m *MockStrategy) Payments() []payment.PaymentData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.PaymentData(nil), m.payments...)
}

// Refunds returns the refund calls received so far.
func (m *MockStrategy) Refunds() []payment.RefundData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.RefundData(nil), m.refunds...)
}

func (m *MockStrategy) wait(ctx context.Context) error {
	if m.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(m.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockStrategy) failed() bool {
	return m.failureRate > 0 && rand.Float64() < m.failureRate
}

func (m *MockStrategy) ProcessPayment(ctx context.Context, data payment.PaymentData) payment.PaymentResult {
	m.mu.Lock()
	m.payments = append(m.payments, data)
	m.mu.Unlock()

	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, data)
	}
	if err := rejectUnprocessable(m, data); err != nil {
		return payment.Failed(err)
	}
	if err := m.wait(ctx); err != nil {
		return payment.Failed(fmt.Errorf("%s: %w", m.name, domainErrors.ErrProviderTimeout))
	}
	if m.failed() {
		return payment.Failed(fmt.Errorf("%s: simulated decline: %w", m.name, domainErrors.ErrProviderRejected))
	}

	id := fmt.Sprintf("%s_txn_%s", m.name, uuid.New().String()[:8])
	return payment.PaymentResult{Success: true, TransactionID: id, PaymentIntentID: id}
}

func (m *MockStrategy) CreatePaymentIntent(ctx context.Context, data payment.PaymentData) payment.PaymentResult {
	if err := rejectUnprocessable(m, data); err != nil {
		return payment.Failed(err)
	}
	id := fmt.Sprintf("%s_pi_%s", m.name, uuid.New().String()[:8])
	return payment.PaymentResult{
		Success:         true,
		PaymentIntentID: id,
		TransactionID:   id,
		ClientSecret:    id + "_secret",
		RequiresAction:  true,
		NextAction:      &payment.NextAction{Type: "confirm_payment"},
		Metadata:        map[string]string{"status": "requires_confirmation"},
	}
}

func (m *MockStrategy) ConfirmPaymentIntent(ctx context.Context, id, _ string) payment.PaymentResult {
	if err := m.wait(ctx); err != nil {
		return payment.Failed(fmt.Errorf("%s: %w", m.name, domainErrors.ErrProviderTimeout))
	}
	return payment.PaymentResult{Success: true, TransactionID: id, PaymentIntentID: id}
}

func (m *MockStrategy) Refund(ctx context.Context, data payment.RefundData) payment.RefundResult {
	m.mu.Lock()
	m.refunds = append(m.refunds, data)
	m.mu.Unlock()

	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, data)
	}
	if err := m.wait(ctx); err != nil {
		return payment.RefundFailed(fmt.Errorf("%s: %w", m.name, domainErrors.ErrProviderTimeout))
	}
	if m.failed() {
		return payment.RefundFailed(fmt.Errorf("%s: simulated refund failure: %w", m.name, domainErrors.ErrProviderRejected))
	}
	return payment.RefundResult{
		Success:  true,
		RefundID: fmt.Sprintf("%s_refund_%s", m.name, uuid.New().String()[:8]),
		Amount:   data.Amount,
	}
}

func (m *MockStrategy) TransactionStatus(ctx context.Context, id string) payment.PaymentResult {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, id)
	}
	return payment.PaymentResult{
		Success:         true,
		TransactionID:   id,
		PaymentIntentID: id,
		Metadata:        map[string]string{"status": "succeeded"},
	}
}
