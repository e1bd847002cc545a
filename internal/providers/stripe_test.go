package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/diaspomoney/payments/internal/domain/errors"
	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

type fakeStripe struct {
	mu      sync.Mutex
	intents []*stripe.PaymentIntentParams
	refunds []*stripe.RefundParams
	calls   int

	intentFunc  func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	confirmFunc func(string, *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	refundFunc  func(*stripe.RefundParams) (*stripe.Refund, error)
}

func (f *fakeStripe) CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	f.intents = append(f.intents, params)
	f.calls++
	f.mu.Unlock()

	if f.intentFunc != nil {
		return f.intentFunc(params)
	}
	return &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Amount:       *params.Amount,
		Status:       stripe.PaymentIntentStatusSucceeded,
		Metadata:     params.Metadata,
	}, nil
}

func (f *fakeStripe) ConfirmPaymentIntent(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.confirmFunc != nil {
		return f.confirmFunc(id, params)
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded, Currency: stripe.CurrencyEUR}, nil
}

func (f *fakeStripe) GetPaymentIntent(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusProcessing}, nil
}

func (f *fakeStripe) CreateRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.mu.Lock()
	f.refunds = append(f.refunds, params)
	f.calls++
	f.mu.Unlock()

	if f.refundFunc != nil {
		return f.refundFunc(params)
	}
	amount := int64(5000)
	if params.Amount != nil {
		amount = *params.Amount
	}
	return &stripe.Refund{ID: "re_123", Amount: amount, Currency: stripe.CurrencyEUR, Status: stripe.RefundStatusSucceeded}, nil
}

func (f *fakeStripe) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestStripe(backend *fakeStripe) *StripeStrategy {
	return newStripeStrategy(backend, testGuardConfig(), testObserver())
}

func TestNewStripeStrategy_RequiresKey(t *testing.T) {
	s, err := NewStripeStrategy(StripeOptions{}, testGuardConfig(), testObserver())
	assert.Nil(t, s)
	assert.ErrorIs(t, err, domainErrors.ErrNotConfigured)
}

func TestStripe_CanProcess_Gating(t *testing.T) {
	tests := []struct {
		name string
		data payment.PaymentData
		want bool
	}{
		{"supported", payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c"}, true},
		{"lowercase currency", payment.PaymentData{Amount: 10, Currency: "xof", CustomerID: "c"}, true},
		{"zero amount", payment.PaymentData{Amount: 0, Currency: "EUR", CustomerID: "c"}, false},
		{"negative amount", payment.PaymentData{Amount: -5, Currency: "EUR", CustomerID: "c"}, false},
		{"unsupported currency", payment.PaymentData{Amount: 10, Currency: "JPY", CustomerID: "c"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeStripe{}
			s := newTestStripe(backend)

			assert.Equal(t, tt.want, s.CanProcess(tt.data))
			if tt.want {
				return
			}

			res := s.ProcessPayment(context.Background(), tt.data)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
			assert.Zero(t, backend.callCount(), "no provider call expected")
		})
	}
}

func TestStripe_ProcessPayment_AmountConversion(t *testing.T) {
	amounts := []struct {
		amount float64
		minor  int64
	}{
		{10.5, 1050},
		{19.99, 1999},
		{0.01, 1},
		{1234.56, 123456},
		{0.29, 29},
		{100, 10000},
	}

	for _, tt := range amounts {
		t.Run(strconv.FormatFloat(tt.amount, 'f', 2, 64), func(t *testing.T) {
			backend := &fakeStripe{}
			s := newTestStripe(backend)

			res := s.ProcessPayment(context.Background(), payment.PaymentData{
				Amount:          tt.amount,
				Currency:        "EUR",
				CustomerID:      "cus_1",
				PaymentMethodID: "pm_card_visa",
			})
			require.True(t, res.Success, res.Error)

			require.Len(t, backend.intents, 1)
			assert.Equal(t, tt.minor, *backend.intents[0].Amount)

			echoed, err := strconv.ParseFloat(res.Metadata["amount"], 64)
			require.NoError(t, err)
			assert.InDelta(t, tt.amount, echoed, 1e-9)
		})
	}
}

func TestStripe_ProcessPayment_Params(t *testing.T) {
	backend := &fakeStripe{}
	s := newTestStripe(backend)

	res := s.ProcessPayment(context.Background(), payment.PaymentData{
		Amount:          42,
		Currency:        "XOF",
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_1",
		Description:     "consultation",
		Metadata:        map[string]string{"booking_id": "b1"},
	})
	require.True(t, res.Success)
	assert.Equal(t, "pi_123", res.TransactionID)
	assert.Equal(t, "pi_123", res.PaymentIntentID)

	params := backend.intents[0]
	assert.Equal(t, "xof", *params.Currency)
	assert.Equal(t, "pm_1", *params.PaymentMethod)
	assert.True(t, *params.Confirm)
	assert.True(t, *params.AutomaticPaymentMethods.Enabled)
	assert.Equal(t, string(stripe.PaymentIntentCaptureMethodAutomatic), *params.CaptureMethod)
	assert.Equal(t, "b1", params.Metadata["booking_id"])
	assert.Equal(t, "cus_1", params.Metadata["customer_id"])
}

func TestStripe_ProcessPayment_RequiresAction(t *testing.T) {
	backend := &fakeStripe{
		intentFunc: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:     "pi_3ds",
				Status: stripe.PaymentIntentStatusRequiresAction,
				NextAction: &stripe.PaymentIntentNextAction{
					Type:          stripe.PaymentIntentNextActionTypeRedirectToURL,
					RedirectToURL: &stripe.PaymentIntentNextActionRedirectToURL{URL: "https://hooks.stripe.com/3ds"},
				},
			}, nil
		},
	}
	s := newTestStripe(backend)

	res := s.ProcessPayment(context.Background(), payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"})

	assert.False(t, res.Success)
	assert.True(t, res.RequiresAction)
	require.NotNil(t, res.NextAction)
	assert.Equal(t, "https://hooks.stripe.com/3ds", res.NextAction.URL)
}

func TestStripe_CreatePaymentIntent_DoesNotConfirm(t *testing.T) {
	backend := &fakeStripe{
		intentFunc: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: "pi_new", ClientSecret: "sec", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil
		},
	}
	s := newTestStripe(backend)

	res := s.CreatePaymentIntent(context.Background(), payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"})

	assert.True(t, res.Success)
	assert.Equal(t, "sec", res.ClientSecret)
	assert.Nil(t, backend.intents[0].Confirm)
	assert.Nil(t, backend.intents[0].PaymentMethod)
}

func TestStripe_ConfirmPaymentIntent(t *testing.T) {
	var gotPM string
	backend := &fakeStripe{
		confirmFunc: func(id string, p *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
			gotPM = *p.PaymentMethod
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded, Currency: stripe.CurrencyEUR}, nil
		},
	}
	s := newTestStripe(backend)

	res := s.ConfirmPaymentIntent(context.Background(), "pi_9", "pm_9")
	assert.True(t, res.Success)
	assert.Equal(t, "pi_9", res.PaymentIntentID)
	assert.Equal(t, "pm_9", gotPM)

	res = s.ConfirmPaymentIntent(context.Background(), "", "")
	assert.False(t, res.Success)
}

func TestStripe_Refund_FullOmitsAmount(t *testing.T) {
	backend := &fakeStripe{}
	s := newTestStripe(backend)

	res := s.Refund(context.Background(), payment.RefundData{TransactionID: "pi_123", Reason: "booking cancelled"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "re_123", res.RefundID)
	require.Len(t, backend.refunds, 1)
	assert.Nil(t, backend.refunds[0].Amount)
	assert.Nil(t, backend.refunds[0].Reason)
	assert.Equal(t, "booking cancelled", backend.refunds[0].Metadata["reason"])
}

func TestStripe_Refund_Partial(t *testing.T) {
	backend := &fakeStripe{}
	s := newTestStripe(backend)
	amount := 12.34

	res := s.Refund(context.Background(), payment.RefundData{TransactionID: "pi_123", Amount: &amount, Reason: "requested_by_customer"})

	require.True(t, res.Success)
	assert.Equal(t, int64(1234), *backend.refunds[0].Amount)
	assert.Equal(t, "requested_by_customer", *backend.refunds[0].Reason)
	require.NotNil(t, res.Amount)
	assert.InDelta(t, 12.34, *res.Amount, 1e-9)
}

func TestStripe_Refund_Validation(t *testing.T) {
	backend := &fakeStripe{}
	s := newTestStripe(backend)
	zero := 0.0

	assert.False(t, s.Refund(context.Background(), payment.RefundData{}).Success)
	assert.False(t, s.Refund(context.Background(), payment.RefundData{TransactionID: "pi", Amount: &zero}).Success)
	assert.Zero(t, backend.callCount())
}

func TestStripe_CardDeclined_NotRetried(t *testing.T) {
	backend := &fakeStripe{
		intentFunc: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{
				HTTPStatusCode: http.StatusPaymentRequired,
				Type:           stripe.ErrorTypeCard,
				Code:           stripe.ErrorCodeCardDeclined,
				Msg:            "Your card was declined.",
			}
		},
	}
	cfg := testGuardConfig()
	cfg.Retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}
	s := newStripeStrategy(backend, cfg, testObserver())

	res := s.ProcessPayment(context.Background(), payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Your card was declined.")
	assert.Equal(t, 1, backend.callCount())
}

func TestStripe_TransientFailure_Retried(t *testing.T) {
	attempts := 0
	backend := &fakeStripe{
		intentFunc: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			attempts++
			if attempts < 3 {
				return nil, &stripe.Error{HTTPStatusCode: http.StatusServiceUnavailable, Type: stripe.ErrorTypeAPI, Msg: "try again"}
			}
			return &stripe.PaymentIntent{ID: "pi_ok", Status: stripe.PaymentIntentStatusSucceeded}, nil
		},
	}
	cfg := testGuardConfig()
	cfg.Retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}
	s := newStripeStrategy(backend, cfg, testObserver())

	res := s.ProcessPayment(context.Background(), payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"})

	assert.True(t, res.Success, res.Error)
	assert.Equal(t, 3, attempts)
}

func TestStripe_Timeout(t *testing.T) {
	backend := &fakeStripe{
		intentFunc: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			<-p.Context.Done()
			return nil, p.Context.Err()
		},
	}
	cfg := testGuardConfig()
	cfg.Timeout = 20 * time.Millisecond
	s := newStripeStrategy(backend, cfg, testObserver())

	res := s.ProcessPayment(context.Background(), payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestStripe_CircuitBreakerOpens(t *testing.T) {
	backend := &fakeStripe{
		intentFunc: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{HTTPStatusCode: http.StatusBadGateway, Msg: "bad gateway"}
		},
	}
	cfg := testGuardConfig()
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	s := newStripeStrategy(backend, cfg, testObserver())
	data := payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"}

	s.ProcessPayment(context.Background(), data)
	s.ProcessPayment(context.Background(), data)
	res := s.ProcessPayment(context.Background(), data)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "circuit breaker open")
	assert.Equal(t, 2, backend.callCount())
}

func TestStripe_DeclinesDoNotTripBreaker(t *testing.T) {
	backend := &fakeStripe{
		intentFunc: func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripe.ErrorTypeCard, Msg: "declined"}
		},
	}
	cfg := testGuardConfig()
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	s := newStripeStrategy(backend, cfg, testObserver())
	data := payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"}

	for i := 0; i < 4; i++ {
		s.ProcessPayment(context.Background(), data)
	}

	assert.Equal(t, 4, backend.callCount())
}

func TestStripe_SDK_RefundAgainstTestServer(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_live","object":"refund","amount":5000,"currency":"eur","status":"succeeded"}`))
	}))
	defer srv.Close()

	s, err := NewStripeStrategy(StripeOptions{SecretKey: "sk_test_123", APIURL: srv.URL}, testGuardConfig(), testObserver())
	require.NoError(t, err)

	res := s.Refund(context.Background(), payment.RefundData{TransactionID: "pi_abc"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "re_live", res.RefundID)
	assert.Equal(t, []string{"pi_abc"}, form["payment_intent"])
	_, hasAmount := form["amount"]
	assert.False(t, hasAmount, "full refund must not send an amount")
}

func TestStripe_RetriesReuseIdempotencyKey(t *testing.T) {
	var intentKeys, refundKeys []string
	backend := &fakeStripe{
		intentFunc: func(p *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			intentKeys = append(intentKeys, *p.IdempotencyKey)
			if len(intentKeys) == 1 {
				return nil, &stripe.Error{HTTPStatusCode: http.StatusBadGateway, Type: stripe.ErrorTypeAPI, Msg: "bad gateway"}
			}
			return &stripe.PaymentIntent{ID: "pi_ok", Status: stripe.PaymentIntentStatusSucceeded}, nil
		},
		refundFunc: func(p *stripe.RefundParams) (*stripe.Refund, error) {
			refundKeys = append(refundKeys, *p.IdempotencyKey)
			if len(refundKeys) == 1 {
				return nil, &stripe.Error{HTTPStatusCode: http.StatusBadGateway, Type: stripe.ErrorTypeAPI, Msg: "bad gateway"}
			}
			return &stripe.Refund{ID: "re_ok", Amount: 1000, Currency: stripe.CurrencyEUR, Status: stripe.RefundStatusSucceeded}, nil
		},
	}
	cfg := testGuardConfig()
	cfg.Retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}
	s := newStripeStrategy(backend, cfg, testObserver())

	res := s.ProcessPayment(context.Background(), payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"})
	require.True(t, res.Success, res.Error)
	amount := 10.0
	ref := s.Refund(context.Background(), payment.RefundData{TransactionID: "pi_ok", Amount: &amount})
	require.True(t, ref.Success, ref.Error)

	require.Len(t, intentKeys, 2)
	assert.NotEmpty(t, intentKeys[0])
	assert.Equal(t, intentKeys[0], intentKeys[1])

	require.Len(t, refundKeys, 2)
	assert.NotEmpty(t, refundKeys[0])
	assert.Equal(t, refundKeys[0], refundKeys[1])
	assert.NotEqual(t, intentKeys[0], refundKeys[0])
}

func TestStripe_SeparatePaymentsUseDistinctKeys(t *testing.T) {
	backend := &fakeStripe{}
	s := newTestStripe(backend)
	data := payment.PaymentData{Amount: 10, Currency: "EUR", CustomerID: "c", PaymentMethodID: "pm"}

	s.ProcessPayment(context.Background(), data)
	s.ProcessPayment(context.Background(), data)

	require.Len(t, backend.intents, 2)
	assert.NotEqual(t, *backend.intents[0].IdempotencyKey, *backend.intents[1].IdempotencyKey)
}

func TestStripe_TransactionStatus_ProcessingIsPending(t *testing.T) {
	s := newTestStripe(&fakeStripe{})

	res := s.TransactionStatus(context.Background(), "pi_456")

	assert.False(t, res.Success)
	assert.True(t, res.Pending)
	assert.Empty(t, res.Error)
	assert.Equal(t, "processing", res.ProviderStatus())
	assert.Equal(t, "pi_456", res.PaymentIntentID)
}
