package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/diaspomoney/payments/internal/domain/payment"
	"github.com/diaspomoney/payments/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paypalServer struct {
	*httptest.Server
	tokenCalls   atomic.Int32
	expiresIn    int
	lastOrder    map[string]any
	lastRefund   map[string]any
	refundStatus int
}

func newPayPalServer(t *testing.T) *paypalServer {
	t.Helper()
	ps := &paypalServer{expiresIn: 3600, refundStatus: http.StatusCreated}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ps.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   ps.expiresIn,
		})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &ps.lastOrder)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER1","status":"CREATED","links":[
			{"href":"https://api.paypal.test/v2/checkout/orders/ORDER1","rel":"self"},
			{"href":"https://www.paypal.test/checkoutnow?token=ORDER1","rel":"approve"}]}`))
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[
			{"id":"CAP1","status":"COMPLETED","amount":{"currency_code":"EUR","value":"25.50"}}]}}]}`))
	})
	mux.HandleFunc("/v2/checkout/orders/UNAPPROVED/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed.",
			"details":[{"issue":"ORDER_NOT_APPROVED","description":"Payer has not yet approved the Order for payment."}]}`))
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ORDER1","status":"APPROVED"}`))
	})
	mux.HandleFunc("/v2/payments/captures/CAP1/refund", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &ps.lastRefund)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ps.refundStatus)
		_, _ = w.Write([]byte(`{"id":"REF1","status":"COMPLETED","amount":{"currency_code":"EUR","value":"25.50"}}`))
	})

	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func (ps *paypalServer) strategy() *PayPalStrategy {
	return NewPayPalStrategy(PayPalOptions{
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      ps.URL,
		ReturnURL:    "https://diaspomoney.test/return",
		CancelURL:    "https://diaspomoney.test/cancel",
	}, testGuardConfig(), testObserver())
}

var paypalData = payment.PaymentData{Amount: 25.5, Currency: "eur", CustomerID: "cus_1", Description: "tutoring"}

func TestPayPal_NotConfigured(t *testing.T) {
	p := NewPayPalStrategy(PayPalOptions{}, testGuardConfig(), testObserver())

	assert.False(t, p.CanProcess(paypalData))

	res := p.ProcessPayment(context.Background(), paypalData)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "credentials not configured")

	refund := p.Refund(context.Background(), payment.RefundData{TransactionID: "CAP1"})
	assert.False(t, refund.Success)
	assert.Contains(t, refund.Error, "credentials not configured")

	assert.False(t, p.TransactionStatus(context.Background(), "ORDER1").Success)
	assert.False(t, p.ConfirmPaymentIntent(context.Background(), "ORDER1", "").Success)
}

func TestPayPal_CanProcess(t *testing.T) {
	p := newPayPalServer(t).strategy()

	assert.True(t, p.CanProcess(paypalData))
	assert.False(t, p.CanProcess(payment.PaymentData{Amount: 10, Currency: "XOF"}))
	assert.False(t, p.CanProcess(payment.PaymentData{Amount: 0, Currency: "EUR"}))
}

func TestPayPal_ProcessPayment_ReturnsApprovalLink(t *testing.T) {
	ps := newPayPalServer(t)
	p := ps.strategy()

	res := p.ProcessPayment(context.Background(), paypalData)

	assert.False(t, res.Success)
	assert.True(t, res.RequiresAction)
	require.NotNil(t, res.NextAction)
	assert.Equal(t, "https://www.paypal.test/checkoutnow?token=ORDER1", res.NextAction.URL)
	assert.Equal(t, "ORDER1", res.PaymentIntentID)

	assert.Equal(t, "CAPTURE", ps.lastOrder["intent"])
	units := ps.lastOrder["purchase_units"].([]any)
	amount := units[0].(map[string]any)["amount"].(map[string]any)
	assert.Equal(t, "25.50", amount["value"])
	assert.Equal(t, "EUR", amount["currency_code"])
	appCtx := ps.lastOrder["application_context"].(map[string]any)
	assert.Equal(t, "https://diaspomoney.test/return", appCtx["return_url"])
}

func TestPayPal_TokenIsCached(t *testing.T) {
	ps := newPayPalServer(t)
	p := ps.strategy()

	p.ProcessPayment(context.Background(), paypalData)
	p.ProcessPayment(context.Background(), paypalData)
	p.CreatePaymentIntent(context.Background(), paypalData)

	assert.Equal(t, int32(1), ps.tokenCalls.Load())
}

func TestPayPal_ExpiredTokenIsRefetched(t *testing.T) {
	ps := newPayPalServer(t)
	// Tokens this short are already inside the refresh window.
	ps.expiresIn = 1
	p := ps.strategy()

	p.ProcessPayment(context.Background(), paypalData)
	p.ProcessPayment(context.Background(), paypalData)

	assert.Equal(t, int32(2), ps.tokenCalls.Load())
}

func TestPayPal_ProcessPayment_CapturesWithPaymentMethod(t *testing.T) {
	p := newPayPalServer(t).strategy()
	data := paypalData
	data.PaymentMethodID = "vault_1"

	res := p.ProcessPayment(context.Background(), data)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "CAP1", res.TransactionID)
	assert.Equal(t, "ORDER1", res.PaymentIntentID)
}

func TestPayPal_CreateAndConfirm(t *testing.T) {
	p := newPayPalServer(t).strategy()

	created := p.CreatePaymentIntent(context.Background(), paypalData)
	require.True(t, created.Success)
	assert.True(t, created.RequiresAction)

	confirmed := p.ConfirmPaymentIntent(context.Background(), created.PaymentIntentID, "")
	require.True(t, confirmed.Success, confirmed.Error)
	assert.Equal(t, "CAP1", confirmed.TransactionID)
}

func TestPayPal_ConfirmUnapprovedOrder(t *testing.T) {
	p := newPayPalServer(t).strategy()

	res := p.ConfirmPaymentIntent(context.Background(), "UNAPPROVED", "")

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Payer has not yet approved")
}

func TestPayPal_Refund(t *testing.T) {
	t.Run("full refund sends no amount", func(t *testing.T) {
		ps := newPayPalServer(t)
		res := ps.strategy().Refund(context.Background(), payment.RefundData{TransactionID: "CAP1"})

		require.True(t, res.Success, res.Error)
		assert.Equal(t, "REF1", res.RefundID)
		require.NotNil(t, res.Amount)
		assert.InDelta(t, 25.5, *res.Amount, 1e-9)
		assert.NotContains(t, ps.lastRefund, "amount")
	})

	t.Run("partial refund", func(t *testing.T) {
		ps := newPayPalServer(t)
		amount := 10.0
		res := ps.strategy().Refund(context.Background(), payment.RefundData{TransactionID: "CAP1", Amount: &amount, Currency: "eur"})

		require.True(t, res.Success)
		sent := ps.lastRefund["amount"].(map[string]any)
		assert.Equal(t, "10.00", sent["value"])
		assert.Equal(t, "EUR", sent["currency_code"])
	})

	t.Run("partial refund needs currency", func(t *testing.T) {
		ps := newPayPalServer(t)
		amount := 10.0
		res := ps.strategy().Refund(context.Background(), payment.RefundData{TransactionID: "CAP1", Amount: &amount})

		assert.False(t, res.Success)
		assert.Nil(t, ps.lastRefund)
	})

	t.Run("provider error", func(t *testing.T) {
		ps := newPayPalServer(t)
		ps.refundStatus = http.StatusBadRequest
		res := ps.strategy().Refund(context.Background(), payment.RefundData{TransactionID: "CAP1"})

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "paypal 400")
	})
}

func TestPayPal_TransactionStatus(t *testing.T) {
	p := newPayPalServer(t).strategy()

	res := p.TransactionStatus(context.Background(), "ORDER1")

	assert.False(t, res.Success)
	assert.True(t, res.RequiresAction)
	assert.Equal(t, "APPROVED", res.Metadata["status"])
}

func TestPayPal_BadCredentials(t *testing.T) {
	ps := newPayPalServer(t)
	p := NewPayPalStrategy(PayPalOptions{ClientID: "client", ClientSecret: "wrong", BaseURL: ps.URL}, testGuardConfig(), testObserver())

	res := p.ProcessPayment(context.Background(), paypalData)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "authentication failed")
}

// flakyPayPal fails the first POST to each endpoint with a 503 and records
// the PayPal-Request-Id of every attempt.
type flakyPayPal struct {
	mu         sync.Mutex
	requestIDs map[string][]string
}

func newFlakyPayPal(t *testing.T) (*httptest.Server, *flakyPayPal) {
	t.Helper()
	fp := &flakyPayPal{requestIDs: map[string][]string{}}

	record := func(w http.ResponseWriter, r *http.Request) bool {
		fp.mu.Lock()
		defer fp.mu.Unlock()
		fp.requestIDs[r.URL.Path] = append(fp.requestIDs[r.URL.Path], r.Header.Get("PayPal-Request-Id"))
		if len(fp.requestIDs[r.URL.Path]) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return false
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if record(w, r) {
			_, _ = w.Write([]byte(`{"id":"ORDER1","status":"CREATED","links":[{"href":"https://www.paypal.test/approve","rel":"approve"}]}`))
		}
	})
	mux.HandleFunc("/v2/payments/captures/CAP1/refund", func(w http.ResponseWriter, r *http.Request) {
		if record(w, r) {
			_, _ = w.Write([]byte(`{"id":"REF1","status":"COMPLETED"}`))
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, fp
}

func (fp *flakyPayPal) ids(path string) []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]string(nil), fp.requestIDs[path]...)
}

func TestPayPal_RetriesReuseRequestID(t *testing.T) {
	srv, fp := newFlakyPayPal(t)
	cfg := testGuardConfig()
	cfg.Retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}
	p := NewPayPalStrategy(PayPalOptions{ClientID: "client", ClientSecret: "secret", BaseURL: srv.URL}, cfg, testObserver())

	res := p.ProcessPayment(context.Background(), paypalData)
	require.True(t, res.RequiresAction, res.Error)

	ref := p.Refund(context.Background(), payment.RefundData{TransactionID: "CAP1"})
	require.True(t, ref.Success, ref.Error)

	orders := fp.ids("/v2/checkout/orders")
	require.Len(t, orders, 2)
	assert.NotEmpty(t, orders[0])
	assert.Equal(t, orders[0], orders[1])

	refunds := fp.ids("/v2/payments/captures/CAP1/refund")
	require.Len(t, refunds, 2)
	assert.NotEmpty(t, refunds[0])
	assert.Equal(t, refunds[0], refunds[1])
	assert.NotEqual(t, orders[0], refunds[0])
}

func TestPayPal_SlowTokenEndpointTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	cfg := testGuardConfig()
	cfg.Timeout = 100 * time.Millisecond
	p := NewPayPalStrategy(PayPalOptions{ClientID: "client", ClientSecret: "secret", BaseURL: srv.URL, HTTPClient: srv.Client()}, cfg, testObserver())

	start := time.Now()
	res := p.ProcessPayment(context.Background(), paypalData)

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}
