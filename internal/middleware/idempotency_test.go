package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/diaspomoney/payments/internal/infrastructure/redis"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	entries map[string]redis.StoredResponse
	locked  map[string]bool
	getErr  error
	lockErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]redis.StoredResponse{}, locked: map[string]bool{}}
}

func (s *fakeStore) Get(_ context.Context, key string) (*redis.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	resp, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (s *fakeStore) Save(_ context.Context, key string, resp redis.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = resp
	return nil
}

func (s *fakeStore) TryLock(_ context.Context, key string) (bool, func(context.Context) error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockErr != nil {
		return false, nil, s.lockErr
	}
	if s.locked[key] {
		return false, nil, nil
	}
	s.locked[key] = true
	return true, func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.locked, key)
		return nil
	}, nil
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
}

func doRequest(h http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(store, zerolog.Nop())(next)

	first := doRequest(h, http.MethodPost, "/payments", "k1", `{"amount":10}`)
	second := doRequest(h, http.MethodPost, "/payments", "k1", `{"amount":10}`)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Empty(t, first.Header().Get(ReplayedHeader))
}

func TestIdempotency_HandlerSeesBody(t *testing.T) {
	h := Idempotency(newFakeStore(), zerolog.Nop())(&countingHandler{status: http.StatusOK})

	w := doRequest(h, http.MethodPost, "/payments", "k1", `"hello"`)
	assert.JSONEq(t, `{"echo":"hello"}`, w.Body.String())
}

func TestIdempotency_DifferentBodyRejected(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(newFakeStore(), zerolog.Nop())(next)

	doRequest(h, http.MethodPost, "/payments", "k1", `{"amount":10}`)
	w := doRequest(h, http.MethodPost, "/payments", "k1", `{"amount":20}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_key_reused")
	assert.Equal(t, 1, next.calls)
}

func TestIdempotency_KeyScopedByPath(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(newFakeStore(), zerolog.Nop())(next)

	doRequest(h, http.MethodPost, "/payments", "k1", `{}`)
	doRequest(h, http.MethodPost, "/bookings", "k1", `{}`)

	assert.Equal(t, 2, next.calls)
}

func TestIdempotency_InProgress(t *testing.T) {
	store := newFakeStore()
	store.locked["POST:/payments:k1"] = true
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(store, zerolog.Nop())(next)

	w := doRequest(h, http.MethodPost, "/payments", "k1", `{}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "request_in_progress")
	assert.Zero(t, next.calls)
}

func TestIdempotency_ReleasesLock(t *testing.T) {
	store := newFakeStore()
	h := Idempotency(store, zerolog.Nop())(&countingHandler{status: http.StatusCreated})

	doRequest(h, http.MethodPost, "/payments", "k1", `{}`)

	assert.Empty(t, store.locked)
}

func TestIdempotency_ServerErrorsNotCached(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusBadGateway}
	h := Idempotency(store, zerolog.Nop())(next)

	doRequest(h, http.MethodPost, "/payments", "k1", `{}`)
	doRequest(h, http.MethodPost, "/payments", "k1", `{}`)

	assert.Equal(t, 2, next.calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_ClientErrorsCached(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusPaymentRequired}
	h := Idempotency(store, zerolog.Nop())(next)

	doRequest(h, http.MethodPost, "/payments", "k1", `{}`)
	w := doRequest(h, http.MethodPost, "/payments", "k1", `{}`)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestIdempotency_Bypass(t *testing.T) {
	tests := []struct {
		name   string
		method string
		key    string
	}{
		{"no key", http.MethodPost, ""},
		{"read request", http.MethodGet, "k1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			next := &countingHandler{status: http.StatusOK}
			h := Idempotency(store, zerolog.Nop())(next)

			doRequest(h, tt.method, "/payments", tt.key, "")
			doRequest(h, tt.method, "/payments", tt.key, "")

			assert.Equal(t, 2, next.calls)
			assert.Empty(t, store.entries)
		})
	}
}

func TestIdempotency_StoreFailureFailsOpen(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeStore)
	}{
		{"get", func(s *fakeStore) { s.getErr = errors.New("connection refused") }},
		{"lock", func(s *fakeStore) { s.lockErr = errors.New("connection refused") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			tt.setup(store)
			next := &countingHandler{status: http.StatusCreated}
			h := Idempotency(store, zerolog.Nop())(next)

			w := doRequest(h, http.MethodPost, "/payments", "k1", `{}`)

			require.Equal(t, http.StatusCreated, w.Code)
			assert.Equal(t, 1, next.calls)
		})
	}
}

func TestIdempotency_BodyTooLarge(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(newFakeStore(), zerolog.Nop())(next)

	w := doRequest(h, http.MethodPost, "/payments", "k1", strings.Repeat("x", maxIdempotencyBodySize+1))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, next.calls)
}

func TestFingerprint(t *testing.T) {
	a := fingerprint(http.MethodPost, "/payments", []byte(`{}`))
	assert.Equal(t, a, fingerprint(http.MethodPost, "/payments", []byte(`{}`)))
	assert.NotEqual(t, a, fingerprint(http.MethodPost, "/bookings", []byte(`{}`)))
	assert.NotEqual(t, a, fingerprint(http.MethodPut, "/payments", []byte(`{}`)))
	assert.Len(t, a, 64)
}
