package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/diaspomoney/payments/internal/infrastructure/redis"
	"github.com/rs/zerolog"
)

const (
	IdempotencyHeader      = "Idempotency-Key"
	ReplayedHeader         = "X-Idempotency-Replayed"
	maxIdempotencyBodySize = 1 << 20
)

// IdempotencyStore caches responses and serializes requests per key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*redis.StoredResponse, error)
	Save(ctx context.Context, key string, resp redis.StoredResponse) error
	TryLock(ctx context.Context, key string) (bool, func(context.Context) error, error)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// mutating requests. A key reused with a different body is rejected with 422
// and a key whose first request is still running gets 409. Store failures
// let the request through.
func Idempotency(store IdempotencyStore, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "idempotency").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBodySize+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body", "could not read request body")
				return
			}
			if len(body) > maxIdempotencyBodySize {
				writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := r.Context()
			scoped := r.Method + ":" + r.URL.Path + ":" + key
			fp := fingerprint(r.Method, r.URL.Path, body)

			stored, err := store.Get(ctx, scoped)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("idempotency lookup failed")
				next.ServeHTTP(w, r)
				return
			}
			if stored != nil {
				replay(w, stored, fp)
				return
			}

			acquired, release, err := store.TryLock(ctx, scoped)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("idempotency lock failed")
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				writeError(w, http.StatusConflict, "request_in_progress",
					"a request with this idempotency key is in progress")
				return
			}
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn().Err(err).Str("key", key).Msg("idempotency unlock failed")
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError || rec.bodyTruncated {
				return
			}
			resp := redis.StoredResponse{
				Status:      rec.statusCode,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				Fingerprint: fp,
			}
			if err := store.Save(context.WithoutCancel(ctx), scoped, resp); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("idempotency save failed")
			}
		})
	}
}

func replay(w http.ResponseWriter, stored *redis.StoredResponse, fp string) {
	if stored.Fingerprint != "" && stored.Fingerprint != fp {
		writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused",
			"idempotency key was used with a different request")
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	wroteHeader   bool
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
