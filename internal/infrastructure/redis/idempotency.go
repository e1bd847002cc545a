package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idempotency:"

// StoredResponse is a response replayed for a repeated Idempotency-Key.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	// Fingerprint identifies the request the response belongs to.
	Fingerprint string `json:"fingerprint"`
}

// IdempotencyStore keeps responses by key for a fixed TTL and guards keys
// that are being processed.
type IdempotencyStore struct {
	client  *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl, lockTTL time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl, lockTTL: lockTTL}
}

// Get returns nil, nil when nothing is stored under key.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*StoredResponse, error) {
	raw, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode idempotency entry: %w", err)
	}
	return &resp, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, key string, resp StoredResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

// TryLock claims key for the current request. The returned release func
// is a no-op when the key was not claimed.
func (s *IdempotencyStore) TryLock(ctx context.Context, key string) (bool, func(context.Context) error, error) {
	l := NewLock(s.client, idempotencyPrefix+key, s.lockTTL)
	ok, err := l.Acquire(ctx)
	if err != nil {
		return false, nil, err
	}
	return ok, l.Release, nil
}
