// Package redisstore backs the ingestion idempotency markers with Redis.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/messagewise/cost-insights/internal/store"
)

var _ store.IdempotencyStore = (*Idempotency)(nil)

// Idempotency is a TTL marker store on a single Redis instance. SET NX
// gives the atomic check-and-set the pipeline's dedup contract requires.
type Idempotency struct {
	rdb *redis.Client
}

// New creates an idempotency store from a Redis URL.
func New(url string) (*Idempotency, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Idempotency{rdb: redis.NewClient(opts)}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// SetIfAbsent atomically sets the marker and reports true when this call
// created it. Concurrent callers on the same key see exactly one true.
func (s *Idempotency) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// Ping verifies connectivity; used by the readiness probe.
func (s *Idempotency) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Idempotency) Close() error {
	return s.rdb.Close()
}
