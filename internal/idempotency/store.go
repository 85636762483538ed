// Package idempotency provides short-lived distributed locks and dedup
// markers for duplicate-submit and duplicate-webhook protection.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	orderLockPrefix = "lock:order:"
	callbackPrefix  = "settle:"

	// The order lock only has to cover one signing + gateway round-trip,
	// so a crashed request cannot wedge its merchant order number for long.
	orderLockTTL = 30 * time.Second

	// Callback markers outlive the gateway's immediate retry burst.
	callbackTTL = 10 * time.Minute
)

// Store is the lock/dedup surface used by the order assembly and webhook
// ingestion services.
type Store interface {
	// AcquireOrderLock claims the creation lock for a merchant order number.
	// It returns false when another request for the same number is in flight.
	AcquireOrderLock(ctx context.Context, merchantOrderNo string) (bool, error)

	// ReleaseOrderLock frees the creation lock early, so a client whose
	// request failed validation can resubmit without waiting out the TTL.
	ReleaseOrderLock(ctx context.Context, merchantOrderNo string) error

	// MarkCallbackProcessed claims the settlement marker for a callback
	// identifier. It returns false for a duplicate delivery.
	MarkCallbackProcessed(ctx context.Context, callbackID string) (bool, error)

	// ClearCallback removes a settlement marker after a failed settlement,
	// so the gateway's retry of the same delivery is not treated as a
	// duplicate.
	ClearCallback(ctx context.Context, callbackID string) error
}

type redisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) AcquireOrderLock(ctx context.Context, merchantOrderNo string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, orderLockPrefix+merchantOrderNo, "1", orderLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: failed to acquire order lock for %s: %w", merchantOrderNo, err)
	}
	return ok, nil
}

func (s *redisStore) ReleaseOrderLock(ctx context.Context, merchantOrderNo string) error {
	if err := s.rdb.Del(ctx, orderLockPrefix+merchantOrderNo).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to release order lock for %s: %w", merchantOrderNo, err)
	}
	return nil
}

func (s *redisStore) MarkCallbackProcessed(ctx context.Context, callbackID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, callbackPrefix+callbackID, "1", callbackTTL).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: failed to mark callback %s: %w", callbackID, err)
	}
	return ok, nil
}

func (s *redisStore) ClearCallback(ctx context.Context, callbackID string) error {
	if err := s.rdb.Del(ctx, callbackPrefix+callbackID).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to clear callback %s: %w", callbackID, err)
	}
	return nil
}
