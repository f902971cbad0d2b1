package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "roomaccess:entry:"

// DedupeRepository claims device event ids in Redis so duplicate gate
// callbacks inside the window are not processed twice. Without a client every
// claim succeeds and the access_records unique index is the only guard.
type DedupeRepository struct {
	client *redis.Client
}

// NewDedupeRepository constructs the repository.
func NewDedupeRepository(client *redis.Client) *DedupeRepository {
	return &DedupeRepository{client: client}
}

func dedupeKey(deviceID, eventID string) string {
	return dedupeKeyPrefix + deviceID + ":" + eventID
}

// Claim reports whether the caller is the first to see the event within ttl.
func (r *DedupeRepository) Claim(ctx context.Context, deviceID, eventID string, ttl time.Duration) (bool, error) {
	if r == nil || r.client == nil {
		return true, nil
	}
	key := dedupeKey(deviceID, eventID)
	ok, err := r.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Release drops a claim so the event can be retried after a failed attempt.
func (r *DedupeRepository) Release(ctx context.Context, deviceID, eventID string) error {
	if r == nil || r.client == nil {
		return nil
	}
	key := dedupeKey(deviceID, eventID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}
