package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// All dedupe entries live under one namespace so they can be inspected and
// flushed independently of the cache keys sharing the Redis instance.
const dedupeKeyPrefix = "cadence:dedupe:"

// RedisDeduper tracks which command idempotency keys have already been
// accepted, shared across API instances through Redis. Entries expire after
// ttl; a replay arriving later than that is enqueued again and relies on
// the domain service applying commands idempotently.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper on the provided Redis client. Keys
// expire after ttl.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(userID, key string) string {
	return dedupeKeyPrefix + userID + ":" + key
}

// Add claims a single idempotency key. It reports whether this call was the
// first claim.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, dedupeKey(userID, key), 1, r.ttl).Result()
}

// Remove releases a claimed key so a retry of the same command is accepted
// after its enqueue failed.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, dedupeKey(userID, key)).Err()
}

// AddMany claims a batch of keys in a single pipeline round trip and reports,
// per key in input order, whether it was newly claimed. On error the returned
// slice still reflects every claim that went through before the failure, so
// the caller can release them with Remove; newlyClaimed pairs the two.
func (r *RedisDeduper) AddMany(ctx context.Context, userID string, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	claimed := make([]bool, len(keys))
	cmds, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.SetNX(ctx, dedupeKey(userID, key), 1, r.ttl)
		}
		return nil
	})
	if err != nil {
		return claimed, err
	}
	if len(cmds) != len(keys) {
		return claimed, fmt.Errorf("dedupe pipeline returned %d results for %d keys", len(cmds), len(keys))
	}
	for i, cmd := range cmds {
		boolCmd, ok := cmd.(*redis.BoolCmd)
		if !ok {
			return claimed, fmt.Errorf("dedupe pipeline returned %T, want *redis.BoolCmd", cmd)
		}
		first, cmdErr := boolCmd.Result()
		if cmdErr != nil {
			return claimed, cmdErr
		}
		claimed[i] = first
	}
	return claimed, nil
}

// newlyClaimed filters keys down to those an AddMany call reported as first
// claims. The result is what must be rolled back when the batch never
// reaches the queue.
func newlyClaimed(keys []string, claimed []bool) []string {
	out := make([]string, 0, len(claimed))
	for i, first := range claimed {
		if first && i < len(keys) {
			out = append(out, keys[i])
		}
	}
	return out
}
