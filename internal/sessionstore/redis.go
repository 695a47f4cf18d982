package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"claimgate/pkg/platform/sentinel"
)

// Redis key for a wizard session: one hash, wizard:<session>, with a field per
// wizard key. The hash carries a single TTL for the whole session.
const sessionKeyPrefix = "wizard:"

// RedisStore keeps session values in Redis so a session survives restarts and
// can be served by any instance.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed store. Every write refreshes the TTL of
// the whole session.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Namespace(sessionID string) Namespace {
	return &redisNamespace{client: s.client, ttl: s.ttl, key: sessionKeyPrefix + sessionID}
}

type redisNamespace struct {
	client *redis.Client
	ttl    time.Duration
	key    string
}

func (n *redisNamespace) Get(ctx context.Context, field string) ([]byte, error) {
	b, err := n.client.HGet(ctx, n.key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", sentinel.ErrUnavailable, field, err)
	}
	return b, nil
}

// Set writes the field and refreshes the session TTL in one transaction.
func (n *redisNamespace) Set(ctx context.Context, field string, value []byte) error {
	_, err := n.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, n.key, field, value)
		if n.ttl > 0 {
			pipe.Expire(ctx, n.key, n.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", sentinel.ErrUnavailable, field, err)
	}
	return nil
}

func (n *redisNamespace) Delete(ctx context.Context, field string) error {
	if err := n.client.HDel(ctx, n.key, field).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", sentinel.ErrUnavailable, field, err)
	}
	return nil
}

func (n *redisNamespace) Clear(ctx context.Context) error {
	if err := n.client.Del(ctx, n.key).Err(); err != nil {
		return fmt.Errorf("%w: clear: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}
