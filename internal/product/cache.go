package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"claimgate/pkg/platform/sentinel"
)

// Cache is the durable layer consulted before any fetch. Get returns
// sentinel.ErrNotFound on a miss.
type Cache interface {
	Get(ctx context.Context, code string) ([]byte, error)
	Set(ctx context.Context, code string, raw []byte, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
}

const productKeyPrefix = "product:"

// RedisCache shares product info across instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, code string) ([]byte, error) {
	raw, err := c.client.Get(ctx, productKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	return raw, nil
}

func (c *RedisCache) Set(ctx context.Context, code string, raw []byte, ttl time.Duration) error {
	return c.client.Set(ctx, productKeyPrefix+code, raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, productKeyPrefix+code).Err()
}

// MemoryCache keeps product info in process.
type MemoryCache struct {
	cache *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{cache: gocache.New(5*time.Minute, 10*time.Minute)}
}

func (c *MemoryCache) Get(_ context.Context, code string) ([]byte, error) {
	v, ok := c.cache.Get(code)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return v.([]byte), nil
}

func (c *MemoryCache) Set(_ context.Context, code string, raw []byte, ttl time.Duration) error {
	c.cache.Set(code, raw, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, code string) error {
	c.cache.Delete(code)
	return nil
}
