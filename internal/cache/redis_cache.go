package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const productListingKey = "syncserver:linx:products"

type RedisProductListingCache struct {
	client *redis.Client
}

func NewRedisProductListingCache(addr string, password string, db int) *RedisProductListingCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisProductListingCache{client: client}
}

func (c *RedisProductListingCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisProductListingCache) Close() error {
	return c.client.Close()
}

func (c *RedisProductListingCache) Get(ctx context.Context) (json.RawMessage, bool, error) {
	val, err := c.client.Get(ctx, productListingKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisProductListingCache) Set(ctx context.Context, payload json.RawMessage, ttl time.Duration) error {
	if len(payload) == 0 {
		return nil
	}
	return c.client.Set(ctx, productListingKey, []byte(payload), ttl).Err()
}
