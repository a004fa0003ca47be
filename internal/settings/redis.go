package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore reads keys from Redis, optionally namespaced by a prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis connects to the Redis server at addr.
func OpenRedis(addr, prefix string) *RedisStore {
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), prefix)
}

// GetItem returns the value stored under the prefixed key.
func (s *RedisStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", s.prefix+key, err)
	}
	return val, true, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
