package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisKV keeps snapshots in Redis, for setups that want history shared
// across machines. Keys carry no TTL; the snapshot is overwritten in place.
type redisKV struct {
	rdb *redis.Client
}

// OpenRedis connects to the Redis instance at addr and verifies it answers.
func OpenRedis(ctx context.Context, addr string) (KV, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &redisKV{rdb: rdb}, nil
}

// NewRedisKV wraps an existing client.
func NewRedisKV(rdb *redis.Client) KV {
	return &redisKV{rdb: rdb}
}

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("could not read key %q: %w", key, err)
	}
	return value, nil
}

func (r *redisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("could not write key %q: %w", key, err)
	}
	return nil
}

func (r *redisKV) Close() error {
	return r.rdb.Close()
}
