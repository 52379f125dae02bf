package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisProvider is the alternate Provider backend over the pack's own
// go-redis/redis/v8 dependency (SPEC_FULL §4.7 [AMBIENT]), reusing the
// sorted-index operations (ZADD/ZREVRANGEBYSCORE/ZREM) the teacher's own
// redis_storage_provider.go example wires against the same StorageProvider
// interface.
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider wraps an existing *redis.Client.
func NewRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{client: client}
}

func (p *RedisProvider) Get(ctx context.Context, key string) (string, error) {
	v, err := p.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (p *RedisProvider) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := p.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (p *RedisProvider) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (p *RedisProvider) Exists(ctx context.Context, key string) (bool, error) {
	n, err := p.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (p *RedisProvider) AddToIndex(ctx context.Context, key string, score float64, member string) error {
	if err := p.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd %s: %w", key, err)
	}
	return nil
}

func (p *RedisProvider) ListByScoreDesc(ctx context.Context, key string, min, max string, offset, count int64) ([]string, error) {
	if min == "" {
		min = "-inf"
	}
	if max == "" {
		max = "+inf"
	}
	members, err := p.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: min, Max: max, Offset: offset, Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrangebyscore %s: %w", key, err)
	}
	return members, nil
}

func (p *RedisProvider) RemoveFromIndex(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := p.client.ZRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis zrem %s: %w", key, err)
	}
	return nil
}

var _ Provider = (*RedisProvider)(nil)
