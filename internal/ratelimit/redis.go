package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the sorted-set subset of go-redis the history needs.
type RedisClient interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisHistory keeps post times in one sorted set per platform, scored by
// unix milliseconds, so limits hold across processes.
type RedisHistory struct {
	client RedisClient
	prefix string
}

func NewRedisHistory(client RedisClient, prefix string) *RedisHistory {
	return &RedisHistory{client: client, prefix: prefix}
}

func (h *RedisHistory) key(platform string) string {
	return h.prefix + platform
}

func (h *RedisHistory) Since(ctx context.Context, platform string, since time.Time) ([]time.Time, error) {
	key := h.key(platform)
	cutoff := strconv.FormatInt(since.UnixMilli(), 10)

	if err := h.client.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune %s: %w", key, err)
	}

	members, err := h.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	times := make([]time.Time, 0, len(members))
	for _, m := range members {
		ms, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		times = append(times, time.UnixMilli(ms))
	}
	return times, nil
}

func (h *RedisHistory) Record(ctx context.Context, platform string, at time.Time) error {
	key := h.key(platform)
	ms := at.UnixMilli()

	member := redis.Z{Score: float64(ms), Member: strconv.FormatInt(ms, 10)}
	if err := h.client.ZAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("failed to record post in %s: %w", key, err)
	}
	h.client.Expire(ctx, key, Window)
	return nil
}
