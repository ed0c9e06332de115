package runlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis the Redis log needs.
type RedisClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLog stores entries in a Redis list so several processes (API and
// watcher) can share one log.
type RedisLog struct {
	client RedisClient
	key    string
	max    int64
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLog returns a log backed by the list at key. max bounds the list
// length when positive; ttl expires idle logs when positive.
func NewRedisLog(client RedisClient, key string, max int64, ttl time.Duration, logger *slog.Logger) *RedisLog {
	return &RedisLog{
		client: client,
		key:    key,
		max:    max,
		ttl:    ttl,
		logger: logger.With("component", "runlog", "key", key),
	}
}

// Append never fails the caller; Redis errors are only logged.
func (l *RedisLog) Append(msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.client.RPush(ctx, l.key, entryPrefix+msg).Err(); err != nil {
		l.logger.Warn("failed to append run log entry", "error", err)
		return
	}
	if l.max > 0 {
		if err := l.client.LTrim(ctx, l.key, -l.max, -1).Err(); err != nil {
			l.logger.Warn("failed to trim run log", "error", err)
		}
	}
	if l.ttl > 0 {
		l.client.Expire(ctx, l.key, l.ttl)
	}
}

func (l *RedisLog) Entries() []string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entries, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		l.logger.Warn("failed to read run log", "error", err)
		return []string{}
	}
	return entries
}

func (l *RedisLog) Reset() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		l.logger.Warn("failed to reset run log", "error", err)
	}
}
