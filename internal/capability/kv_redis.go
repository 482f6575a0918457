package capability

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"resumind/internal/config"
	apperrors "resumind/internal/errors"
	"resumind/internal/types"
)

// redisKV is a Redis-backed key-value store. All keys live under a
// configurable prefix so Flush only touches this application's namespace.
type redisKV struct {
	client *redis.Client
	prefix string
}

func newRedisKV(cfg config.RedisConfig) (*redisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			"Failed to connect to Redis", err).
			WithContext("addr", cfg.Addr)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "resumind:"
	}

	return &redisKV{client: client, prefix: prefix}, nil
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.NewIOError(apperrors.ErrCodeDelegatedCallFailed,
			"Redis get failed", err).WithContext("key", key)
	}
	return val, true, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string) (bool, error) {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return false, apperrors.NewIOError(apperrors.ErrCodeDelegatedCallFailed,
			"Redis set failed", err).WithContext("key", key)
	}
	return true, nil
}

func (r *redisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return apperrors.NewIOError(apperrors.ErrCodeDelegatedCallFailed,
			"Redis delete failed", err).WithContext("key", key)
	}
	return nil
}

func (r *redisKV) List(ctx context.Context, pattern string, returnValues bool) ([]types.KVEntry, error) {
	var out []types.KVEntry
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), r.prefix)
		entry := types.KVEntry{Key: key}
		if returnValues {
			val, err := r.client.Get(ctx, iter.Val()).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return nil, apperrors.NewIOError(apperrors.ErrCodeDelegatedCallFailed,
					"Redis get during list failed", err).WithContext("key", key)
			}
			entry.Value = val
		}
		out = append(out, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeDelegatedCallFailed,
			"Redis scan failed", err).WithContext("pattern", pattern)
	}
	// SCAN order is unspecified; keep listings deterministic.
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *redisKV) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return apperrors.NewIOError(apperrors.ErrCodeDelegatedCallFailed,
				"Redis flush failed", err)
		}
	}
	if err := iter.Err(); err != nil {
		return apperrors.NewIOError(apperrors.ErrCodeDelegatedCallFailed,
			"Redis scan failed", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *redisKV) Close() error {
	return r.client.Close()
}

var _ KeyValueStore = (*redisKV)(nil)
