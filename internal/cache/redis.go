package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tokenintel:"

// RedisStore keeps entries in redis. Keys expire once they are older than
// ttl plus the retention window, so stale reads stay possible.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

type redisEntry struct {
	Value     []byte `json:"value"`
	CreatedMS int64  `json:"created_ms"`
	TTLMS     int64  `json:"ttl_ms"`
}

func OpenRedis(ctx context.Context, url string, retention time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisStore{client: client, retention: retention}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string, maxStale time.Duration) (Result, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("redis read: %w", err)
	}
	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Result{}, nil
	}
	return evaluate(entry.Value, time.UnixMilli(entry.CreatedMS), time.Duration(entry.TTLMS)*time.Millisecond, maxStale, time.Now()), nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	payload, err := json.Marshal(redisEntry{Value: value, CreatedMS: time.Now().UnixMilli(), TTLMS: ttl.Milliseconds()})
	if err != nil {
		return fmt.Errorf("encode redis entry: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, ttl+s.retention).Err(); err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
