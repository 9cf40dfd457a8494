package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore implements the same sliding-window contract as the
// in-memory Limiter but keeps each key's timestamp bucket in a Redis
// sorted set, with the same client construction as
// engine.NewRedisTaskQueue, so the limiter can be shared across replicas.
type RedisWindowStore struct {
	client  *redis.Client
	prefix  string
	maxReq  int
	period  time.Duration
}

// RedisStoreConfig mirrors engine.RedisQueueConfig's connection fields.
type RedisStoreConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	MaxRequests   int
	PeriodSeconds time.Duration
}

// NewRedisWindowStore dials Redis and verifies the connection with a Ping,
// matching NewRedisTaskQueue's startup check.
func NewRedisWindowStore(cfg RedisStoreConfig) (*RedisWindowStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := "ratelimit"
	if cfg.KeyPrefix != "" {
		prefix = cfg.KeyPrefix + ":ratelimit"
	}

	return &RedisWindowStore{
		client: client,
		prefix: prefix,
		maxReq: cfg.MaxRequests,
		period: cfg.PeriodSeconds,
	}, nil
}

func (s *RedisWindowStore) key(k string) string {
	return s.prefix + ":" + k
}

// Allow prunes the key's sorted set to the trailing window, then admits
// the request if fewer than MaxRequests members remain, via ZREMRANGEBYSCORE
// followed by ZCARD and a conditional ZADD.
func (s *RedisWindowStore) Allow(k string) bool {
	ctx := context.Background()
	redisKey := s.key(k)
	now := time.Now()
	cutoff := now.Add(-s.period)

	s.client.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", cutoff.UnixNano()))

	count, err := s.client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return false
	}
	if int(count) >= s.maxReq {
		return false
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond())
	if err := s.client.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return false
	}
	s.client.Expire(ctx, redisKey, s.period)
	return true
}

// Remaining reports how many more requests k may make in the window.
func (s *RedisWindowStore) Remaining(k string) int {
	ctx := context.Background()
	redisKey := s.key(k)
	cutoff := time.Now().Add(-s.period)

	s.client.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", cutoff.UnixNano()))
	count, err := s.client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return 0
	}
	remaining := s.maxReq - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset deletes k's bucket, or flushes every bucket under this store's
// prefix when k is empty.
func (s *RedisWindowStore) Reset(k string) {
	ctx := context.Background()
	if k == "" {
		iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			s.client.Del(ctx, iter.Val())
		}
		return
	}
	s.client.Del(ctx, s.key(k))
}

// Ping exposes connectivity for health.RedisChecker.
func (s *RedisWindowStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisWindowStore) Close() {
	_ = s.client.Close()
}
