package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/pkg/logger"
)

// RedisClient is the subset of the redis client used by RedisStore.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps artifacts as redis strings under a key prefix. Writes use SETNX
// without expiry so an existing artifact is never replaced.
type RedisStore struct {
	client RedisClient
	prefix string
	log    *logrus.Entry
}

func NewRedisStore(client RedisClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, log: logger.WithArtifact("redis", "")}
}

// NewRedisStoreFromURL connects to redis and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, url, prefix string) (*RedisStore, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, prefix), client, nil
}

func (s *RedisStore) fullKey(key string) string {
	return fmt.Sprintf("%s:artifact:%s", s.prefix, key)
}

func (s *RedisStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	fullKey := s.fullKey(key)
	created, err := s.client.SetNX(ctx, fullKey, blob, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store artifact %s in redis: %w", key, err)
	}
	if !created {
		return fmt.Errorf("%s: %w", key, ErrArtifactExists)
	}

	s.log.WithFields(logrus.Fields{
		"cache_key": fullKey,
		"bytes":     len(blob),
	}).Debug("Stored artifact")
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", key, ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("failed to get artifact %s from redis: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Backend() string {
	return "redis"
}
