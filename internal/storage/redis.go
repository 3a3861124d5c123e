package storage

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the persistent protocol connection backend.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore parses a redis URL (scheme optional) and creates a client.
// The password, when set, overrides the one embedded in the URL.
func NewRedisStore(redisURL, password string, timeout time.Duration) (*RedisStore, error) {
	if !strings.Contains(redisURL, "://") {
		redisURL = "redis://" + redisURL
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	if password != "" {
		opts.Password = password
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	opts.MaxRetries = 5

	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Kind() Kind { return KindProtocol }

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set [%s]", key)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "redis get [%s]", key)
	}
	return value, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "redis del [%s]", key)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
