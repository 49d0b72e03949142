package cache

import (
	"context"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

type redisStore struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedis constructs a Redis backed Store.
func NewRedis(addr, password string, db int, logger *slog.Logger) (Store, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisStore{
		client:  client,
		logger:  logger,
		prefix:  "tracker:cache:",
		timeout: 500 * time.Millisecond,
	}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logRedisError("get", err)
		}
		return nil, ErrMiss
	}
	return value, nil
}

func (s *redisStore) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.SetEx(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		s.logRedisError("setex", err)
		return err
	}
	return nil
}

func (s *redisStore) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *redisStore) logRedisError(op string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error("redis cache error", "op", op, "error", err)
}

type noopStore struct{}

// NewNoop returns a Store for running without a cache backend. Every read
// misses and writes are discarded, so callers always recompute.
func NewNoop() Store {
	return noopStore{}
}

func (noopStore) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (noopStore) SetEx(context.Context, string, []byte, time.Duration) error { return nil }

func (noopStore) Close() {}
