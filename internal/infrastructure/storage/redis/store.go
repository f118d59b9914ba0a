package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ratecore/internal/infrastructure/cache"
)

// Store adapts a go-redis client to the cache.KV surface. Pooling and
// reconnection are handled by the client itself.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Options for connecting to the cache store.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return NewStore(rdb), nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Del(ctx context.Context, keys ...string) (int, error) {
	n, err := s.rdb.Del(ctx, keys...).Result()
	return int(n), err
}

func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

var _ cache.KV = (*Store)(nil)
