// Package redis is a ports.Store that keeps each bucket in one redis hash.
package redis

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"
)

const defaultPrefix = "pg:"

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	rdb    *redis.Client
	prefix string
}

// Connect dials redis and pings it.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, eris.Wrapf(err, "redis: ping %s", cfg.Addr)
	}
	return New(rdb, cfg.Prefix), nil
}

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) hash(bucket string) string {
	return s.prefix + bucket
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	v, err := s.rdb.HGet(ctx, s.hash(bucket), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "redis: hget %s %s", s.hash(bucket), key)
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, value []byte) error {
	err := s.rdb.HSet(ctx, s.hash(bucket), key, value).Err()
	return eris.Wrapf(err, "redis: hset %s %s", s.hash(bucket), key)
}

func (s *Store) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	all, err := s.rdb.HGetAll(ctx, s.hash(bucket)).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "redis: hgetall %s", s.hash(bucket))
	}
	out := make(map[string][]byte, len(all))
	for k, v := range all {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
