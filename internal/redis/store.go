// Package redis implements core.Store on Redis. Recurring records are
// hashes, pause records are sets and the recurring index is a sorted set,
// so the layout is readable by any executor sharing the same Redis.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

var _ core.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPrefix namespaces every key with prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store is a core.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
	prefix string
}

// New creates a Redis-backed store. The caller owns the client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewFromURL parses a redis:// URL and returns a store together with the
// client it created. The caller must close the client.
func NewFromURL(url string, opts ...Option) (*Store, *redis.Client, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(o)
	return New(client, opts...), client, nil
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

func (s *Store) key(k string) string { return s.prefix + k }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetAllEntriesFromHash returns every field of the hash at key.
func (s *Store) GetAllEntriesFromHash(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil && !isRedisNil(err) {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return fields, nil
}

// GetAllItemsFromSet returns the members of the set at key.
func (s *Store) GetAllItemsFromSet(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key(key)).Result()
	if err != nil && !isRedisNil(err) {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

// GetSortedSetCount returns the cardinality of the sorted set at key.
func (s *Store) GetSortedSetCount(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.key(key)).Result()
	if err != nil && !isRedisNil(err) {
		return 0, fmt.Errorf("zcard %s: %w", key, err)
	}
	return n, nil
}

// GetRangeFromSortedSet returns members ranked start..stop inclusive.
func (s *Store) GetRangeFromSortedSet(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := s.client.ZRange(ctx, s.key(key), start, stop).Result()
	if err != nil && !isRedisNil(err) {
		return nil, fmt.Errorf("zrange %s: %w", key, err)
	}
	return members, nil
}

// GetSortedSetByScore returns members scored within [minScore, maxScore].
func (s *Store) GetSortedSetByScore(ctx context.Context, key string, minScore, maxScore float64) ([]string, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key(key), &redis.ZRangeBy{
		Min: formatScore(minScore),
		Max: formatScore(maxScore),
	}).Result()
	if err != nil && !isRedisNil(err) {
		return nil, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}
	return members, nil
}

// CreateWriteTransaction opens a MULTI/EXEC pipeline.
func (s *Store) CreateWriteTransaction(ctx context.Context) core.Transaction {
	return &transaction{
		ctx:   ctx,
		store: s,
		pipe:  s.client.TxPipeline(),
	}
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
