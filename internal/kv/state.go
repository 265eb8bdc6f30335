// Package kv wraps NATS KV buckets with JSON helpers.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

const maxCASAttempts = 3

// Store provides typed access to a NATS KV bucket.
type Store struct {
	kv jetstream.KeyValue
}

// NewStore wraps a NATS KV bucket.
func NewStore(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Get retrieves a value and its revision.
func (s *Store) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return entry.Value(), entry.Revision(), nil
}

// Put stores a value at key.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	return s.kv.Put(ctx, key, value)
}

// Update stores a value at key only if the revision matches.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	return s.kv.Update(ctx, key, value, revision)
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Keys returns all keys in the bucket.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		// An empty bucket reports an error rather than an empty list.
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

// GetJSON retrieves and unmarshals a JSON value.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (uint64, error) {
	data, rev, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return 0, fmt.Errorf("unmarshal key %s: %w", key, err)
	}
	return rev, nil
}

// PutJSON marshals and stores a JSON value.
func (s *Store) PutJSON(ctx context.Context, key string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal key %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// UpdateJSON performs a compare-and-swap update of an existing JSON value.
// mutate sees the current value decoded into target and reports whether it
// should be written back. Returns ErrNotFound when the key is missing and
// (false, nil) when mutate declined.
func (s *Store) UpdateJSON(ctx context.Context, key string, target any, mutate func() bool) (bool, error) {
	var lastErr error
	for i := 0; i < maxCASAttempts; i++ {
		rev, err := s.GetJSON(ctx, key, target)
		if err != nil {
			return false, err
		}
		if !mutate() {
			return false, nil
		}
		data, err := json.Marshal(target)
		if err != nil {
			return false, fmt.Errorf("marshal key %s: %w", key, err)
		}
		if _, lastErr = s.Update(ctx, key, data, rev); lastErr == nil {
			return true, nil
		}
		// Revision conflict; reload and retry.
	}
	return false, fmt.Errorf("update key %s: %w", key, lastErr)
}
