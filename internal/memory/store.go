// Package memory implements core.Store in process memory. It backs tests and
// single-node runs where no Redis is available.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Store is an in-memory core.Store. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	zsets  map[string]map[string]float64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		zsets:  make(map[string]map[string]float64),
	}
}

var _ core.Store = (*Store)(nil)

// GetAllEntriesFromHash returns a copy of the hash at key.
func (s *Store) GetAllEntriesFromHash(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

// GetAllItemsFromSet returns the members of the set at key in sorted order.
func (s *Store) GetAllItemsFromSet(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// GetSortedSetCount returns the cardinality of the sorted set at key.
func (s *Store) GetSortedSetCount(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.zsets[key])), nil
}

// GetRangeFromSortedSet returns members ranked start..stop inclusive.
// Negative indexes count from the end, as in Redis ZRANGE.
func (s *Store) GetRangeFromSortedSet(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.RLock()
	members := s.rankedLocked(key)
	s.mu.RUnlock()

	n := int64(len(members))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []string{}, nil
	}

	out := make([]string, 0, stop-start+1)
	for _, m := range members[start : stop+1] {
		out = append(out, m.member)
	}
	return out, nil
}

// GetSortedSetByScore returns members scored within [minScore, maxScore]
// in ascending score order.
func (s *Store) GetSortedSetByScore(_ context.Context, key string, minScore, maxScore float64) ([]string, error) {
	s.mu.RLock()
	members := s.rankedLocked(key)
	s.mu.RUnlock()

	out := []string{}
	for _, m := range members {
		if m.score >= minScore && m.score <= maxScore {
			out = append(out, m.member)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// CreateWriteTransaction starts a transaction whose writes are applied
// under the store lock on Commit.
func (s *Store) CreateWriteTransaction(context.Context) core.Transaction {
	return &transaction{store: s}
}

type scored struct {
	member string
	score  float64
}

// rankedLocked orders members by score, then lexically, like Redis.
func (s *Store) rankedLocked(key string) []scored {
	out := make([]scored, 0, len(s.zsets[key]))
	for m, sc := range s.zsets[key] {
		out = append(out, scored{member: m, score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].member < out[j].member
	})
	return out
}
