package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrTransactionDone is returned by Commit on a transaction that was already
// committed or discarded.
var ErrTransactionDone = errors.New("transaction already committed or discarded")

type transaction struct {
	ctx    context.Context
	store  *Store
	pipe   redis.Pipeliner
	queued int
	done   bool
}

func (t *transaction) SetRangeInHash(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	t.pipe.HSet(t.ctx, t.store.key(key), values)
	t.queued++
}

func (t *transaction) RemoveHash(key string) {
	t.pipe.Del(t.ctx, t.store.key(key))
	t.queued++
}

func (t *transaction) AddToSet(key, value string) {
	t.pipe.SAdd(t.ctx, t.store.key(key), value)
	t.queued++
}

func (t *transaction) RemoveFromSet(key, value string) {
	t.pipe.SRem(t.ctx, t.store.key(key), value)
	t.queued++
}

func (t *transaction) AddToSortedSet(key, value string, score float64) {
	t.pipe.ZAdd(t.ctx, t.store.key(key), redis.Z{Score: score, Member: value})
	t.queued++
}

func (t *transaction) RemoveFromSortedSet(key, value string) {
	t.pipe.ZRem(t.ctx, t.store.key(key), value)
	t.queued++
}

func (t *transaction) Commit() error {
	if t.done {
		return ErrTransactionDone
	}
	t.done = true
	if t.queued == 0 {
		return nil
	}
	if _, err := t.pipe.Exec(t.ctx); err != nil {
		t.store.logger.Error("redis transaction failed", "commands", t.queued, "error", err)
		return fmt.Errorf("exec transaction: %w", err)
	}
	return nil
}

func (t *transaction) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.pipe.Discard()
}
