package memory

import "errors"

// ErrTransactionDone is returned by Commit on a transaction that was already
// committed or discarded.
var ErrTransactionDone = errors.New("transaction already committed or discarded")

type transaction struct {
	store *Store
	ops   []func(*Store)
	done  bool
}

func (t *transaction) queue(op func(*Store)) {
	if t.done {
		return
	}
	t.ops = append(t.ops, op)
}

func (t *transaction) SetRangeInHash(key string, fields map[string]string) {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	t.queue(func(s *Store) {
		h, ok := s.hashes[key]
		if !ok {
			h = make(map[string]string, len(copied))
			s.hashes[key] = h
		}
		for k, v := range copied {
			h[k] = v
		}
	})
}

func (t *transaction) RemoveHash(key string) {
	t.queue(func(s *Store) { delete(s.hashes, key) })
}

func (t *transaction) AddToSet(key, value string) {
	t.queue(func(s *Store) {
		set, ok := s.sets[key]
		if !ok {
			set = make(map[string]struct{})
			s.sets[key] = set
		}
		set[value] = struct{}{}
	})
}

func (t *transaction) RemoveFromSet(key, value string) {
	t.queue(func(s *Store) {
		set := s.sets[key]
		delete(set, value)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	})
}

func (t *transaction) AddToSortedSet(key, value string, score float64) {
	t.queue(func(s *Store) {
		z, ok := s.zsets[key]
		if !ok {
			z = make(map[string]float64)
			s.zsets[key] = z
		}
		z[value] = score
	})
}

func (t *transaction) RemoveFromSortedSet(key, value string) {
	t.queue(func(s *Store) {
		z := s.zsets[key]
		delete(z, value)
		if len(z) == 0 {
			delete(s.zsets, key)
		}
	})
}

func (t *transaction) Commit() error {
	if t.done {
		return ErrTransactionDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		op(t.store)
	}
	t.ops = nil
	return nil
}

func (t *transaction) Discard() {
	t.done = true
	t.ops = nil
}
