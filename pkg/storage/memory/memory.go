// Package memory implements core.Storage entirely in process memory. It
// backs the adapter's test suites and local development; semantics match
// the DynamoDB binding (atomic transactional batches, monotonically
// allocated ids, keys-only projections) minus durability.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/stratakv/strata/pkg/core"
	"github.com/stratakv/strata/pkg/record"
)

type entry struct {
	key  *core.Key
	data record.Record
}

// Store is an in-memory core.Storage. The zero value is not usable; call
// New. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	kinds    map[string]map[string]entry // kind -> key path -> entry
	counters map[string]int64            // kind -> last allocated id
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		kinds:    make(map[string]map[string]entry),
		counters: make(map[string]int64),
	}
}

// Key builds a hierarchical key. Semantics are shared with every backend
// via core.BuildKey.
func (s *Store) Key(path ...any) (*core.Key, error) {
	return core.BuildKey(path...)
}

// Get returns a deep copy of the stored record, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key *core.Key) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == nil || key.Incomplete() {
		return nil, fmt.Errorf("memory: get requires a complete key")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.kinds[key.Kind][key.String()]
	if !ok {
		return nil, nil
	}
	return e.data.Clone(), nil
}

// CreateQuery starts a query over one kind.
func (s *Store) CreateQuery(kind string) core.Query {
	return &Query{kind: kind}
}

// RunQuery evaluates a handle created by CreateQuery against the current
// contents of the store.
func (s *Store) RunQuery(ctx context.Context, q core.Query) ([]core.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mq, ok := q.(*Query)
	if !ok {
		return nil, fmt.Errorf("memory: foreign query handle %T", q)
	}

	if err := mq.validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	snapshot := make([]entry, 0, len(s.kinds[mq.kind]))
	for _, e := range s.kinds[mq.kind] {
		snapshot = append(snapshot, e)
	}
	s.mu.RUnlock()

	return mq.evaluate(snapshot), nil
}

// Save upserts the given entities. Every key must be complete.
func (s *Store) Save(ctx context.Context, entities []core.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntities(entities); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applySaves(entities)
	return nil
}

// Delete removes the records for the given keys; missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys []*core.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyDeletes(keys)
	return nil
}

// RunInTransaction runs fn with a buffering transaction. Buffered saves
// and deletes apply atomically when fn returns nil and are discarded
// otherwise. Ids handed out by AllocateIDs are never reused, even on
// rollback.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx core.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &txn{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applySaves(tx.saves)
	s.applyDeletes(tx.deletes)
	return nil
}

func (s *Store) applySaves(entities []core.Entity) {
	for _, e := range entities {
		kind := s.kinds[e.Key.Kind]
		if kind == nil {
			kind = make(map[string]entry)
			s.kinds[e.Key.Kind] = kind
		}
		kind[e.Key.String()] = entry{key: e.Key, data: e.Data.Clone()}
	}
}

func (s *Store) applyDeletes(keys []*core.Key) {
	for _, k := range keys {
		if k == nil {
			continue
		}
		delete(s.kinds[k.Kind], k.String())
	}
}

func validateEntities(entities []core.Entity) error {
	for i, e := range entities {
		if e.Key == nil || e.Key.Incomplete() {
			return fmt.Errorf("memory: entity %d has an incomplete key", i)
		}
		if e.Data == nil {
			return fmt.Errorf("memory: entity %d has no data", i)
		}
	}
	return nil
}

// txn buffers writes until RunInTransaction commits them.
type txn struct {
	store   *Store
	saves   []core.Entity
	deletes []*core.Key
}

func (t *txn) AllocateIDs(ctx context.Context, keys []*core.Key) ([]*core.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	out := make([]*core.Key, len(keys))
	for i, k := range keys {
		if k == nil {
			return nil, fmt.Errorf("memory: nil key at %d", i)
		}
		if !k.Incomplete() {
			out[i] = k
			continue
		}
		t.store.counters[k.Kind]++
		completed := *k
		completed.ID = t.store.counters[k.Kind]
		out[i] = &completed
	}
	return out, nil
}

func (t *txn) Save(ctx context.Context, entities []core.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntities(entities); err != nil {
		return err
	}
	for _, e := range entities {
		t.saves = append(t.saves, core.Entity{Key: e.Key, Data: e.Data.Clone()})
	}
	return nil
}

func (t *txn) Delete(ctx context.Context, keys []*core.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.deletes = append(t.deletes, keys...)
	return nil
}
